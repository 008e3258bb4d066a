package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Flowline/internal/runner"
)

const greetFlowYAML = `
id: greet
name: Greet
nodes:
  - id: set1
    type: setVariable
    data:
      variableKey: greeting
      value: "hello {{vars.name}}"
  - id: log1
    type: log
    data:
      message: "{{vars.greeting}}"
edges:
  - id: e1
    source: set1
    target: log1
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type buffers struct {
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func (b *buffers) output(jsonMode bool) func() *Output {
	return func() *Output { return NewOutputTo(&b.stdout, &b.stderr, jsonMode) }
}

func localRunner() *runner.Runner {
	return runner.New(runner.Config{})
}

func execute(cmd *cobra.Command, args ...string) error {
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.Execute()
}

func TestLoadFlow_YAML(t *testing.T) {
	flow, doc, err := LoadFlow(writeFile(t, "greet.yaml", greetFlowYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, "greet", flow.ID)
	require.Len(t, flow.Nodes, 2)
	assert.Equal(t, "set1", flow.Edges[0].Source)
	assert.Contains(t, string(doc), `"variableKey":"greeting"`)
}

func TestReadDocument_StdinDetectsFormat(t *testing.T) {
	data, err := ReadDocument("-", strings.NewReader("a: 1\nb: [x, y]\n"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1, "b": ["x", "y"]}`, string(data))

	data, err = ReadDocument("-", strings.NewReader(`{"a": 1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(data))
}

func TestParseVars(t *testing.T) {
	vars, err := ParseVars([]string{"name=Bob", "count=3", `filter={"active":true}`, "empty="})
	require.NoError(t, err)

	assert.Equal(t, "Bob", vars["name"])
	assert.Equal(t, float64(3), vars["count"])
	assert.Equal(t, map[string]any{"active": true}, vars["filter"])
	assert.Equal(t, "", vars["empty"])

	_, err = ParseVars([]string{"novalue"})
	assert.Error(t, err)
}

func TestValidateCmd(t *testing.T) {
	var buf buffers
	err := execute(NewValidateCmd(buf.output(false)), writeFile(t, "greet.yml", greetFlowYAML))
	require.NoError(t, err)
	assert.Contains(t, buf.stderr.String(), "Flow greet is valid")

	buf = buffers{}
	bad := `{"id": "bad", "nodes": [{"id": "h", "type": "httpRequest", "data": {}}], "edges": []}`
	err = execute(NewValidateCmd(buf.output(false)), writeFile(t, "bad.json", bad))
	require.ErrorIs(t, err, ErrInvalidFlow)
	assert.Contains(t, buf.stdout.String(), "h")
	assert.Contains(t, buf.stdout.String(), "is required")
}

func TestRunFileCmd(t *testing.T) {
	var buf buffers
	cmd := NewRunFileCmd(localRunner, buf.output(true))
	err := execute(cmd, writeFile(t, "greet.yaml", greetFlowYAML), "--var", "name=Bob")
	require.NoError(t, err)

	assert.Contains(t, buf.stdout.String(), `"hello Bob"`)
	assert.Contains(t, buf.stderr.String(), "SUCCEEDED")
}

func TestRunFileCmd_StopJobFails(t *testing.T) {
	doc := `{"id": "stop", "nodes": [{"id": "s", "type": "stopJob", "data": {"stopType": "error", "reason": "no data"}}], "edges": []}`

	var buf buffers
	err := execute(NewRunFileCmd(localRunner, buf.output(false)), writeFile(t, "stop.json", doc))
	require.ErrorIs(t, err, ErrRunNotSucceeded)
	assert.Contains(t, err.Error(), "no data")
	assert.Contains(t, buf.stdout.String(), "SEVERITY")
}

func TestTestNodeCmd(t *testing.T) {
	doc := `{"id": "f", "nodes": [
		{"id": "if1", "type": "ifElse", "data": {"comparison": {"left": "{{http1.result.status}}", "operator": ">=", "right": 400}}}
	], "edges": []}`
	upstream := "http1:\n  result:\n    status: 503\n"

	var buf buffers
	err := execute(NewTestNodeCmd(localRunner, buf.output(true)),
		writeFile(t, "flow.json", doc), "--node", "if1", "--upstream", writeFile(t, "up.yaml", upstream))
	require.NoError(t, err)
	assert.Contains(t, buf.stdout.String(), `"edgeSelector": "true"`)
}

func TestTestNodeCmd_UnknownNode(t *testing.T) {
	var buf buffers
	err := execute(NewTestNodeCmd(localRunner, buf.output(false)),
		writeFile(t, "greet.yaml", greetFlowYAML), "--node", "ghost")
	assert.ErrorIs(t, err, runner.ErrNodeNotFound)
}

func TestClient_ListRunsAndErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/runs":
			assert.Equal(t, "FAILED", r.URL.Query().Get("status"))
			_, _ = w.Write([]byte(`{"data": [{"id": "r1", "flowId": "greet", "status": "FAILED", "durationMs": 12}], "total": 1}`))
		case "/api/v1/flows/bad/runs":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error": {"code": "VALIDATION_FAILED", "message": "flow is invalid",
				"problems": [{"nodeId": "h", "message": "url is required"}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error": {"code": "NOT_FOUND", "message": "run not found"}}`))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)

	runs, err := client.ListRuns(ListRunsOpts{Status: "FAILED"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].ID)
	assert.Equal(t, int64(12), runs[0].DurationMs)

	_, err = client.CreateRun("bad", CreateRunRequest{}, false)
	require.ErrorIs(t, err, ErrAPI)
	assert.Contains(t, err.Error(), "node h: url is required")

	_, err = client.GetRun("missing")
	require.ErrorIs(t, err, ErrAPI)
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestRunsListCmd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"id": "r1", "flowId": "greet", "status": "SUCCEEDED", "trigger": "schedule"}], "total": 1}`))
	}))
	defer server.Close()

	var buf buffers
	cmd := NewRunsCmd(func() *Client { return NewClient(server.URL) }, buf.output(false))
	require.NoError(t, execute(cmd, "list"))

	out := buf.stdout.String()
	assert.Contains(t, out, "FLOW_ID")
	assert.Contains(t, out, "r1")
	assert.Contains(t, out, "schedule")
}
