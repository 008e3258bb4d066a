package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Flowline/internal/xjson"
)

func TestParseFlow_TypedConfigs(t *testing.T) {
	doc := `{
	  "id": "f1",
	  "name": "demo",
	  "nodes": [
	    {"id": "h", "type": "httpRequest", "position": {"x": 1, "y": 2},
	     "data": {"method": "POST", "endpoint": "http://api/x",
	              "headers": [{"key": "X-A", "value": "1"}, {"key": "X-Off", "value": "2", "enabled": false}],
	              "queryParams": {"page": 2}, "body": {"a": "{{vars.a}}"}, "uiOnly": "ignored"}},
	    {"id": "i", "type": "ifElse", "data": {"comparison": {"left": "{{vars.n}}", "operator": ">", "right": 0}}},
	    {"id": "l", "type": "loop", "data": {"loopType": "forEach", "arrayPath": "vars.items", "batchSize": 2}},
	    {"id": "s", "type": "setVariable", "data": {"variableKey": "n", "value": 1}},
	    {"id": "g", "type": "log", "data": {"message": "hi"}},
	    {"id": "d", "type": "delay", "data": {"delayType": "cron", "cronExpression": "0 9 * * *"}},
	    {"id": "x", "type": "stopJob", "data": {"stopType": "error", "reason": "boom"}},
	    {"id": "u", "type": "sendEmail", "data": {"to": "a@b"}}
	  ],
	  "edges": [{"id": "e1", "source": "h", "sourceHandle": null, "target": "i"}]
	}`

	f, err := ParseFlow([]byte(doc))
	require.NoError(t, err)
	require.Len(t, f.Nodes, 8)

	httpCfg, ok := f.Nodes[0].Config.(*HTTPRequestConfig)
	require.True(t, ok)
	assert.Equal(t, "http://api/x", httpCfg.Target())
	assert.True(t, httpCfg.ShouldParseJSON())
	assert.Equal(t, KeyValues{"X-A": "1"}, httpCfg.Headers)
	assert.Equal(t, KeyValues{"page": "2"}, httpCfg.QueryParams)
	assert.Equal(t, &Position{X: 1, Y: 2}, f.Nodes[0].Position)

	ifCfg := f.Nodes[1].Config.(*IfElseConfig)
	assert.Equal(t, ConditionComparison, ifCfg.Mode())
	assert.Equal(t, OpGreater, ifCfg.Comparison.Operator)

	loopCfg := f.Nodes[2].Config.(*LoopConfig)
	assert.Equal(t, 2, loopCfg.BatchSize)
	assert.Equal(t, DefaultMaxIterations, loopCfg.IterationLimit())

	assert.Equal(t, SeverityInfo, f.Nodes[4].Config.(*LogConfig).Level())
	assert.Equal(t, RunStatusFailed, f.Nodes[6].Config.(*StopJobConfig).StopType.Status())

	// Неизвестный тип декодируется без ошибки, но без конфигурации
	assert.Equal(t, NodeKind("sendEmail"), f.Nodes[7].Kind)
	assert.Nil(t, f.Nodes[7].Config)
	assert.False(t, f.Nodes[7].Kind.IsValid())

	assert.Equal(t, "", f.Edges[0].SourceHandle)
}

func TestFlow_CloneIsIndependent(t *testing.T) {
	f, err := ParseFlow([]byte(`{"id": "f", "nodes": [
	  {"id": "s", "type": "setVariable", "data": {"variableKey": "a", "value": "x"}}], "edges": []}`))
	require.NoError(t, err)

	clone, err := f.Clone()
	require.NoError(t, err)

	f.Nodes[0].Config.(*SetVariableConfig).VariableKey = "changed"
	f.Nodes = append(f.Nodes, Node{ID: "extra"})

	assert.Len(t, clone.Nodes, 1)
	assert.Equal(t, "a", clone.Nodes[0].Config.(*SetVariableConfig).VariableKey)
}

func TestFlow_MarshalOmitsUnsetTimestamps(t *testing.T) {
	f, err := ParseFlow([]byte(`{"id": "f", "nodes": [
	  {"id": "l", "type": "log", "data": {"message": "x"}}], "edges": []}`))
	require.NoError(t, err)

	data, err := xjson.Marshal(f)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "createdAt")
	assert.NotContains(t, string(data), "updatedAt")

	saved := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.UpdatedAt = &saved
	clone, err := f.Clone()
	require.NoError(t, err)
	require.NotNil(t, clone.UpdatedAt)
	assert.True(t, saved.Equal(*clone.UpdatedAt))
	assert.Nil(t, clone.CreatedAt)
}

func TestFlow_CronDirectives(t *testing.T) {
	f, err := ParseFlow([]byte(`{"id": "f", "nodes": [
	  {"id": "d1", "type": "delay", "data": {"delayType": "seconds", "value": 1}},
	  {"id": "d2", "type": "delay", "data": {"delayType": "cron", "cronExpression": "*/5 * * * *"}}], "edges": []}`))
	require.NoError(t, err)

	nodes := f.CronDirectives()
	require.Len(t, nodes, 1)
	assert.Equal(t, "d2", nodes[0].ID)
}

func TestParseRunStatus(t *testing.T) {
	assert.Equal(t, RunStatusSucceeded, ParseRunStatus("SUCCEEDED"))
	assert.Equal(t, RunStatus(""), ParseRunStatus("done"))
	assert.True(t, RunStatusCancelled.IsTerminal())
	assert.False(t, RunStatusRunning.IsTerminal())
}
