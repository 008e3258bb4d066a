package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/runner"
	"github.com/shaiso/Flowline/internal/steps"
	"github.com/shaiso/Flowline/internal/xjson"
)

var (
	// ErrInvalidFlow — flow не прошёл валидацию.
	ErrInvalidFlow = errors.New("flow is invalid")

	// ErrRunNotSucceeded — локальный run завершился не SUCCEEDED.
	ErrRunNotSucceeded = errors.New("run did not succeed")
)

// NewValidateCmd создаёт команду локальной проверки документа flow.
func NewValidateCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a flow document (JSON or YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			flow, _, err := LoadFlow(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			problems := engine.Report(flow)
			if len(problems) == 0 {
				if out.JSONMode() {
					out.JSON(map[string]any{"valid": true, "problems": []ProblemResponse{}})
				}
				out.Success(fmt.Sprintf("Flow %s is valid", flow.ID))
				return nil
			}

			resp := make([]ProblemResponse, len(problems))
			rows := make([][]string, len(problems))
			for i, p := range problems {
				resp[i] = ProblemResponse{NodeID: p.NodeID, EdgeID: p.EdgeID, Field: p.Field, Message: p.Message}
				rows[i] = []string{p.NodeID, p.EdgeID, p.Field, p.Message}
			}
			out.Print([]string{"NODE", "EDGE", "FIELD", "PROBLEM"}, rows,
				map[string]any{"valid": false, "problems": resp})

			return fmt.Errorf("%w: %d problem(s)", ErrInvalidFlow, len(problems))
		},
	}
}

// NewRunFileCmd создаёт команду локального выполнения flow.
//
// Run выполняется в процессе CLI: HTTP-запросы и задержки настоящие,
// Ctrl+C отменяет run.
func NewRunFileCmd(runnerFn func() *runner.Runner, outputFn func() *Output) *cobra.Command {
	var vars []string

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a flow document locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			flow, _, err := LoadFlow(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			variables, err := ParseVars(vars)
			if err != nil {
				return err
			}

			res, err := runnerFn().Run(cmd.Context(), flow, runner.Options{Variables: variables})
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(res)
			} else {
				printLog(out, res.Log)
			}
			out.Success(fmt.Sprintf("Run %s: %s in %s", res.RunID, res.Status, res.Duration().Round(time.Millisecond)))

			if res.Status != domain.RunStatusSucceeded {
				return fmt.Errorf("%w: %s %s", ErrRunNotSucceeded, res.Status, res.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&vars, "var", nil, "Initial variables as KEY=VALUE (repeatable, JSON values allowed)")

	return cmd
}

// NewTestNodeCmd создаёт команду теста одного узла ("Test This Node").
func NewTestNodeCmd(runnerFn func() *runner.Runner, outputFn func() *Output) *cobra.Command {
	var nodeID string
	var upstreamPath string

	cmd := &cobra.Command{
		Use:   "test-node FILE",
		Short: "Execute a single node of a flow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			flow, _, err := LoadFlow(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			var upstream map[string]any
			if upstreamPath != "" {
				if upstream, err = LoadUpstream(upstreamPath, cmd.InOrStdin()); err != nil {
					return err
				}
			}

			outcome, err := runnerFn().TestFlowNode(cmd.Context(), flow, nodeID, upstream)
			var ve *engine.ValidationError
			if errors.Is(err, runner.ErrNodeNotFound) || errors.As(err, &ve) {
				return err
			}

			printOutcome(out, nodeID, outcome, err)
			if err != nil {
				return fmt.Errorf("node %s failed: %w", nodeID, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&nodeID, "node", "", "ID of the node to execute")
	cmd.Flags().StringVar(&upstreamPath, "upstream", "", "JSON or YAML file with results of upstream nodes")
	_ = cmd.MarkFlagRequired("node")

	return cmd
}

// printLog выводит журнал выполнения таблицей.
func printLog(out *Output, entries []domain.LogEntry) {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{e.Timestamp.Format("15:04:05.000"), string(e.Severity), e.NodeID, e.Message}
	}
	out.Table([]string{"TIME", "SEVERITY", "NODE", "MESSAGE"}, rows)
}

// printOutcome выводит результат теста узла.
func printOutcome(out *Output, nodeID string, outcome *steps.Outcome, err error) {
	if out.JSONMode() {
		resp := map[string]any{"nodeId": nodeID}
		if outcome != nil {
			resp["edgeSelector"] = outcome.EdgeSelector
			writes := make([]map[string]any, len(outcome.Writes))
			for i, wr := range outcome.Writes {
				writes[i] = map[string]any{"key": wr.Key, "value": wr.Value}
			}
			resp["writes"] = writes
			resp["log"] = outcome.Log
			if outcome.Terminal != nil {
				resp["terminal"] = map[string]any{"status": outcome.Terminal.Status, "reason": outcome.Terminal.Reason}
			}
		}
		if err != nil {
			resp["error"] = err.Error()
		}
		out.JSON(resp)
		return
	}
	if outcome == nil {
		return
	}

	printLog(out, outcome.Log)

	rows := make([][]string, len(outcome.Writes))
	for i, wr := range outcome.Writes {
		rows[i] = []string{wr.Key, formatValue(wr.Value)}
	}
	out.Table([]string{"KEY", "VALUE"}, rows)

	if outcome.EdgeSelector != "" {
		out.Success("Edge: " + outcome.EdgeSelector)
	}
	if outcome.Terminal != nil {
		out.Success(fmt.Sprintf("Stop: %s %s", outcome.Terminal.Status, outcome.Terminal.Reason))
	}
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t)
	case nil:
		return "null"
	}
	data, err := xjson.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
