package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewRunsCmd создаёт группу команд для runs на сервере.
func NewRunsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage runs on the server",
	}

	cmd.AddCommand(
		newRunsListCmd(clientFn, outputFn),
		newRunsStartCmd(clientFn, outputFn),
		newRunsShowCmd(clientFn, outputFn),
		newRunsCancelCmd(clientFn, outputFn),
	)

	return cmd
}

var runHeaders = []string{"ID", "FLOW_ID", "STATUS", "TRIGGER", "DURATION_MS", "CREATED"}

func runRow(r RunResponse) []string {
	return []string{r.ID, r.FlowID, r.Status, r.Trigger, strconv.FormatInt(r.DurationMs, 10), r.CreatedAt}
}

func newRunsListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flowID string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(ListRunsOpts{
				FlowID: flowID,
				Status: status,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = runRow(r)
			}

			out.Print(runHeaders, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&flowID, "flow-id", "", "Filter by flow ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, RUNNING, SUCCEEDED, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunsStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var vars []string
	var idempotencyKey string
	var wait bool

	cmd := &cobra.Command{
		Use:   "start FLOW_ID",
		Short: "Start a run of a saved flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			variables, err := ParseVars(vars)
			if err != nil {
				return err
			}

			run, err := client.CreateRun(args[0], CreateRunRequest{
				Variables:      variables,
				IdempotencyKey: idempotencyKey,
			}, wait)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run started: %s", run.ID))
			out.Print(runHeaders, [][]string{runRow(*run)}, run)
			if wait && run.Result != nil && !out.JSONMode() {
				printRunLog(out, run.Result.Log)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&vars, "var", nil, "Initial variables as KEY=VALUE (repeatable, JSON values allowed)")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Return the existing run for a repeated key")
	cmd.Flags().BoolVar(&wait, "wait", false, "Execute synchronously and print the result")

	return cmd
}

func newRunsShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details and its execution log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(run)
				return nil
			}

			out.Table(append(runHeaders, "ERROR"), [][]string{append(runRow(*run), run.Error)})
			if run.Result != nil {
				printRunLog(out, run.Result.Log)
			}
			return nil
		},
	}
}

func newRunsCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a pending or running run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.CancelRun(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run cancelled: %s", run.ID))
			return nil
		},
	}
}

// printRunLog выводит журнал run, полученный от API.
func printRunLog(out *Output, entries []LogEntryResponse) {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{e.Timestamp, e.Severity, e.NodeID, e.Message}
	}
	out.Table([]string{"TIME", "SEVERITY", "NODE", "MESSAGE"}, rows)
}
