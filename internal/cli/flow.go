package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewFlowsCmd создаёт группу команд для flows на сервере.
func NewFlowsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flows",
		Short: "Manage flows on the server",
	}

	cmd.AddCommand(
		newFlowsListCmd(clientFn, outputFn),
		newFlowsPushCmd(clientFn, outputFn),
		newFlowsDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newFlowsListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			flows, err := client.ListFlows(activeOnly)
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "ACTIVE", "NODES", "EDGES", "UPDATED"}
			rows := make([][]string, len(flows))
			for i, f := range flows {
				rows[i] = []string{
					f.ID, f.Name, strconv.FormatBool(f.IsActive),
					strconv.Itoa(f.Nodes), strconv.Itoa(f.Edges), f.UpdatedAt,
				}
			}

			out.Print(headers, rows, flows)
			return nil
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only active flows")

	return cmd
}

func newFlowsPushCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "push FILE",
		Short: "Save a flow document (JSON or YAML) on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			flow, doc, err := LoadFlow(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			if flow.ID == "" {
				return fmt.Errorf("flow document %s has no id", args[0])
			}

			resp, err := client.SaveFlow(flow.ID, doc)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Flow saved: %s", flow.ID))
			if out.JSONMode() {
				out.JSON(resp)
				return nil
			}

			for _, p := range resp.Problems {
				out.Error(formatProblem(p))
			}
			if len(resp.Schedules) > 0 {
				out.Table(scheduleHeaders, scheduleRows(resp.Schedules))
			}
			return nil
		},
	}
}

func newFlowsDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a flow and its schedules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteFlow(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Flow deleted: %s", args[0]))
			return nil
		},
	}
}
