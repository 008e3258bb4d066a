package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewSchedulesCmd создаёт группу команд для schedules.
//
// Расписания выводятся из узлов delay(cron) при сохранении flow,
// поэтому CLI их только показывает.
func NewSchedulesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "Inspect cron schedules",
	}

	cmd.AddCommand(newSchedulesListCmd(clientFn, outputFn))

	return cmd
}

var scheduleHeaders = []string{"ID", "FLOW_ID", "NODE_ID", "CRON", "TIMEZONE", "ENABLED", "NEXT_DUE", "LAST_RUN"}

func scheduleRows(schedules []ScheduleResponse) [][]string {
	rows := make([][]string, len(schedules))
	for i, s := range schedules {
		rows[i] = []string{
			s.ID, s.FlowID, s.NodeID, s.CronExpr, s.Timezone,
			strconv.FormatBool(s.Enabled), s.NextDueAt, s.LastRunAt,
		}
	}
	return rows
}

func newSchedulesListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flowID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			schedules, err := client.ListSchedules(flowID)
			if err != nil {
				return err
			}

			out.Print(scheduleHeaders, scheduleRows(schedules), schedules)
			return nil
		},
	}

	cmd.Flags().StringVar(&flowID, "flow-id", "", "Filter by flow ID")

	return cmd
}
