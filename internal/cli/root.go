package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shaiso/Flowline/internal/httpclient"
	"github.com/shaiso/Flowline/internal/runner"
	"github.com/shaiso/Flowline/internal/steps"
	"github.com/shaiso/Flowline/internal/telemetry"
)

// NewRootCmd собирает дерево команд flowline.
func NewRootCmd(version string) *cobra.Command {
	var apiURL string
	var jsonOutput bool
	var logLevel string
	var rps float64

	rootCmd := &cobra.Command{
		Use:           "flowline",
		Short:         "Flowline CLI — flow execution engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Engine log level for local commands (debug, info, warn, error)")
	rootCmd.PersistentFlags().Float64Var(&rps, "rps", 0, "Rate limit for HTTP requests of local runs (0 — unlimited)")

	clientFn := func() *Client { return NewClient(apiURL) }
	outputFn := func() *Output { return NewOutput(jsonOutput) }
	runnerFn := func() *runner.Runner {
		// Журнал run печатается таблицей, slog — для диагностики
		logger := slog.New(slog.NewTextHandler(rootCmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: telemetry.ParseLevel(logLevel, slog.LevelWarn),
		}))
		client := httpclient.New(httpclient.Config{RequestsPerSecond: rps})
		return runner.New(runner.Config{
			Registry: steps.DefaultRegistry(client),
			Logger:   logger,
		})
	}

	rootCmd.AddCommand(
		NewValidateCmd(outputFn),
		NewRunFileCmd(runnerFn, outputFn),
		NewTestNodeCmd(runnerFn, outputFn),
		NewFlowsCmd(clientFn, outputFn),
		NewRunsCmd(clientFn, outputFn),
		NewSchedulesCmd(clientFn, outputFn),
	)

	return rootCmd
}
