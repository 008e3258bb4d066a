package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"", slog.LevelWarn},
		{"verbose", slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in, slog.LevelWarn))
		})
	}
}

func TestLogLevel_FromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "ERROR")
	assert.Equal(t, slog.LevelError, LogLevel())

	t.Setenv("LOG_LEVEL", "")
	assert.Equal(t, slog.LevelInfo, LogLevel())
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger)
	WithNodeID(WithRunID(FromContext(ctx), "r-1"), "http1").Info("hello")

	assert.Contains(t, buf.String(), "run_id=r-1")
	assert.Contains(t, buf.String(), "node_id=http1")
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", StatusClass(204))
	assert.Equal(t, "5xx", StatusClass(503))
	assert.Equal(t, "error", StatusClass(0))
}

func TestMetricsRegistered(t *testing.T) {
	RunsTotal.WithLabelValues("SUCCEEDED").Inc()
	NodeExecutions.WithLabelValues("log", NodeResultOK).Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	assert.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["flowline_runs_total"])
	assert.True(t, names["flowline_node_executions_total"])
	assert.True(t, names["flowline_active_runs"])
}
