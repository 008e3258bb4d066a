package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка. Регистрируются в глобальном реестре Prometheus
// и отдаются через promhttp на /metrics каждого сервиса.
var (
	// RunsTotal — завершённые run по итоговому статусу.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowline_runs_total",
		Help: "Finished flow runs by final status",
	}, []string{"status"})

	// ActiveRuns — run, выполняющиеся прямо сейчас.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowline_active_runs",
		Help: "Flow runs currently executing",
	})

	// RunDuration — длительность run.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowline_run_duration_seconds",
		Help:    "Flow run duration",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	// NodeExecutions — выполненные узлы по типу и результату.
	NodeExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowline_node_executions_total",
		Help: "Executed nodes by kind and result",
	}, []string{"kind", "result"})

	// HTTPRequests — исходящие HTTP-запросы узлов httpRequest.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowline_outbound_http_requests_total",
		Help: "Outbound HTTP requests issued by httpRequest nodes, by status class",
	}, []string{"class"})
)

// Результаты выполнения узла для NodeExecutions.
const (
	NodeResultOK      = "ok"
	NodeResultError   = "error"
	NodeResultSkipped = "skipped"
)

// StatusClass возвращает класс HTTP статуса: "2xx", "4xx", ...
// Для ошибок транспорта — "error".
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "error"
	}
	return string(rune('0'+code/100)) + "xx"
}
