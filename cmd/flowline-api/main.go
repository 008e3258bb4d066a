// Flowline API — HTTP API для flows, runs и теста узлов.
//
// API:
//   - Хранит документы flow и синхронизирует cron-расписания
//   - Создаёт runs и отдаёт их worker'ам через RabbitMQ
//   - Выполняет синхронные runs (?wait=true, /flows/execute) и test-node сам
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Flowline/internal/api"
	"github.com/shaiso/Flowline/internal/httpclient"
	"github.com/shaiso/Flowline/internal/mq"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/runner"
	"github.com/shaiso/Flowline/internal/scheduler"
	"github.com/shaiso/Flowline/internal/steps"
	"github.com/shaiso/Flowline/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowline_api_http_requests_total",
		Help: "Total HTTP requests handled by flowline_api",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting flowline-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Создаём репозитории
	flowRepo := repo.NewFlowRepo(pool)
	runRepo := repo.NewRunRepo(pool)
	scheduleRepo := repo.NewScheduleRepo(pool)

	// RabbitMQ (опционально: без него runs забирает polling worker'а)
	recorders := []runner.Recorder{runRepo}
	schedCfg := scheduler.Config{
		Schedules: scheduleRepo,
		Runs:      runRepo,
		Flows:     flowRepo,
		Logger:    logger,
	}
	apiCfg := api.Config{
		Flows:     flowRepo,
		Runs:      runRepo,
		Schedules: scheduleRepo,
		Logger:    logger,
	}

	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}
	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, runs will be picked up by polling", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher := mq.NewPublisher(mqConn, logger)
		recorders = append(recorders, publisher)
		schedCfg.Publisher = publisher
		apiCfg.Publisher = publisher
		logger.Info("RabbitMQ connected")
	}

	// Исполнитель для синхронных runs и test-node
	manager := runner.NewManager(runner.ManagerConfig{
		Runner: runner.New(runner.Config{
			Registry: steps.DefaultRegistry(httpclient.New(httpclient.Config{})),
			Logger:   logger,
		}),
		Recorders: recorders,
		Logger:    logger,
	})
	apiCfg.Manager = manager
	apiCfg.Syncer = scheduler.New(schedCfg)

	handler := api.NewHandler(apiCfg)

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Незавершённые синхронные runs отменяются и сохраняются
	manager.Stop()
	logger.Info("stopped")
}
