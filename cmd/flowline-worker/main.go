// Flowline Worker — выполняет runs.
//
// Worker:
//   - Получает run.requested из RabbitMQ
//   - Забирает PENDING runs из БД (polling fallback)
//   - Выполняет flow и сохраняет итог, публикует run.completed
//   - Останавливает runs, отменённые через API
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Flowline/internal/httpclient"
	"github.com/shaiso/Flowline/internal/mq"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/runner"
	"github.com/shaiso/Flowline/internal/steps"
	"github.com/shaiso/Flowline/internal/telemetry"
	"github.com/shaiso/Flowline/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting flowline-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Создаём репозитории
	runRepo := repo.NewRunRepo(pool)
	flowRepo := repo.NewFlowRepo(pool)
	recorders := []runner.Recorder{runRepo}

	// RabbitMQ
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		// Создаём топологию
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		recorders = append(recorders, mq.NewPublisher(mqConn, logger))
	}

	// Исполнитель с общим лимитом HTTP-запросов процесса
	var rps float64
	if v := os.Getenv("WORKER_HTTP_RPS"); v != "" {
		if rps, err = strconv.ParseFloat(v, 64); err != nil {
			logger.Warn("invalid WORKER_HTTP_RPS, rate limiting disabled", "value", v)
			rps = 0
		}
	}
	manager := runner.NewManager(runner.ManagerConfig{
		Runner: runner.New(runner.Config{
			Registry: steps.DefaultRegistry(httpclient.New(httpclient.Config{RequestsPerSecond: rps})),
			Logger:   logger,
		}),
		Recorders: recorders,
		Logger:    logger,
	})

	// Создаём worker
	w := worker.New(worker.Config{
		Runs:    runRepo,
		Flows:   flowRepo,
		Manager: manager,
		Conn:    mqConn,
		Logger:  logger,
	})

	// Запускаем worker
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if w.IsStopped() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok active_runs=" + strconv.Itoa(w.ActiveRuns())))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	server := &http.Server{Addr: port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("listening", "addr", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем worker: активные runs отменяются и сохраняются
	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	logger.Info("flowline-worker stopped")
}
