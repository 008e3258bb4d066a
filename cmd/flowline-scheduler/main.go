// Flowline Scheduler — создаёт runs по cron-расписаниям delay-узлов.
//
// Несколько экземпляров могут работать одновременно: тики выполняет
// только лидер, владеющий pg_advisory_lock. Повторная обработка одного
// due-времени отсекается ключом идемпотентности run.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Flowline/internal/mq"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/scheduler"
	"github.com/shaiso/Flowline/internal/telemetry"
)

const schedLockKey int64 = 424242

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting flowline-scheduler")

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

	cfg := scheduler.Config{
		Schedules: repo.NewScheduleRepo(pool),
		Runs:      repo.NewRunRepo(pool),
		Flows:     repo.NewFlowRepo(pool),
		Logger:    logger,
	}

	// RabbitMQ (опционально)
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}
	if mqConn, err := mq.NewConnection(mqURL, logger); err != nil {
		logger.Warn("RabbitMQ not available, workers will poll for runs", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		cfg.Publisher = mq.NewPublisher(mqConn, logger)
	}

	sched := scheduler.New(cfg)
	lock := repo.NewAdvisoryLock(pool, schedLockKey)

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// scheduler loop
	done := make(chan struct{})
	go func() {
		defer close(done)

		tk := time.NewTicker(1 * time.Second)
		defer tk.Stop()

		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				logger.Warn("failed to release leader lock", "error", err)
			}
		}()

		for {
			select {
			case <-tk.C:
				// пытаемся стать лидером (или подтвердить лидерство)
				wasLeader := lock.Held()
				leader, err := lock.TryAcquire(ctx)
				if err != nil {
					logger.Warn("leader lock error", "error", err)
					continue
				}
				if leader != wasLeader {
					logger.Info("leadership changed", "leader", leader)
				}
				if !leader {
					// не лидер — пропускаем тик
					continue
				}

				if err := sched.Tick(ctx); err != nil {
					logger.Error("tick failed", "error", err)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	port := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
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

	<-ctx.Done()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	logger.Info("flowline-scheduler stopped")
}
