package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/mq"
	"github.com/shaiso/Flowline/internal/runner"
)

// Default configuration values.
const (
	defaultPollInterval   = 10 * time.Second
	defaultCancelInterval = 2 * time.Second
	defaultBatchSize      = 50
	defaultMaxConcurrent  = 8
)

// RunStore — хранилище runs (repo.RunRepo).
type RunStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	ListPending(ctx context.Context, limit int) ([]domain.Run, error)
	Claim(ctx context.Context, id uuid.UUID) error
	Statuses(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.RunStatus, error)
	RecordRun(ctx context.Context, run *domain.Run) error
}

// FlowStore — хранилище документов flow (repo.FlowRepo).
type FlowStore interface {
	Get(ctx context.Context, id string) (*domain.Flow, error)
}

// Worker выполняет runs, созданные API и scheduler'ом.
//
// Worker:
//   - Получает run.requested из RabbitMQ (event-driven)
//   - Периодически забирает PENDING runs из БД (polling fallback)
//   - Выполняет flow через runner.Manager; итог сохраняют Recorders менеджера
//   - Останавливает runs, отменённые через API
//
// Несколько worker'ов могут работать параллельно: run забирается
// атомарным Claim, поэтому выполняется один раз.
type Worker struct {
	runs    RunStore
	flows   FlowStore
	manager *runner.Manager

	conn     *mq.Connection
	consumer *mq.Consumer

	pollInterval   time.Duration
	cancelInterval time.Duration
	batchSize      int
	slots          chan struct{}

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Runs  RunStore
	Flows FlowStore

	// Manager выполняет runs. Worker владеет им: Stop останавливает и Manager.
	Manager *runner.Manager

	// Conn — соединение с RabbitMQ (опционально; без него только polling).
	Conn *mq.Connection

	PollInterval   time.Duration // интервал polling (default: 10s)
	CancelInterval time.Duration // интервал проверки отмен (default: 2s)
	BatchSize      int           // количество runs за один poll (default: 50)
	MaxConcurrent  int           // одновременно выполняемых runs (default: 8)

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	cancelInterval := cfg.CancelInterval
	if cancelInterval <= 0 {
		cancelInterval = defaultCancelInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	manager := cfg.Manager
	if manager == nil {
		manager = runner.NewManager(runner.ManagerConfig{Logger: logger})
	}

	return &Worker{
		runs:           cfg.Runs,
		flows:          cfg.Flows,
		manager:        manager,
		conn:           cfg.Conn,
		pollInterval:   pollInterval,
		cancelInterval: cancelInterval,
		batchSize:      batchSize,
		slots:          make(chan struct{}, maxConcurrent),
		logger:         logger,
	}
}

// Start запускает Worker.
//
// Запускает:
//   - Consumer для runs.requested (если есть соединение с RabbitMQ)
//   - Polling горутину для fallback
//   - Проверку отмен для активных runs
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"max_concurrent", cap(w.slots),
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    mq.QueueRunsRequested,
			Handler:  w.handleRunRequested,
			Prefetch: cap(w.slots),
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("run consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx, w.pollInterval, w.poll)
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx, w.cancelInterval, w.syncCancellations)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает приём runs, отменяет выполняемые и ждёт их итогов.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.manager.Stop()
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// ActiveRuns возвращает количество выполняемых runs.
func (w *Worker) ActiveRuns() int {
	return w.manager.ActiveCount()
}

// loop вызывает fn сразу и затем каждые interval.
func (w *Worker) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// poll забирает PENDING runs, пропущенные очередью.
func (w *Worker) poll(ctx context.Context) {
	runs, err := w.runs.ListPending(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list pending runs", "error", err)
		return
	}
	if len(runs) == 0 {
		return
	}

	w.logger.Debug("poll found pending runs", "count", len(runs))

	for i := range runs {
		err := w.processRun(ctx, runs[i].ID)
		if err != nil && !errors.Is(err, ErrRunNotPending) {
			w.logger.Error("failed to process run from poll", "run_id", runs[i].ID, "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// syncCancellations останавливает активные runs, отменённые в БД.
func (w *Worker) syncCancellations(ctx context.Context) {
	ids := w.manager.ActiveIDs()
	if len(ids) == 0 {
		return
	}

	statuses, err := w.runs.Statuses(ctx, ids)
	if err != nil {
		w.logger.Error("failed to check run statuses", "error", err)
		return
	}

	for id, status := range statuses {
		if status != domain.RunStatusCancelled {
			continue
		}
		if err := w.manager.Cancel(id); err == nil {
			w.logger.Info("run cancelled by request", "run_id", id)
		}
	}
}
