package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/runner"
)

// FlowStore — хранилище документов flow (repo.FlowRepo).
type FlowStore interface {
	Save(ctx context.Context, flow *domain.Flow) error
	Get(ctx context.Context, id string) (*domain.Flow, error)
	List(ctx context.Context, filter repo.FlowFilter) ([]domain.Flow, error)
	Delete(ctx context.Context, id string) error
}

// RunStore — хранилище runs (repo.RunRepo).
type RunStore interface {
	Create(ctx context.Context, run *domain.Run) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	GetByIdempotencyKey(ctx context.Context, flowID, key string) (*domain.Run, error)
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
	RequestCancel(ctx context.Context, id uuid.UUID) error
}

// ScheduleStore — хранилище schedules (repo.ScheduleRepo).
type ScheduleStore interface {
	List(ctx context.Context, filter repo.ScheduleFilter) ([]domain.Schedule, error)
}

// ScheduleSyncer переносит cron-директивы сохранённого flow
// в schedules (scheduler.Scheduler).
type ScheduleSyncer interface {
	SyncFlow(ctx context.Context, flow *domain.Flow) ([]domain.Schedule, error)
}

// RunPublisher публикует run.requested (mq.Publisher).
type RunPublisher interface {
	PublishRunRequested(ctx context.Context, run *domain.Run) error
}

// defaultWaitTimeout — сколько синхронный запуск ждёт итога.
const defaultWaitTimeout = 5 * time.Minute

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	flows     FlowStore
	runs      RunStore
	schedules ScheduleStore
	syncer    ScheduleSyncer
	publisher RunPublisher
	manager   *runner.Manager
	logger    *slog.Logger

	waitTimeout time.Duration
}

// Config — конфигурация для создания Handler.
//
// Manager обязателен: он выполняет синхронные run и test-node.
// Без FlowStore и RunStore регистрируются только маршруты,
// которым не нужно хранилище (validate, execute, nodes/test).
type Config struct {
	Flows     FlowStore
	Runs      RunStore
	Schedules ScheduleStore
	Syncer    ScheduleSyncer
	Publisher RunPublisher
	Manager   *runner.Manager
	Logger    *slog.Logger

	// WaitTimeout — предел ожидания синхронного run (default: 5m).
	WaitTimeout time.Duration
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	manager := cfg.Manager
	if manager == nil {
		manager = runner.NewManager(runner.ManagerConfig{Logger: logger})
	}

	waitTimeout := cfg.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = defaultWaitTimeout
	}

	return &Handler{
		flows:       cfg.Flows,
		runs:        cfg.Runs,
		schedules:   cfg.Schedules,
		syncer:      cfg.Syncer,
		publisher:   cfg.Publisher,
		manager:     manager,
		logger:      logger,
		waitTimeout: waitTimeout,
	}
}
