package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/repo"
)

// ScheduleStore — хранилище schedules (repo.ScheduleRepo).
type ScheduleStore interface {
	Upsert(ctx context.Context, s *domain.Schedule) error
	Update(ctx context.Context, s *domain.Schedule) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)
	Prune(ctx context.Context, flowID string, keepNodeIDs []string) (int64, error)
}

// RunStore — хранилище runs (repo.RunRepo).
type RunStore interface {
	CreateIdempotent(ctx context.Context, run *domain.Run) (bool, error)
	GetByIdempotencyKey(ctx context.Context, flowID, key string) (*domain.Run, error)
}

// FlowStore — хранилище документов flow (repo.FlowRepo).
type FlowStore interface {
	Get(ctx context.Context, id string) (*domain.Flow, error)
}

// RunPublisher публикует run.requested (mq.Publisher).
type RunPublisher interface {
	PublishRunRequested(ctx context.Context, run *domain.Run) error
}

// Scheduler — планировщик, создающий runs по cron-расписаниям delay-узлов.
type Scheduler struct {
	schedules ScheduleStore
	runs      RunStore
	flows     FlowStore
	publisher RunPublisher
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules ScheduleStore
	Runs      RunStore
	Flows     FlowStore
	Publisher RunPublisher // опционально: без него worker найдёт run polling'ом
	Logger    *slog.Logger
	BatchSize int // количество schedules за один тик (default: 100)
	Now       func() time.Time
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		schedules: cfg.Schedules,
		runs:      cfg.Runs,
		flows:     cfg.Flows,
		publisher: cfg.Publisher,
		logger:    logger,
		batchSize: batchSize,
		now:       now,
	}
}

// SyncFlow приводит schedules flow в соответствие с его delay-узлами.
//
// Вызывается после сохранения flow. Узлы с неизменным расписанием
// сохраняют next_due_at, schedules удалённых узлов удаляются.
func (s *Scheduler) SyncFlow(ctx context.Context, flow *domain.Flow) ([]domain.Schedule, error) {
	schedules, errs := SchedulesFor(flow, s.now())
	for _, err := range errs {
		s.logger.Warn("skipping cron directive", "flow_id", flow.ID, "error", err)
	}

	keep := make([]string, 0, len(schedules))
	for i := range schedules {
		if err := s.schedules.Upsert(ctx, &schedules[i]); err != nil {
			return nil, fmt.Errorf("upsert schedule for node %s: %w", schedules[i].NodeID, err)
		}
		keep = append(keep, schedules[i].NodeID)
	}

	pruned, err := s.schedules.Prune(ctx, flow.ID, keep)
	if err != nil {
		return nil, err
	}

	s.logger.Info("flow schedules synced",
		"flow_id", flow.ID,
		"schedules", len(schedules),
		"pruned", pruned,
	)
	return schedules, nil
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due schedules (enabled=true, next_due_at <= now)
// 2. Для каждого создаёт PENDING run (идемпотентно)
// 3. Сдвигает next_due_at
// 4. Публикует run.requested
//
// Ошибки одного schedule не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()

	schedules, err := s.schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}
	if len(schedules) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(schedules))

	var processed, created int
	for i := range schedules {
		sched := &schedules[i]

		runCreated, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"flow_id", sched.FlowID,
				"node_id", sched.NodeID,
				"error", err,
			)
			continue
		}

		processed++
		if runCreated {
			created++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(schedules),
		"processed", processed,
		"runs_created", created,
	)
	return nil
}

// processSchedule обрабатывает один schedule.
// Возвращает true, если run был создан (не был дубликатом).
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	logger := s.logger.With("schedule_id", sched.ID, "flow_id", sched.FlowID)

	// 1. Flow должен существовать и быть активным
	flow, err := s.flows.Get(ctx, sched.FlowID)
	if errors.Is(err, repo.ErrNotFound) {
		logger.Warn("flow not found for schedule, disabling")
		return false, s.disable(ctx, sched)
	}
	if err != nil {
		return false, fmt.Errorf("get flow: %w", err)
	}

	// 2. Следующее срабатывание считается от now: пропущенные не догоняются
	nextDue, err := NextDue(sched, now)
	if err != nil {
		logger.Error("invalid cron expression, disabling schedule", "error", err)
		return false, s.disable(ctx, sched)
	}

	if !flow.IsActive {
		logger.Debug("flow inactive, skipping due schedule")
		sched.NextDueAt = &nextDue
		sched.UpdatedAt = now
		return false, s.schedules.Update(ctx, sched)
	}

	// 3. Run с ключом идемпотентности: "{schedule_id}_{next_due_unix}"
	run := domain.NewRun(sched.FlowID, domain.TriggerSchedule, nil)
	run.IdempotencyKey = IdempotencyKey(sched)
	run.CreatedAt = now

	created, err := s.runs.CreateIdempotent(ctx, run)
	if err != nil {
		return false, fmt.Errorf("create run: %w", err)
	}

	runID := run.ID
	if created {
		logger.Info("created run from schedule", "run_id", run.ID, "node_id", sched.NodeID)
	} else {
		existing, err := s.runs.GetByIdempotencyKey(ctx, sched.FlowID, run.IdempotencyKey)
		if err != nil {
			return false, fmt.Errorf("check idempotency: %w", err)
		}
		logger.Debug("run already exists (idempotency)",
			"run_id", existing.ID,
			"idempotency_key", run.IdempotencyKey,
		)
		runID = existing.ID
	}

	// 4. Сдвигаем расписание
	sched.RecordRun(runID, nextDue, now)
	if err := s.schedules.Update(ctx, sched); err != nil {
		return created, fmt.Errorf("update schedule: %w", err)
	}

	// 5. Событие для worker; при ошибке run подберёт polling
	if s.publisher != nil && created {
		if err := s.publisher.PublishRunRequested(ctx, run); err != nil {
			logger.Warn("failed to publish run.requested", "run_id", run.ID, "error", err)
		}
	}

	return created, nil
}

func (s *Scheduler) disable(ctx context.Context, sched *domain.Schedule) error {
	sched.Enabled = false
	sched.UpdatedAt = s.now()
	return s.schedules.Update(ctx, sched)
}
