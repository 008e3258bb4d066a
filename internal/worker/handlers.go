package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/mq"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/telemetry"
)

// recordTimeout — таймаут записи run, отклонённого до старта.
const recordTimeout = 10 * time.Second

// handleRunRequested обрабатывает сообщение из очереди runs.requested.
func (w *Worker) handleRunRequested(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.RunRequestedPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse run.requested payload", "error", err)
		return err
	}

	w.logger.Debug("received run.requested event",
		"run_id", payload.RunID,
		"flow_id", payload.FlowID,
	)

	if err := w.processRun(ctx, payload.RunID); err != nil {
		// Ожидаемые ситуации — ack
		if errors.Is(err, ErrRunNotFound) || errors.Is(err, ErrRunNotPending) {
			w.logger.Debug("run not processed", "run_id", payload.RunID, "reason", err)
			return nil
		}
		return err
	}
	return nil
}

// processRun забирает run и запускает его в Manager.
//
// Возвращается сразу после старта: итог сохраняют Recorders менеджера.
// Если свободных слотов нет, ждёт освобождения.
func (w *Worker) processRun(ctx context.Context, runID uuid.UUID) error {
	// 1. Загружаем run из БД
	run, err := w.runs.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return fmt.Errorf("get run: %w", err)
	}
	if run.Status != domain.RunStatusPending {
		return ErrRunNotPending
	}

	// 2. Ждём свободный слот
	select {
	case w.slots <- struct{}{}:
	case <-ctx.Done():
		return ErrWorkerStopped
	}
	started := false
	defer func() {
		if !started {
			<-w.slots
		}
	}()

	// 3. Забираем run атомарно
	if err := w.runs.Claim(ctx, run.ID); err != nil {
		if errors.Is(err, repo.ErrInvalidState) || errors.Is(err, repo.ErrNotFound) {
			return ErrRunNotPending
		}
		return fmt.Errorf("claim run: %w", err)
	}

	logger := telemetry.WithFlowID(telemetry.WithRunID(w.logger, run.ID.String()), run.FlowID)

	// 4. Загружаем flow
	flow, err := w.flows.Get(ctx, run.FlowID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("get flow: %w", err)
		}
		err = fmt.Errorf("%w: %s", ErrFlowNotFound, run.FlowID)
		logger.Warn("flow of run not found", "error", err)
		return w.reject(run, err)
	}

	// 5. Запуск; невалидный flow сразу даёт FAILED
	if err := w.manager.Start(flow, run); err != nil {
		logger.Warn("run rejected", "error", err)
		return w.reject(run, err)
	}
	started = true

	logger.Info("run started", "trigger", run.Trigger)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.slots }()
		_, _ = w.manager.Wait(context.Background(), run.ID)
	}()
	return nil
}

// reject сохраняет run, который не удалось запустить, как FAILED.
func (w *Worker) reject(run *domain.Run, cause error) error {
	now := time.Now()
	if run.StartedAt == nil {
		run.StartedAt = &now
	}
	run.Status = domain.RunStatusFailed
	run.Error = cause.Error()
	run.FinishedAt = &now

	telemetry.RunsTotal.WithLabelValues(run.Status.String()).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := w.runs.RecordRun(ctx, run); err != nil {
		return fmt.Errorf("record rejected run: %w", err)
	}
	return nil
}
