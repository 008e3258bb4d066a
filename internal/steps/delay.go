package steps

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
)

// WaitFunc приостанавливает run на d или до отмены ctx.
type WaitFunc func(ctx context.Context, d time.Duration) error

// DelayStep — узел задержки.
//
// seconds/minutes/hours приостанавливают run на время value.
// Ожидание не блокирует процесс: run ждёт таймер в своей горутине
// и прерывается отменой контекста.
//
// cron не приостанавливает run: это директива для планировщика,
// узел сразу переходит к следующему ребру.
//
// Конфигурация:
//
//	{"delayType": "seconds", "value": "{{vars.pause}}"}
//	{"delayType": "cron", "cronExpression": "0 9 * * 1-5", "timezone": "Europe/Moscow"}
type DelayStep struct {
	wait WaitFunc
}

// NewDelayStep создаёт DelayStep с таймером.
func NewDelayStep() *DelayStep {
	return &DelayStep{wait: sleep}
}

// NewDelayStepWithWait создаёт DelayStep с заданной функцией ожидания (тесты).
func NewDelayStepWithWait(wait WaitFunc) *DelayStep {
	return &DelayStep{wait: wait}
}

// Kind возвращает тип узла.
func (s *DelayStep) Kind() domain.NodeKind {
	return domain.KindDelay
}

// Execute выполняет задержку.
func (s *DelayStep) Execute(ctx context.Context, req *Request) (*Outcome, error) {
	cfg, err := config[*domain.DelayConfig](req.Node)
	if err != nil {
		return nil, err
	}
	out := NewOutcome(req.Node.ID)

	if cfg.DelayType == domain.DelayCron {
		return s.schedule(cfg, req, out)
	}

	// 1. Вычисляем длительность
	duration, err := s.parseDuration(cfg, req.Vars, out)
	if err != nil {
		return out, err
	}

	// 2. Ждём
	out.Addf(domain.SeverityInfo, "Waiting %s", duration)
	if err := s.wait(ctx, duration); err != nil {
		return out, fmt.Errorf("%w: %v", engine.ErrRunCancelled, err)
	}

	out.Set(engine.ResultKey(req.Node.ID), map[string]any{
		"delayMs": duration.Milliseconds(),
	})
	return out, nil
}

// schedule проверяет cron-выражение и пишет время следующего запуска.
func (s *DelayStep) schedule(cfg *domain.DelayConfig, req *Request, out *Outcome) (*Outcome, error) {
	next, err := engine.NextCron(cfg.CronExpression, cfg.Timezone, req.now())
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidDelay, err)
	}
	out.Set(engine.ResultKey(req.Node.ID), map[string]any{
		"cronExpression": cfg.CronExpression,
		"nextRunAt":      next.Format(time.RFC3339),
	})
	out.Addf(domain.SeverityInfo, "Cron schedule %q, next run at %s", cfg.CronExpression, next.Format(time.RFC3339))
	return out, nil
}

// parseDuration разрешает value и умножает на единицу delayType.
func (s *DelayStep) parseDuration(cfg *domain.DelayConfig, vars *engine.Store, out *Outcome) (time.Duration, error) {
	unit := cfg.DelayType.Unit()
	if unit == 0 {
		return 0, fmt.Errorf("%w: unknown delayType %q", ErrInvalidDelay, cfg.DelayType)
	}

	value, err := engine.ResolveValue(cfg.Value, vars)
	warnUnresolved(out, err)

	n, ok := toNumber(value)
	if !ok || n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDelay, engine.Stringify(value))
	}
	ns := n * float64(unit)
	if ns >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q %s is too long", ErrInvalidDelay, engine.Stringify(value), cfg.DelayType)
	}
	return time.Duration(ns), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
