package scheduler

import (
	"fmt"
	"time"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
)

// DefaultTimezone — часовой пояс расписания, если delay-узел его не задал.
const DefaultTimezone = "UTC"

// SchedulesFor строит schedules из delay-узлов flow с типом cron.
//
// NextDueAt считается от from. Расписания неактивного flow
// создаются выключенными. Узлы с невалидным выражением
// возвращаются в errs и в результат не попадают.
func SchedulesFor(flow *domain.Flow, from time.Time) (schedules []domain.Schedule, errs []error) {
	for _, node := range flow.CronDirectives() {
		cfg := node.Config.(*domain.DelayConfig)

		tz := cfg.Timezone
		if tz == "" {
			tz = DefaultTimezone
		}
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("node %s: unknown timezone %q", node.ID, tz))
			continue
		}

		next, err := engine.NextCron(cfg.CronExpression, tz, from)
		if err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", node.ID, err))
			continue
		}

		schedules = append(schedules, domain.Schedule{
			FlowID:    flow.ID,
			NodeID:    node.ID,
			CronExpr:  cfg.CronExpression,
			Timezone:  tz,
			Enabled:   flow.IsActive && !node.Skipped,
			NextDueAt: &next,
		})
	}
	return schedules, errs
}

// NextDue вычисляет следующий запуск schedule после from.
func NextDue(s *domain.Schedule, from time.Time) (time.Time, error) {
	return engine.NextCron(s.CronExpr, s.Timezone, from)
}

// IdempotencyKey — ключ run для конкретного срабатывания schedule:
// "{schedule_id}_{next_due_unix}".
func IdempotencyKey(s *domain.Schedule) string {
	return fmt.Sprintf("%s_%d", s.ID, s.NextDueAt.Unix())
}
