// Package scheduler запускает flows по расписанию.
//
// Delay-узел с типом cron внутри run не ждёт, а объявляет расписание.
// SyncFlow переносит такие узлы сохранённого flow в schedules,
// Tick создаёт PENDING runs для schedules с истекшим next_due_at.
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Schedules: scheduleRepo,
//	    Runs:      runRepo,
//	    Flows:     flowRepo,
//	    Publisher: publisher, // опционально
//	    Logger:    logger,
//	})
//
//	if err := sched.Tick(ctx); err != nil {
//	    logger.Error("scheduler tick failed", "error", err)
//	}
//
// Leader election делается в cmd/flowline-scheduler через
// pg_try_advisory_lock: Tick вызывает только лидер.
package scheduler
