// Package worker выполняет runs вне процесса API.
//
// Источники runs:
//   - runs.requested в RabbitMQ (API, scheduler)
//   - PENDING runs в БД (polling fallback, если сообщение потерялось)
//
// Run забирается атомарно (RunRepo.Claim) и выполняется через
// runner.Manager. Итог сохраняют Recorders менеджера: RunRepo
// и mq.Publisher (run.completed).
//
// Отмена: API помечает run CANCELLED в БД, worker замечает это
// при очередной проверке и отменяет контекст run.
package worker
