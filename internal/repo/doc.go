// Package repo — слой хранения Flowline в PostgreSQL (pgx).
//
// Таблицы:
//   - flows     — документы flow целиком (JSONB)
//   - runs      — запуски и их ExecutionResult (JSONB)
//   - schedules — расписания delay-узлов с типом cron
//
// Схема лежит в schema.sql и применяется через EnsureSchema.
//
// AdvisoryLock выбирает лидера среди экземпляров scheduler'а.
package repo
