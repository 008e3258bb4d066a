package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — запись о запуске flow в хранилище.
//
// Run создаётся когда:
// - Пользователь запускает flow вручную (через API/CLI)
// - Scheduler создаёт run по cron-директиве delay-узла
//
// Пока run в PENDING, его ждёт worker. После завершения
// в Result сохраняется ExecutionResult.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// FlowID — ссылка на flow, который выполняется.
	FlowID string `json:"flow_id"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Trigger — источник запуска.
	Trigger Trigger `json:"trigger"`

	// Variables — начальные переменные (vars.*), переданные при запуске.
	Variables map[string]any `json:"variables,omitempty"`

	// StartedAt — время начала выполнения (когда статус стал RUNNING).
	// Nil, если run ещё не начался.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения (успешного или с ошибкой).
	// Nil, если run ещё выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// IdempotencyKey — ключ идемпотентности для предотвращения дубликатов.
	// Для scheduled runs: "{schedule_id}_{next_due_unix}"
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// Result — итог выполнения. Nil, пока run не завершён.
	Result *ExecutionResult `json:"result,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт run в статусе PENDING.
func NewRun(flowID string, trigger Trigger, vars map[string]any) *Run {
	return &Run{
		ID:        uuid.New(),
		FlowID:    flowID,
		Status:    RunStatusPending,
		Trigger:   trigger,
		Variables: vars,
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkCancelled переводит run в статус CANCELLED.
func (r *Run) MarkCancelled() {
	now := time.Now()
	r.Status = RunStatusCancelled
	r.FinishedAt = &now
}

// Complete переносит итог выполнения в run.
func (r *Run) Complete(res *ExecutionResult) {
	started := res.StartedAt
	finished := res.FinishedAt
	r.Status = res.Status
	r.StartedAt = &started
	r.FinishedAt = &finished
	r.Error = res.Error
	r.Result = res
}
