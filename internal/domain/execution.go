package domain

import (
	"time"

	"github.com/google/uuid"
)

// Severity — уровень записи журнала выполнения.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityHTTP    Severity = "http"
)

// IsValid проверяет, что уровень известен.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError, SeverityHTTP:
		return true
	default:
		return false
	}
}

// LogEntry — запись журнала выполнения.
//
// Журнал только дополняется; порядок записей совпадает
// с порядком входа в узлы.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	NodeID    string    `json:"nodeId,omitempty"`
	Message   string    `json:"message"`
}

// Trigger — источник запуска run.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
	TriggerAPI      Trigger = "api"
)

// ExecutionResult — итог одного run.
type ExecutionResult struct {
	// RunID — идентификатор run.
	RunID uuid.UUID `json:"runId"`

	// FlowID — какой flow выполнялся.
	FlowID string `json:"flowId"`

	// Status — финальный статус.
	Status RunStatus `json:"status"`

	// Log — журнал выполнения.
	Log []LogEntry `json:"log"`

	// FinalVariables — снимок хранилища переменных на момент завершения.
	FinalVariables map[string]any `json:"finalVariables"`

	// Error — причина FAILED или CANCELLED.
	Error string `json:"error,omitempty"`

	// StartedAt, FinishedAt — границы выполнения.
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Duration возвращает продолжительность выполнения.
func (r *ExecutionResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Errors возвращает записи журнала с уровнем error.
func (r *ExecutionResult) Errors() []LogEntry {
	var out []LogEntry
	for _, e := range r.Log {
		if e.Severity == SeverityError {
			out = append(out, e)
		}
	}
	return out
}
