package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/steps"
)

// Flow DTOs

// FlowSummary — flow в списке (без графа).
type FlowSummary struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	IsActive  bool       `json:"isActive"`
	Nodes     int        `json:"nodes"`
	Edges     int        `json:"edges"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// FlowSummaryFromDomain конвертирует domain.Flow в FlowSummary.
func FlowSummaryFromDomain(f domain.Flow) FlowSummary {
	return FlowSummary{
		ID:        f.ID,
		Name:      f.Name,
		IsActive:  f.IsActive,
		Nodes:     len(f.Nodes),
		Edges:     len(f.Edges),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// SaveFlowResponse — ответ на сохранение flow.
// Невалидный flow сохраняется (черновик редактора), проблемы
// возвращаются вместе с ним.
type SaveFlowResponse struct {
	Flow      *domain.Flow       `json:"flow"`
	Problems  []ProblemResponse  `json:"problems"`
	Schedules []ScheduleResponse `json:"schedules,omitempty"`
}

// ProblemResponse — одна проблема валидации.
type ProblemResponse struct {
	NodeID  string `json:"nodeId,omitempty"`
	EdgeID  string `json:"edgeId,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ProblemFromError конвертирует ошибку валидации в ProblemResponse.
func ProblemFromError(e *engine.ValidationError) ProblemResponse {
	return ProblemResponse{
		NodeID:  e.NodeID,
		EdgeID:  e.EdgeID,
		Field:   e.Field,
		Message: e.Error(),
	}
}

// ValidationResponse — итог проверки flow.
type ValidationResponse struct {
	Valid    bool              `json:"valid"`
	Problems []ProblemResponse `json:"problems"`
}

// Run DTOs

// CreateRunRequest — запрос на запуск сохранённого flow.
type CreateRunRequest struct {
	Variables      map[string]any `json:"variables,omitempty"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
}

// ExecuteFlowRequest — запуск присланного документа (кнопка "Run" редактора).
type ExecuteFlowRequest struct {
	Flow      *domain.Flow   `json:"flow"`
	Variables map[string]any `json:"variables,omitempty"`
}

// RunResponse — ответ с run.
type RunResponse struct {
	ID             uuid.UUID               `json:"id"`
	FlowID         string                  `json:"flowId"`
	Status         domain.RunStatus        `json:"status"`
	Trigger        domain.Trigger          `json:"trigger"`
	Variables      map[string]any          `json:"variables,omitempty"`
	StartedAt      *time.Time              `json:"startedAt,omitempty"`
	FinishedAt     *time.Time              `json:"finishedAt,omitempty"`
	DurationMs     int64                   `json:"durationMs"`
	Error          string                  `json:"error,omitempty"`
	IdempotencyKey string                  `json:"idempotencyKey,omitempty"`
	Result         *domain.ExecutionResult `json:"result,omitempty"`
	CreatedAt      time.Time               `json:"createdAt"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
// withResult=false отбрасывает журнал и переменные (списки).
func RunFromDomain(r domain.Run, withResult bool) RunResponse {
	resp := RunResponse{
		ID:             r.ID,
		FlowID:         r.FlowID,
		Status:         r.Status,
		Trigger:        r.Trigger,
		Variables:      r.Variables,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		DurationMs:     r.Duration().Milliseconds(),
		Error:          r.Error,
		IdempotencyKey: r.IdempotencyKey,
		CreatedAt:      r.CreatedAt,
	}
	if withResult {
		resp.Result = r.Result
	}
	return resp
}

// Node test DTOs

// TestNodeRequest — запрос "Test This Node".
//
// Узел передаётся либо целиком (Node), либо ссылкой на узел
// присланного flow (Flow + NodeID).
type TestNodeRequest struct {
	Node     *domain.Node   `json:"node,omitempty"`
	Flow     *domain.Flow   `json:"flow,omitempty"`
	NodeID   string         `json:"nodeId,omitempty"`
	Upstream map[string]any `json:"upstream,omitempty"`
}

// WriteResponse — запись в хранилище переменных.
type WriteResponse struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// TerminalResponse — сигнал stopJob.
type TerminalResponse struct {
	Status domain.RunStatus `json:"status"`
	Reason string           `json:"reason,omitempty"`
}

// OutcomeResponse — результат выполнения одного узла.
type OutcomeResponse struct {
	NodeID       string            `json:"nodeId"`
	EdgeSelector string            `json:"edgeSelector,omitempty"`
	Writes       []WriteResponse   `json:"writes"`
	Log          []domain.LogEntry `json:"log"`
	Terminal     *TerminalResponse `json:"terminal,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// OutcomeFromSteps конвертирует steps.Outcome в OutcomeResponse.
func OutcomeFromSteps(nodeID string, out *steps.Outcome, err error) OutcomeResponse {
	resp := OutcomeResponse{
		NodeID: nodeID,
		Writes: []WriteResponse{},
		Log:    []domain.LogEntry{},
	}
	if err != nil {
		resp.Error = err.Error()
	}
	if out == nil {
		return resp
	}

	resp.EdgeSelector = out.EdgeSelector
	for _, wr := range out.Writes {
		resp.Writes = append(resp.Writes, WriteResponse{Key: wr.Key, Value: wr.Value})
	}
	resp.Log = append(resp.Log, out.Log...)
	if out.Terminal != nil {
		resp.Terminal = &TerminalResponse{Status: out.Terminal.Status, Reason: out.Terminal.Reason}
	}
	return resp
}

// Schedule DTOs

// ScheduleResponse — ответ с schedule.
type ScheduleResponse struct {
	ID        uuid.UUID  `json:"id"`
	FlowID    string     `json:"flowId"`
	NodeID    string     `json:"nodeId"`
	CronExpr  string     `json:"cronExpression"`
	Timezone  string     `json:"timezone"`
	Enabled   bool       `json:"enabled"`
	NextDueAt *time.Time `json:"nextDueAt,omitempty"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	LastRunID *uuid.UUID `json:"lastRunId,omitempty"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s domain.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:        s.ID,
		FlowID:    s.FlowID,
		NodeID:    s.NodeID,
		CronExpr:  s.CronExpr,
		Timezone:  s.Timezone,
		Enabled:   s.Enabled,
		NextDueAt: s.NextDueAt,
		LastRunAt: s.LastRunAt,
		LastRunID: s.LastRunID,
	}
}
