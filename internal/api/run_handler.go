package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/runner"
	"github.com/shaiso/Flowline/internal/telemetry"
	"github.com/shaiso/Flowline/internal/xjson"
)

// ExecuteFlow выполняет присланный документ и возвращает итог.
// POST /api/v1/flows/execute
//
// Run выполняется в процессе API. Если итог не готов за WaitTimeout,
// возвращается 202 с run в статусе RUNNING.
func (h *Handler) ExecuteFlow(w http.ResponseWriter, r *http.Request) {
	var req ExecuteFlowRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Flow == nil {
		BadRequest(w, "flow is required")
		return
	}
	if problems := validationProblems(req.Flow); len(problems) > 0 {
		ValidationFailed(w, problems)
		return
	}

	run := domain.NewRun(req.Flow.ID, domain.TriggerManual, req.Variables)
	h.execute(w, r, req.Flow, run)
}

// CreateRun запускает сохранённый flow.
// POST /api/v1/flows/{id}/runs?wait=true
//
// Без wait run создаётся в PENDING и отдаётся worker'у через
// run.requested. С wait=true run выполняется здесь же, ответ содержит итог.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}

	flow, err := h.flows.Get(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	// Повтор запроса с тем же ключом возвращает существующий run
	if req.IdempotencyKey != "" {
		existing, err := h.runs.GetByIdempotencyKey(r.Context(), flow.ID, req.IdempotencyKey)
		if err == nil {
			Success(w, RunFromDomain(*existing, true))
			return
		}
		if !errors.Is(err, repo.ErrNotFound) {
			InternalError(w, h.logger, err)
			return
		}
	}

	if problems := validationProblems(flow); len(problems) > 0 {
		ValidationFailed(w, problems)
		return
	}

	run := domain.NewRun(flow.ID, domain.TriggerAPI, req.Variables)
	run.IdempotencyKey = req.IdempotencyKey

	if r.URL.Query().Get("wait") == "true" {
		// RUNNING до вставки: polling worker'а такой run не заберёт
		run.MarkRunning()
		if err := h.runs.Create(r.Context(), run); HandleRepoError(w, h.logger, err, "") {
			return
		}
		h.execute(w, r, flow, run)
		return
	}

	if err := h.runs.Create(r.Context(), run); HandleRepoError(w, h.logger, err, "") {
		return
	}

	logger := telemetry.WithRunID(telemetry.FromContext(r.Context()), run.ID.String())
	if h.publisher != nil {
		if err := h.publisher.PublishRunRequested(r.Context(), run); err != nil {
			// Run в БД: worker заберёт его polling'ом
			logger.Warn("failed to publish run.requested", "error", err)
		}
	}
	logger.Info("run requested", "flow_id", flow.ID)

	Accepted(w, RunFromDomain(*run, false))
}

// execute выполняет run через Manager и пишет ответ.
func (h *Handler) execute(w http.ResponseWriter, r *http.Request, flow *domain.Flow, run *domain.Run) {
	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()

	done, err := h.manager.Execute(ctx, flow, run)
	switch {
	case err == nil:
		Success(w, RunFromDomain(*done, true))

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		// Run продолжается; итог сохранят Recorders
		Accepted(w, RunResponse{ID: run.ID, FlowID: run.FlowID, Status: domain.RunStatusRunning, Trigger: run.Trigger})

	case errors.Is(err, runner.ErrManagerStopped):
		Error(w, http.StatusServiceUnavailable, ErrCodeInvalidState, "server is shutting down")

	case errors.Is(err, runner.ErrRunAlreadyActive):
		Conflict(w, err.Error())

	default:
		ValidationFailed(w, []ProblemResponse{{Message: err.Error()}})
	}
}

// ListRuns возвращает список runs с фильтрацией.
// GET /api/v1/runs?flow_id=...&status=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.RunFilter{
		FlowID: q.Get("flow_id"),
		Limit:  parseInt(q.Get("limit"), 50),
		Offset: parseInt(q.Get("offset"), 0),
	}
	if s := q.Get("status"); s != "" {
		filter.Status = domain.ParseRunStatus(strings.ToUpper(s))
		if filter.Status == "" {
			BadRequest(w, "invalid status")
			return
		}
	}

	runs, err := h.runs.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run, false)
	}
	List(w, result, len(result))
}

// GetRun возвращает run вместе с журналом выполнения.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runs.Get(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}
	Success(w, RunFromDomain(*run, true))
}

// CancelRun отменяет run.
// POST /api/v1/runs/{id}/cancel
//
// Run этого процесса отменяется сразу. Иначе run помечается
// отменённым в БД, и его останавливает worker.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if err := h.manager.Cancel(id); err == nil {
		Accepted(w, map[string]any{"id": id, "status": domain.RunStatusCancelled})
		return
	}

	if h.runs == nil {
		NotFound(w, "run not found")
		return
	}

	err = h.runs.RequestCancel(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	run, err := h.runs.Get(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}
	Accepted(w, RunFromDomain(*run, false))
}

// decodeOptionalBody декодирует тело, если оно есть.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := xjson.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}
