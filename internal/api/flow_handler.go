package api

import (
	"net/http"
	"strconv"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/telemetry"
)

// ListFlows возвращает список flows.
// GET /api/v1/flows?active=true&limit=...&offset=...
func (h *Handler) ListFlows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.FlowFilter{
		ActiveOnly: q.Get("active") == "true",
		Limit:      parseInt(q.Get("limit"), 50),
		Offset:     parseInt(q.Get("offset"), 0),
	}

	flows, err := h.flows.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]FlowSummary, len(flows))
	for i, f := range flows {
		result[i] = FlowSummaryFromDomain(f)
	}
	List(w, result, len(result))
}

// GetFlow возвращает документ flow.
// GET /api/v1/flows/{id}
func (h *Handler) GetFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := h.flows.Get(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}
	Success(w, flow)
}

// SaveFlow создаёт или заменяет документ flow.
// PUT /api/v1/flows/{id}
//
// Невалидный документ сохраняется как черновик, проблемы
// возвращаются в ответе. Расписания синхронизируются только
// для валидного flow.
func (h *Handler) SaveFlow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var flow domain.Flow
	if !decodeBody(w, r, &flow) {
		return
	}
	switch {
	case flow.ID == "":
		flow.ID = id
	case flow.ID != id:
		BadRequest(w, "flow id in body does not match path")
		return
	}

	if err := h.flows.Save(r.Context(), &flow); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	resp := SaveFlowResponse{Flow: &flow, Problems: validationProblems(&flow)}

	if len(resp.Problems) == 0 && h.syncer != nil {
		schedules, err := h.syncer.SyncFlow(r.Context(), &flow)
		if err != nil {
			// Flow уже сохранён: расписание догонит следующее сохранение
			telemetry.FromContext(r.Context()).Error("failed to sync schedules", "flow_id", flow.ID, "error", err)
		}
		for _, s := range schedules {
			resp.Schedules = append(resp.Schedules, ScheduleFromDomain(s))
		}
	}

	Success(w, resp)
}

// DeleteFlow удаляет flow и его расписания.
// DELETE /api/v1/flows/{id}
func (h *Handler) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	err := h.flows.Delete(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}
	NoContent(w)
}

// ValidateFlow проверяет присланный документ без сохранения.
// POST /api/v1/flows/validate
func (h *Handler) ValidateFlow(w http.ResponseWriter, r *http.Request) {
	var flow domain.Flow
	if !decodeBody(w, r, &flow) {
		return
	}

	problems := validationProblems(&flow)
	Success(w, ValidationResponse{Valid: len(problems) == 0, Problems: problems})
}

// validationProblems собирает проблемы flow в формате API.
func validationProblems(flow *domain.Flow) []ProblemResponse {
	problems := []ProblemResponse{}
	for _, p := range engine.Report(flow) {
		problems = append(problems, ProblemFromError(p))
	}
	return problems
}

// parseInt парсит строку в int с дефолтным значением.
func parseInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
