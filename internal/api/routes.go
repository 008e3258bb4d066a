package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		RequestID(h.logger),
		Logging(h.logger),
	)
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, chain(fn))
	}

	// Без хранилища
	handle("POST /api/v1/flows/validate", h.ValidateFlow)
	handle("POST /api/v1/flows/execute", h.ExecuteFlow)
	handle("POST /api/v1/nodes/test", h.TestNode)

	// Flows
	if h.flows != nil {
		handle("GET /api/v1/flows", h.ListFlows)
		handle("GET /api/v1/flows/{id}", h.GetFlow)
		handle("PUT /api/v1/flows/{id}", h.SaveFlow)
		handle("DELETE /api/v1/flows/{id}", h.DeleteFlow)
	}

	// Runs
	if h.flows != nil && h.runs != nil {
		handle("POST /api/v1/flows/{id}/runs", h.CreateRun)
	}
	if h.runs != nil {
		handle("GET /api/v1/runs", h.ListRuns)
		handle("GET /api/v1/runs/{id}", h.GetRun)
	}
	handle("POST /api/v1/runs/{id}/cancel", h.CancelRun)

	// Schedules
	if h.schedules != nil {
		handle("GET /api/v1/schedules", h.ListSchedules)
	}
}
