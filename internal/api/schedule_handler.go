package api

import (
	"net/http"
	"strconv"

	"github.com/shaiso/Flowline/internal/repo"
)

// ListSchedules возвращает расписания delay-узлов.
// GET /api/v1/schedules?flow_id=...&enabled=...
//
// Расписания не редактируются напрямую: они следуют
// за cron-директивами сохранённого flow.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.ScheduleFilter{
		FlowID: q.Get("flow_id"),
		Limit:  parseInt(q.Get("limit"), 50),
		Offset: parseInt(q.Get("offset"), 0),
	}
	if s := q.Get("enabled"); s != "" {
		enabled, err := strconv.ParseBool(s)
		if err != nil {
			BadRequest(w, "invalid enabled")
			return
		}
		filter.Enabled = &enabled
	}

	schedules, err := h.schedules.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ScheduleResponse, len(schedules))
	for i, s := range schedules {
		result[i] = ScheduleFromDomain(s)
	}
	List(w, result, len(result))
}
