package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/runner"
	"github.com/shaiso/Flowline/internal/steps"
	"github.com/shaiso/Flowline/internal/telemetry"
)

// TestNode выполняет один узел вне графа ("Test This Node").
// POST /api/v1/nodes/test
//
// Ошибка выполнения узла — это результат теста (200 с полем error),
// а не ошибка запроса. Невалидная конфигурация узла — 422.
func (h *Handler) TestNode(w http.ResponseWriter, r *http.Request) {
	var req TestNodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()

	var (
		out    *steps.Outcome
		err    error
		nodeID string
	)
	switch {
	case req.Node != nil:
		nodeID = req.Node.ID
		out, err = h.manager.Runner().TestNode(ctx, req.Node, req.Upstream)
	case req.Flow != nil && req.NodeID != "":
		nodeID = req.NodeID
		out, err = h.manager.Runner().TestFlowNode(ctx, req.Flow, req.NodeID, req.Upstream)
	default:
		BadRequest(w, "node or flow with nodeId is required")
		return
	}

	logger := telemetry.WithNodeID(telemetry.FromContext(r.Context()), nodeID)
	if err != nil {
		logger.Info("node test failed", "error", err)
	} else {
		logger.Debug("node tested")
	}

	var ve *engine.ValidationError
	switch {
	case errors.As(err, &ve):
		ValidationFailed(w, []ProblemResponse{ProblemFromError(ve)})
	case errors.Is(err, runner.ErrNodeNotFound):
		NotFound(w, err.Error())
	default:
		Success(w, OutcomeFromSteps(nodeID, out, err))
	}
}
