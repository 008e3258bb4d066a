package runner

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/steps"
)

// runState — состояние одного run в памяти.
//
// Создаётся в начале Run и живёт до построения ExecutionResult.
// Хранилище и журнал принадлежат только этому run.
type runState struct {
	runID     uuid.UUID
	flow      *domain.Flow
	graph     *engine.Graph
	store     *engine.Store
	log       *engine.LogSink
	logger    *slog.Logger
	now       func() time.Time
	startedAt time.Time

	// visited — узлы, выполненные вне итераций loop.
	visited map[string]bool

	// executed — счётчик выполненных узлов для MaxSteps.
	executed int
	maxSteps int
}

// haltSignal — stopJob остановил run. Поднимается по стеку обхода,
// в том числе из тела loop, как ошибка.
type haltSignal struct {
	nodeID   string
	terminal *steps.Terminal
}

func (h *haltSignal) Error() string {
	return fmt.Sprintf("run stopped by %s (%s)", h.nodeID, h.terminal.Status)
}

// seed заполняет хранилище переменными запуска и system.*.
func (s *runState) seed(vars map[string]any) error {
	now := s.startedAt.UTC()
	system := map[string]any{
		"flowId":      s.flow.ID,
		"flowName":    s.flow.Name,
		"executionId": s.runID.String(),
		"startedAt":   now.Format(time.RFC3339),
		"date":        now.Format(time.DateOnly),
		"time":        now.Format(time.TimeOnly),
		"timestamp":   now.UnixMilli(),
	}

	seed := map[string]any{engine.RootSystem: system}
	if len(vars) > 0 {
		seed[engine.RootVars] = vars
	}
	return s.store.Merge(seed)
}

// countStep учитывает выполнение узла и проверяет предел.
func (s *runState) countStep() error {
	s.executed++
	if s.maxSteps > 0 && s.executed > s.maxSteps {
		return fmt.Errorf("%w: limit %d", engine.ErrMaxSteps, s.maxSteps)
	}
	return nil
}

// emitter возвращает функцию немедленной записи в журнал от имени узла.
func (s *runState) emitter(nodeID string) func(domain.Severity, string) {
	return func(sev domain.Severity, msg string) {
		s.log.Add(sev, nodeID, msg)
	}
}

// apply переносит журнал и записи Outcome в run.
func (s *runState) apply(scope *engine.Store, out *steps.Outcome) error {
	for _, e := range out.Log {
		s.log.Append(e)
	}
	for _, w := range out.Writes {
		if err := scope.Set(w.Key, w.Value); err != nil {
			return err
		}
	}
	return nil
}

// result строит ExecutionResult.
func (s *runState) result(status domain.RunStatus, reason string) *domain.ExecutionResult {
	return &domain.ExecutionResult{
		RunID:          s.runID,
		FlowID:         s.flow.ID,
		Status:         status,
		Log:            s.log.Entries(),
		FinalVariables: s.store.Snapshot(),
		Error:          reason,
		StartedAt:      s.startedAt,
		FinishedAt:     s.now(),
	}
}
