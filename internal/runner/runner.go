package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/steps"
	"github.com/shaiso/Flowline/internal/telemetry"
)

// DefaultMaxSteps — предел выполненных узлов за один run.
const DefaultMaxSteps = 10000

// Runner выполняет flow.
//
// Один вызов Run — один run: узлы выполняются строго последовательно,
// каждый видит записи всех узлов, выполненных до него. Разные run
// не делят состояние, поэтому Run можно вызывать конкурентно.
type Runner struct {
	registry  *steps.Registry
	evaluator engine.Evaluator
	logger    *slog.Logger
	now       func() time.Time
	maxSteps  int
}

// Config — конфигурация Runner.
type Config struct {
	// Registry — исполнители узлов (по умолчанию steps.DefaultRegistry).
	Registry *steps.Registry

	// Evaluator — песочница выражений (по умолчанию engine.NewEvaluator).
	Evaluator engine.Evaluator

	// Logger — логгер; записи журнала run дублируются в него.
	Logger *slog.Logger

	// Now — источник времени (тесты).
	Now func() time.Time

	// MaxSteps — предел выполненных узлов за run (default: 10000).
	MaxSteps int
}

// Options — параметры одного run.
type Options struct {
	// RunID — идентификатор run (пустой — сгенерировать).
	RunID uuid.UUID

	// Variables — начальные vars.*.
	Variables map[string]any
}

// New создаёт Runner.
func New(cfg Config) *Runner {
	registry := cfg.Registry
	if registry == nil {
		registry = steps.DefaultRegistry(nil)
	}

	evaluator := cfg.Evaluator
	if evaluator == nil {
		evaluator = engine.NewEvaluator(engine.EvaluatorConfig{})
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	return &Runner{
		registry:  registry,
		evaluator: evaluator,
		logger:    logger,
		now:       now,
		maxSteps:  maxSteps,
	}
}

// Run выполняет flow и возвращает итог.
//
// Ошибка возвращается только если flow не прошёл валидацию:
// в этом случае run не начинается. Ошибки узлов, отмена и stopJob
// отражаются в статусе ExecutionResult.
func (r *Runner) Run(ctx context.Context, flow *domain.Flow, opts Options) (*domain.ExecutionResult, error) {
	// 1. Снимок flow: правки во время run не видны
	snapshot, err := flow.Clone()
	if err != nil {
		return nil, err
	}

	// 2. Валидация до старта
	graph, err := engine.Compile(snapshot)
	if err != nil {
		return nil, err
	}

	// 3. Состояние run
	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	logger := telemetry.WithRunID(telemetry.WithFlowID(r.logger, snapshot.ID), runID.String())
	st := &runState{
		runID:     runID,
		flow:      snapshot,
		graph:     graph,
		store:     engine.NewStore(),
		log:       engine.NewLogSink(logger, r.now),
		logger:    logger,
		now:       r.now,
		startedAt: r.now(),
		visited:   make(map[string]bool),
		maxSteps:  r.maxSteps,
	}
	if err := st.seed(opts.Variables); err != nil {
		return nil, fmt.Errorf("seed variables: %w", err)
	}

	telemetry.ActiveRuns.Inc()
	defer telemetry.ActiveRuns.Dec()

	st.log.Add(domain.SeverityInfo, "", fmt.Sprintf("Run started: %s", flowTitle(snapshot)))

	// 4. Обход от entry-узлов в порядке объявления
	var runErr error
	for _, entry := range graph.Entries() {
		if runErr = r.walk(ctx, st, entry.ID, st.store, "", st.visited); runErr != nil {
			break
		}
	}

	// 5. Итог
	res := r.finish(st, runErr)
	telemetry.RunsTotal.WithLabelValues(res.Status.String()).Inc()
	telemetry.RunDuration.Observe(res.Duration().Seconds())

	logger.Info("run finished",
		"status", res.Status,
		"nodes_executed", st.executed,
		"duration", res.Duration(),
	)
	return res, nil
}

// walk идёт по графу от узла start, пока путь не закончится.
//
// Внутри тела loop (loopID != "") путь заканчивается на возврате
// в loop или на выходе за пределы тела. visited — узлы, уже
// выполненные в этом обходе: повторный вход завершает путь.
func (r *Runner) walk(ctx context.Context, st *runState, start string, scope *engine.Store, loopID string, visited map[string]bool) error {
	for id := start; id != ""; {
		if loopID != "" && (id == loopID || !st.graph.InBody(loopID, id)) {
			return nil
		}
		if visited[id] {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}

		node, _ := st.graph.Node(id)
		visited[id] = true
		if err := st.countStep(); err != nil {
			st.log.Add(domain.SeverityError, id, err.Error())
			return err
		}

		// Пропущенный узел: без исполнителя, по ребру по умолчанию
		if node.Skipped {
			st.log.Add(domain.SeverityInfo, id, "Node skipped")
			telemetry.NodeExecutions.WithLabelValues(string(node.Kind), telemetry.NodeResultSkipped).Inc()
			id, _ = st.graph.Next(id, defaultHandle(node))
			continue
		}

		handle, err := r.execute(ctx, st, node, scope)
		if err != nil {
			if !node.ContinueOnError || isControl(err) {
				return err
			}
			st.log.Add(domain.SeverityWarning, id, "Continuing after error")
			handle = defaultHandle(node)
		}

		next, ok := st.graph.Next(id, handle)
		if !ok {
			return nil
		}
		id = next
	}
	return nil
}

// execute выполняет один узел и применяет его Outcome.
// Возвращает handle выбранного ребра.
func (r *Runner) execute(ctx context.Context, st *runState, node *domain.Node, scope *engine.Store) (string, error) {
	step, err := r.registry.Get(node.Kind)
	if err != nil {
		return "", r.fail(st, node, err)
	}

	st.log.Add(domain.SeverityInfo, node.ID, fmt.Sprintf("Running %s (%s)", nodeTitle(node), node.Kind))

	req := &steps.Request{
		Node:      node,
		Vars:      scope,
		Evaluator: r.evaluator,
		Emit:      st.emitter(node.ID),
		Now:       r.now,
	}
	if node.Kind == domain.KindLoop {
		req.RunBody = r.bodyRunner(st, node.ID)
	}

	out, err := step.Execute(ctx, req)

	// После отмены записи не применяются
	if ctxErr := ctx.Err(); ctxErr != nil || errors.Is(err, engine.ErrRunCancelled) {
		return "", cancelled(errors.Join(ctxErr, err))
	}
	var halt *haltSignal
	if errors.As(err, &halt) || errors.Is(err, engine.ErrMaxSteps) {
		return "", err
	}

	if out == nil {
		out = steps.NewOutcome(node.ID)
	}
	if applyErr := st.apply(scope, out); applyErr != nil && err == nil {
		err = applyErr
	}
	if err != nil {
		return "", r.fail(st, node, err)
	}

	telemetry.NodeExecutions.WithLabelValues(string(node.Kind), telemetry.NodeResultOK).Inc()

	if out.Terminal != nil {
		return "", &haltSignal{nodeID: node.ID, terminal: out.Terminal}
	}
	return out.EdgeSelector, nil
}

// fail оборачивает ошибку в NodeError и пишет её в журнал.
// Ошибка узла из тела loop уже записана этим узлом.
func (r *Runner) fail(st *runState, node *domain.Node, err error) error {
	err = engine.NewNodeError(node, err)

	var ne *engine.NodeError
	if errors.As(err, &ne) && ne.NodeID == node.ID {
		st.log.Add(domain.SeverityError, node.ID, ne.Err.Error())
	}
	telemetry.NodeExecutions.WithLabelValues(string(node.Kind), telemetry.NodeResultError).Inc()
	return err
}

// bodyRunner выполняет тело loop по ребру body.
// Каждая итерация обходит тело со своим visited.
func (r *Runner) bodyRunner(st *runState, loopID string) steps.BodyRunner {
	return func(ctx context.Context, scope *engine.Store) error {
		start, ok := st.graph.Next(loopID, domain.HandleBody)
		if !ok {
			return nil
		}
		return r.walk(ctx, st, start, scope, loopID, make(map[string]bool))
	}
}

// finish переводит итог обхода в ExecutionResult.
func (r *Runner) finish(st *runState, err error) *domain.ExecutionResult {
	var halt *haltSignal

	switch {
	case err == nil:
		st.log.Add(domain.SeveritySuccess, "", "Run completed")
		return st.result(domain.RunStatusSucceeded, "")

	case errors.As(err, &halt):
		reason := halt.terminal.Reason
		if halt.terminal.Status != domain.RunStatusSucceeded && reason == "" {
			reason = fmt.Sprintf("stopped by %s", halt.nodeID)
		}
		st.log.Add(domain.SeverityInfo, "", fmt.Sprintf("Run stopped by %s", halt.nodeID))
		return st.result(halt.terminal.Status, reason)

	case errors.Is(err, engine.ErrRunCancelled):
		st.log.Add(domain.SeverityError, "", "Run cancelled")
		return st.result(domain.RunStatusCancelled, engine.ErrRunCancelled.Error())

	default:
		st.log.Add(domain.SeverityError, "", fmt.Sprintf("Run failed: %v", err))
		return st.result(domain.RunStatusFailed, err.Error())
	}
}

// defaultHandle — ребро, по которому идёт узел без выбора:
// у loop это complete (тело без loop.* не выполняется), у прочих первое ребро.
func defaultHandle(n *domain.Node) string {
	if n.Kind == domain.KindLoop {
		return domain.HandleComplete
	}
	return ""
}

// isControl — ошибки, которые continueOnError не подавляет.
func isControl(err error) bool {
	var halt *haltSignal
	return errors.As(err, &halt) ||
		errors.Is(err, engine.ErrRunCancelled) ||
		errors.Is(err, engine.ErrMaxSteps)
}

func cancelled(cause error) error {
	if errors.Is(cause, engine.ErrRunCancelled) {
		return cause
	}
	return fmt.Errorf("%w: %v", engine.ErrRunCancelled, cause)
}

func nodeTitle(n *domain.Node) string {
	if n.Label != "" {
		return fmt.Sprintf("%q", n.Label)
	}
	return n.ID
}

func flowTitle(f *domain.Flow) string {
	if f.Name != "" {
		return f.Name
	}
	return f.ID
}
