package steps

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
)

// LoopStep — узел цикла.
//
// forEach проходит по массиву из arrayPath (с разбиением на пачки
// по batchSize), while повторяет тело, пока conditionExpression истинно.
// Тело выполняет runner через Request.RunBody; каждая итерация видит
// overlay с loop.item, loop.index, loop.number и loop.total.
//
// После всех итераций выбирается ребро "complete".
//
// Результат:
//
//	{"iterations": 3, "total": 3}
type LoopStep struct{}

// NewLoopStep создаёт LoopStep.
func NewLoopStep() *LoopStep {
	return &LoopStep{}
}

// Kind возвращает тип узла.
func (s *LoopStep) Kind() domain.NodeKind {
	return domain.KindLoop
}

// Execute выполняет итерации.
func (s *LoopStep) Execute(ctx context.Context, req *Request) (*Outcome, error) {
	cfg, err := config[*domain.LoopConfig](req.Node)
	if err != nil {
		return nil, err
	}
	out := NewOutcome(req.Node.ID)

	var iterations, total int
	switch cfg.LoopType {
	case domain.LoopWhile:
		iterations, err = s.runWhile(ctx, cfg, req, out)
		total = iterations
	default:
		iterations, total, err = s.runForEach(ctx, cfg, req, out)
	}
	if err != nil {
		return out, err
	}

	out.Set(engine.ResultKey(req.Node.ID), map[string]any{
		"iterations": iterations,
		"total":      total,
	})
	out.EdgeSelector = domain.HandleComplete
	out.Addf(domain.SeverityInfo, "Loop completed after %d iteration(s)", iterations)
	return out, nil
}

// runForEach проходит по элементам массива.
func (s *LoopStep) runForEach(ctx context.Context, cfg *domain.LoopConfig, req *Request, out *Outcome) (int, int, error) {
	// 1. Находим массив
	items, err := s.resolveArray(cfg.ArrayPath, req.Vars)
	if err != nil {
		return 0, 0, err
	}

	// 2. Разбиваем на пачки
	chunks := chunk(items, cfg.BatchSize)
	limit := cfg.IterationLimit()
	req.emit(out, domain.SeverityInfo, fmt.Sprintf("Loop over %d item(s) in %d iteration(s)", len(items), len(chunks)))

	// 3. Итерации
	for i, item := range chunks {
		if i >= limit {
			return i, len(chunks), fmt.Errorf("%w: limit %d reached with %d iteration(s) pending", engine.ErrMaxIterations, limit, len(chunks)-i)
		}
		frame := map[string]any{
			"item":   item,
			"index":  i,
			"number": i + 1,
			"total":  len(chunks),
		}
		if err := s.iterate(ctx, req, out, frame); err != nil {
			return i, len(chunks), err
		}
	}
	return len(chunks), len(chunks), nil
}

// runWhile повторяет тело, пока условие истинно.
// Условие проверяется перед каждой итерацией; истинное условие
// на итерации maxIterations+1 — ошибка узла.
func (s *LoopStep) runWhile(ctx context.Context, cfg *domain.LoopConfig, req *Request, out *Outcome) (int, error) {
	if req.Evaluator == nil {
		return 0, fmt.Errorf("%w: expression evaluator is not configured", ErrInvalidConfig)
	}
	limit := cfg.IterationLimit()
	req.emit(out, domain.SeverityInfo, fmt.Sprintf("While loop started (max %d iterations)", limit))

	for i := 0; ; i++ {
		frame := map[string]any{
			"index":  i,
			"number": i + 1,
		}
		scope := req.Vars.Overlay(map[string]any{engine.RootLoop: frame})

		src, err := engine.InlineExpression(cfg.ConditionExpression, scope)
		warnUnresolved(out, err)
		ok, err := req.Evaluator.EvalBool(ctx, src, env(scope))
		if err != nil {
			return i, err
		}
		if !ok {
			return i, nil
		}
		if i >= limit {
			return i, fmt.Errorf("%w: condition still true after %d iteration(s)", engine.ErrMaxIterations, limit)
		}
		if err := s.iterate(ctx, req, out, frame); err != nil {
			return i, err
		}
	}
}

// iterate выполняет тело один раз в overlay итерации.
func (s *LoopStep) iterate(ctx context.Context, req *Request, out *Outcome, frame map[string]any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrRunCancelled, err)
	}
	req.emit(out, domain.SeverityInfo, fmt.Sprintf("Iteration %d", frame["number"]))

	if req.RunBody == nil {
		return nil
	}
	scope := req.Vars.Overlay(map[string]any{engine.RootLoop: frame})
	return req.RunBody(ctx, scope)
}

// resolveArray находит массив по arrayPath: "{{a.b}}" или "a.b".
// Неразрешённый путь — ошибка узла.
func (s *LoopStep) resolveArray(arrayPath string, vars *engine.Store) ([]any, error) {
	arrayPath = strings.TrimSpace(arrayPath)

	var value any
	if engine.HasPlaceholders(arrayPath) {
		v, err := engine.Resolve(arrayPath, vars)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotArray, err)
		}
		value = v
	} else {
		p, err := engine.ParsePath(arrayPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		v, ok := vars.Lookup(p)
		if !ok {
			return nil, fmt.Errorf("%w: %s not found", ErrNotArray, arrayPath)
		}
		value = v
	}

	items, ok := toSlice(value)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrNotArray, arrayPath, value)
	}
	return items, nil
}

// chunk разбивает элементы на пачки. size <= 0 — по одному элементу без обёртки.
func chunk(items []any, size int) []any {
	if size <= 0 {
		return items
	}
	out := make([]any, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batch := make([]any, end-start)
		copy(batch, items[start:end])
		out = append(out, batch)
	}
	return out
}

func toSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
