package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator — песочница для пользовательских выражений
// (условие ifElse, условие while, transform в setVariable).
//
// Выражение видит только переданное окружение: никакого доступа
// к файлам, сети и коду хоста.
type Evaluator interface {
	// Eval вычисляет выражение и возвращает значение.
	Eval(ctx context.Context, src string, env map[string]any) (any, error)

	// EvalBool вычисляет выражение, которое обязано вернуть bool.
	EvalBool(ctx context.Context, src string, env map[string]any) (bool, error)
}

// EvaluatorConfig — ограничения песочницы.
type EvaluatorConfig struct {
	// MaxNodes — предел размера AST выражения.
	// По умолчанию: 2000.
	MaxNodes uint

	// MemoryBudget — предел памяти VM в условных единицах expr
	// (диапазоны, массивы, map). Превышение прерывает вычисление.
	// По умолчанию: 1e6.
	MemoryBudget uint

	// Timeout — предел ожидания результата.
	// По умолчанию: 1 секунда.
	//
	// По истечении Eval возвращает ErrExpressionTimeout, но сама VM
	// не прерывается и досчитывает в фоне: её ограничивают MaxNodes
	// и MemoryBudget.
	Timeout time.Duration
}

// ExprEvaluator — Evaluator на expr-lang.
type ExprEvaluator struct {
	maxNodes     uint
	memoryBudget uint
	timeout      time.Duration
}

// NewEvaluator создаёт песочницу с ограничениями.
func NewEvaluator(cfg EvaluatorConfig) *ExprEvaluator {
	if cfg.MaxNodes == 0 {
		cfg.MaxNodes = 2000
	}
	if cfg.MemoryBudget == 0 {
		cfg.MemoryBudget = 1e6
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	return &ExprEvaluator{
		maxNodes:     cfg.MaxNodes,
		memoryBudget: cfg.MemoryBudget,
		timeout:      cfg.Timeout,
	}
}

// Eval вычисляет выражение.
func (e *ExprEvaluator) Eval(ctx context.Context, src string, env map[string]any) (any, error) {
	return e.run(ctx, src, env, false)
}

// EvalBool вычисляет булево выражение.
func (e *ExprEvaluator) EvalBool(ctx context.Context, src string, env map[string]any) (bool, error) {
	out, err := e.run(ctx, src, env, true)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q returned %T, want bool", ErrExpression, src, out)
	}
	return b, nil
}

func (e *ExprEvaluator) run(ctx context.Context, src string, env map[string]any, asBool bool) (any, error) {
	if env == nil {
		env = map[string]any{}
	}

	// 1. Компиляция с проверкой имён по окружению
	opts := []expr.Option{
		expr.Env(env),
		expr.MaxNodes(e.maxNodes),
		expr.DisableBuiltin("now"),
	}
	if asBool {
		opts = append(opts, expr.AsBool())
	}
	program, err := expr.Compile(src, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %q: %v", ErrExpression, src, err)
	}

	// 2. Выполнение с ограничением по времени
	type result struct {
		out any
		err error
	}
	done := make(chan result, 1)
	go func() {
		machine := vm.VM{MemoryBudget: e.memoryBudget}
		out, err := machine.Run(program, env)
		done <- result{out: out, err: err}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: run %q: %v", ErrExpression, src, r.err)
		}
		return r.out, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %q", ErrExpressionTimeout, src)
	case <-ctx.Done():
		return nil, ErrRunCancelled
	}
}
