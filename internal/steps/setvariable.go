package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
)

// maxLoggedValue — сколько символов значения попадает в журнал.
const maxLoggedValue = 200

// SetVariableStep — узел записи переменной.
//
// Разрешает value и пишет его в vars.<variableKey>. При useTransform
// значение сначала проходит через выражение transform в песочнице;
// в выражении оно доступно как value.
//
// Конфигурация:
//
//	{
//	    "variableKey": "count",
//	    "value": "{{http1.result.data}}",
//	    "useTransform": true,
//	    "transform": "len(value)"
//	}
type SetVariableStep struct{}

// NewSetVariableStep создаёт SetVariableStep.
func NewSetVariableStep() *SetVariableStep {
	return &SetVariableStep{}
}

// Kind возвращает тип узла.
func (s *SetVariableStep) Kind() domain.NodeKind {
	return domain.KindSetVariable
}

// Execute вычисляет значение и пишет переменную.
func (s *SetVariableStep) Execute(ctx context.Context, req *Request) (*Outcome, error) {
	cfg, err := config[*domain.SetVariableConfig](req.Node)
	if err != nil {
		return nil, err
	}
	out := NewOutcome(req.Node.ID)

	// 1. Разрешаем исходное значение
	value, err := engine.ResolveValue(cfg.Value, req.Vars)
	warnUnresolved(out, err)

	// 2. Трансформация
	if cfg.UseTransform {
		value, err = s.transform(ctx, cfg.Transform, value, req, out)
		if err != nil {
			return out, err
		}
	}

	// 3. Пишем
	key := engine.VarKey(cfg.VariableKey)
	out.Set(key, value)
	out.Addf(domain.SeveritySuccess, "Set %s = %s", key, truncate(engine.Stringify(value), maxLoggedValue))
	return out, nil
}

func (s *SetVariableStep) transform(ctx context.Context, src string, value any, req *Request, out *Outcome) (any, error) {
	if req.Evaluator == nil {
		return nil, fmt.Errorf("%w: expression evaluator is not configured", ErrInvalidConfig)
	}
	inlined, err := engine.InlineExpression(src, req.Vars)
	warnUnresolved(out, err)

	vars := env(req.Vars)
	vars["value"] = value

	result, err := req.Evaluator.Eval(ctx, inlined, vars)
	if err != nil {
		if errors.Is(err, engine.ErrRunCancelled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrTransform, err)
	}
	return result, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
