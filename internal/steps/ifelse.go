package steps

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
)

// IfElseStep — узел ветвления.
//
// Вычисляет условие и выбирает ребро "true" или "false".
// Три режима: comparison (left operator right), expression
// (булево выражение в песочнице) и exists (путь существует).
//
// Результат:
//
//	{"result": true}
type IfElseStep struct{}

// NewIfElseStep создаёт IfElseStep.
func NewIfElseStep() *IfElseStep {
	return &IfElseStep{}
}

// Kind возвращает тип узла.
func (s *IfElseStep) Kind() domain.NodeKind {
	return domain.KindIfElse
}

// Execute вычисляет условие.
func (s *IfElseStep) Execute(ctx context.Context, req *Request) (*Outcome, error) {
	cfg, err := config[*domain.IfElseConfig](req.Node)
	if err != nil {
		return nil, err
	}
	out := NewOutcome(req.Node.ID)

	var result bool
	switch cfg.Mode() {
	case domain.ConditionExpression:
		result, err = s.expression(ctx, cfg.Expression, req, out)
	case domain.ConditionExists:
		result, err = s.exists(cfg.ExistsPath, req.Vars, out)
	default:
		result, err = s.comparison(cfg.Comparison, req.Vars, out)
	}
	if err != nil {
		return out, err
	}

	out.Set(engine.ResultKey(req.Node.ID), map[string]any{"result": result})
	if result {
		out.EdgeSelector = domain.HandleTrue
	} else {
		out.EdgeSelector = domain.HandleFalse
	}
	out.Addf(domain.SeverityInfo, "Condition is %t, taking %q branch", result, out.EdgeSelector)
	return out, nil
}

// comparison разрешает операнды и применяет оператор.
// Неразрешённый операнд — ошибка узла.
func (s *IfElseStep) comparison(c *domain.Comparison, vars *engine.Store, out *Outcome) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("%w: comparison is not set", ErrInvalidConfig)
	}

	left, err := engine.ResolveValue(c.Left, vars)
	if err != nil {
		return false, unresolvedOperand("left", err)
	}
	right, err := engine.ResolveValue(c.Right, vars)
	if err != nil {
		return false, unresolvedOperand("right", err)
	}

	result, err := Compare(left, c.Operator, right)
	if err != nil {
		return false, err
	}
	out.Addf(domain.SeverityInfo, "Compared %s %s %s", engine.Stringify(left), c.Operator, engine.Stringify(right))
	return result, nil
}

// expression подставляет плейсхолдеры литералами и вычисляет выражение.
func (s *IfElseStep) expression(ctx context.Context, src string, req *Request, out *Outcome) (bool, error) {
	if req.Evaluator == nil {
		return false, fmt.Errorf("%w: expression evaluator is not configured", ErrInvalidConfig)
	}
	inlined, err := engine.InlineExpression(src, req.Vars)
	warnUnresolved(out, err)

	return req.Evaluator.EvalBool(ctx, inlined, env(req.Vars))
}

// exists проверяет, что путь (или шаблон с одним плейсхолдером) разрешается.
func (s *IfElseStep) exists(path string, vars *engine.Store, out *Outcome) (bool, error) {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "{{") && strings.HasSuffix(path, "}}") {
		path = strings.TrimSpace(path[2 : len(path)-2])
	}
	p, err := engine.ParsePath(path)
	if err != nil {
		return false, fmt.Errorf("%w: existsPath: %v", ErrInvalidConfig, err)
	}
	v, ok := vars.Lookup(p)
	return ok && v != nil, nil
}

func unresolvedOperand(side string, err error) error {
	var paths []string
	for _, re := range engine.ResolutionErrors(err) {
		paths = append(paths, re.Path)
	}
	return fmt.Errorf("%w: %s operand: %s", ErrUnresolvedOperand, side, strings.Join(paths, ", "))
}

// Compare применяет оператор сравнения к разрешённым значениям.
//
// Числа (и строки, похожие на числа) сравниваются как числа,
// остальное — как строки. contains для массива ищет элемент,
// для объекта — ключ, для строки — подстроку.
func Compare(left any, op domain.Operator, right any) (bool, error) {
	switch op {
	case domain.OpEqual:
		return looseEqual(left, right), nil
	case domain.OpNotEqual:
		return !looseEqual(left, right), nil
	case domain.OpGreater, domain.OpGreaterOrEqual, domain.OpLess, domain.OpLessOrEqual:
		return order(left, op, right), nil
	case domain.OpContains:
		return contains(left, right), nil
	case domain.OpStartsWith:
		return strings.HasPrefix(engine.Stringify(left), engine.Stringify(right)), nil
	case domain.OpEndsWith:
		return strings.HasSuffix(engine.Stringify(left), engine.Stringify(right)), nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidConfig, op)
	}
}

func looseEqual(a, b any) bool {
	if x, ok := toNumber(a); ok {
		if y, ok := toNumber(b); ok {
			return x == y
		}
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return engine.Stringify(a) == engine.Stringify(b)
}

func order(a any, op domain.Operator, b any) bool {
	cmp := 0
	x, okA := toNumber(a)
	y, okB := toNumber(b)
	if okA && okB {
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(engine.Stringify(a), engine.Stringify(b))
	}

	switch op {
	case domain.OpGreater:
		return cmp > 0
	case domain.OpGreaterOrEqual:
		return cmp >= 0
	case domain.OpLess:
		return cmp < 0
	default:
		return cmp <= 0
	}
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case []any:
		for _, e := range h {
			if looseEqual(e, needle) {
				return true
			}
		}
		return false
	case map[string]any:
		_, ok := h[engine.Stringify(needle)]
		return ok
	case nil:
		return false
	default:
		return strings.Contains(engine.Stringify(h), engine.Stringify(needle))
	}
}

// toNumber приводит значение к float64: числа и строки-числа.
func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case bool, nil:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32:
		return rv.Float(), true
	}
	return 0, false
}
