package engine

import (
	"context"
	"errors"
	"testing"
)

func TestExprEvaluator_EvalBool(t *testing.T) {
	ev := NewEvaluator(EvaluatorConfig{})
	env := map[string]any{
		"vars": map[string]any{"count": float64(2), "name": "test"},
	}

	tests := []struct {
		name     string
		src      string
		expected bool
	}{
		{"greater", "vars.count > 0", true},
		{"equal string", `vars.name == "test"`, true},
		{"logic", `vars.count > 5 || vars.name startsWith "te"`, true},
		{"false", "vars.count < 1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ev.EvalBool(context.Background(), tt.src, env)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestExprEvaluator_Eval(t *testing.T) {
	ev := NewEvaluator(EvaluatorConfig{})
	env := map[string]any{"value": []any{float64(1), float64(2), float64(3)}}

	got, err := ev.Eval(context.Background(), "len(value) * 2", env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 6 {
		t.Errorf("got %#v, want 6", got)
	}
}

func TestExprEvaluator_Errors(t *testing.T) {
	ev := NewEvaluator(EvaluatorConfig{})

	// Неизвестное имя — ошибка компиляции
	if _, err := ev.Eval(context.Background(), "os.Exit(1)", nil); !errors.Is(err, ErrExpression) {
		t.Errorf("expected ErrExpression, got %v", err)
	}

	// Небулево выражение в EvalBool
	if _, err := ev.EvalBool(context.Background(), `"text"`, nil); !errors.Is(err, ErrExpression) {
		t.Errorf("expected ErrExpression, got %v", err)
	}

	// now() отключён ради детерминизма
	if _, err := ev.Eval(context.Background(), "now()", nil); !errors.Is(err, ErrExpression) {
		t.Errorf("expected ErrExpression for now(), got %v", err)
	}
}

func TestExprEvaluator_MaxNodes(t *testing.T) {
	ev := NewEvaluator(EvaluatorConfig{MaxNodes: 5})

	_, err := ev.Eval(context.Background(), "1 + 2 + 3 + 4 + 5 + 6 + 7", nil)
	if !errors.Is(err, ErrExpression) {
		t.Errorf("expected ErrExpression for oversized expression, got %v", err)
	}
}

func TestExprEvaluator_MemoryBudget(t *testing.T) {
	ev := NewEvaluator(EvaluatorConfig{MemoryBudget: 1000})

	out, err := ev.Eval(context.Background(), "len(1..n)", map[string]any{"n": 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != 10 {
		t.Errorf("got %v, want 10", out)
	}

	_, err = ev.Eval(context.Background(), "len(1..n)", map[string]any{"n": 5000})
	if !errors.Is(err, ErrExpression) {
		t.Errorf("expected ErrExpression for exceeded memory budget, got %v", err)
	}
}
