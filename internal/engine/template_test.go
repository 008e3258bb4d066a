package engine

import (
	"errors"
	"reflect"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStoreFrom(map[string]any{
		"http1": map[string]any{
			"result": map[string]any{
				"status": float64(200),
				"data": []any{
					map[string]any{"id": float64(1), "name": "a"},
					map[string]any{"id": float64(2), "name": "b"},
				},
			},
		},
		"vars": map[string]any{
			"count": float64(2),
			"name":  "test",
			"idx":   float64(1),
			"field": "name",
			"flag":  true,
			"none":  nil,
		},
	})
	if err != nil {
		t.Fatalf("NewStoreFrom: %v", err)
	}
	return s
}

func TestResolve_WholePlaceholderKeepsType(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name     string
		template string
		expected any
	}{
		{"number", "{{vars.count}}", float64(2)},
		{"bool", "{{vars.flag}}", true},
		{"string", "{{vars.name}}", "test"},
		{"array length", "{{http1.result.data.length}}", float64(2)},
		{"index", "{{http1.result.data[1].name}}", "b"},
		{"spaces inside braces", "{{ vars.count }}", float64(2)},
		{"null", "{{vars.none}}", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.template, s)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("got %#v, want %#v", got, tt.expected)
			}
		})
	}
}

func TestResolve_WholeObject(t *testing.T) {
	s := newTestStore(t)

	got, err := Resolve("{{http1.result.data[0]}}", s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", got)
	}
	if m["name"] != "a" {
		t.Errorf("name = %v, want a", m["name"])
	}
}

func TestResolve_MixedText(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"number in text", "Count: {{vars.count}}", "Count: 2"},
		{"two placeholders", "{{vars.name}}-{{vars.count}}", "test-2"},
		{"object as JSON", "item={{http1.result.data[0].id}}", "item=1"},
		{"bool in text", "flag is {{vars.flag}}", "flag is true"},
		{"null in text", "[{{vars.none}}]", "[]"},
		{"array as JSON", "ids: {{vars.list}}", "ids: [1,2]"},
	}

	if err := s.Set("vars.list", []any{float64(1), float64(2)}); err != nil {
		t.Fatal(err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveString(tt.template, s)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestResolve_NoPlaceholderRoundTrip(t *testing.T) {
	s := NewStore()

	// Строка без плейсхолдеров возвращается без изменений
	inputs := []string{
		"",
		"plain text",
		"{ not a placeholder }",
		"unterminated {{ brace",
		"closing only }}",
		"json {\"a\": 1}",
	}
	for _, in := range inputs {
		got, err := Resolve(in, s)
		if err != nil {
			t.Errorf("Resolve(%q) error: %v", in, err)
		}
		if got != in {
			t.Errorf("Resolve(%q) = %#v", in, got)
		}
	}
}

func TestResolve_MissingPath(t *testing.T) {
	s := newTestStore(t)

	// Целиком плейсхолдер — получаем исходный текст и ResolutionError
	got, err := Resolve("{{vars.unknown}}", s)
	if got != "{{vars.unknown}}" {
		t.Errorf("got %#v, want literal placeholder", got)
	}
	var re *ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if re.Kind != ResolutionMissingPath || re.Path != "vars.unknown" {
		t.Errorf("unexpected error: %+v", re)
	}

	// В тексте — плейсхолдер остаётся, остальное разрешается
	text, err := ResolveString("a={{vars.name}} b={{nope.x}} c={{nope.y}}", s)
	if text != "a=test b={{nope.x}} c={{nope.y}}" {
		t.Errorf("got %q", text)
	}
	if n := len(ResolutionErrors(err)); n != 2 {
		t.Errorf("expected 2 resolution errors, got %d", n)
	}

	// Индекс за границей массива
	if _, err := Resolve("{{http1.result.data[5]}}", s); err == nil {
		t.Error("expected error for out-of-range index")
	}
}

func TestResolve_Nested(t *testing.T) {
	s := newTestStore(t)

	got, err := Resolve("{{http1.result.data[{{vars.idx}}].{{vars.field}}}}", s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "b" {
		t.Errorf("got %#v, want b", got)
	}

	// Глубина 3 допустима
	if err := s.Set("vars.ref", "idx"); err != nil {
		t.Fatal(err)
	}
	got, err = Resolve("{{http1.result.data[{{vars.{{vars.ref}}}}].id}}", s)
	if err != nil {
		t.Fatalf("depth 3: unexpected error: %v", err)
	}
	if got != float64(2) {
		t.Errorf("depth 3: got %#v", got)
	}

	// Глубина 4 — ошибка
	_, err = Resolve("{{a{{b{{c{{d}}}}}}}}", s)
	errs := ResolutionErrors(err)
	if len(errs) == 0 || errs[0].Kind != ResolutionTooDeep {
		t.Errorf("expected too_deep error, got %v", err)
	}
}

func TestResolve_InvalidPath(t *testing.T) {
	s := newTestStore(t)

	_, err := Resolve("{{vars..count}}", s)
	errs := ResolutionErrors(err)
	if len(errs) != 1 || errs[0].Kind != ResolutionInvalidPath {
		t.Errorf("expected invalid_path error, got %v", err)
	}
}

func TestResolveValue(t *testing.T) {
	s := newTestStore(t)

	in := map[string]any{
		"count": "{{vars.count}}",
		"title": "Hello {{vars.name}}",
		"list":  []any{"{{vars.flag}}", float64(3)},
		"plain": float64(1),
	}

	got, err := ResolveValue(in, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := got.(map[string]any)
	if m["count"] != float64(2) {
		t.Errorf("count = %#v", m["count"])
	}
	if m["title"] != "Hello test" {
		t.Errorf("title = %#v", m["title"])
	}
	if !reflect.DeepEqual(m["list"], []any{true, float64(3)}) {
		t.Errorf("list = %#v", m["list"])
	}
	if m["plain"] != float64(1) {
		t.Errorf("plain = %#v", m["plain"])
	}

	// Исходное значение не меняется
	if in["count"] != "{{vars.count}}" {
		t.Error("input map was mutated")
	}
}

func TestInlineExpression(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{"number", "{{vars.count}} > 0", "2 > 0"},
		{"string quoted", `{{vars.name}} == "test"`, `"test" == "test"`},
		{"no placeholders", "vars.count > 0", "vars.count > 0"},
		{"missing becomes nil", "{{vars.nope}} == nil", "nil == nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := InlineExpression(tt.src, s)
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in       any
		expected string
	}{
		{nil, ""},
		{"s", "s"},
		{float64(2), "2"},
		{float64(2.5), "2.5"},
		{42, "42"},
		{true, "true"},
		{map[string]any{"a": float64(1)}, `{"a":1}`},
	}
	for _, tt := range tests {
		if got := Stringify(tt.in); got != tt.expected {
			t.Errorf("Stringify(%#v) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}
