package engine

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/shaiso/Flowline/internal/xjson"
)

// MaxTemplateDepth — предел вложенности плейсхолдеров: {{a[{{b}}]}} — глубина 2.
const MaxTemplateDepth = 3

// Дополнительные виды ResolutionError.
const (
	ResolutionInvalidPath ResolutionKind = "invalid_path"
	ResolutionTooDeep     ResolutionKind = "too_deep"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Lookuper — источник значений для шаблонов. Store реализует его.
type Lookuper interface {
	Lookup(p Path) (any, bool)
}

// HasPlaceholders проверяет, содержит ли строка {{...}}.
func HasPlaceholders(s string) bool {
	i := strings.Index(s, openDelim)
	return i >= 0 && strings.Contains(s[i+2:], closeDelim)
}

// Resolve разрешает шаблон.
//
// Если шаблон целиком — один плейсхолдер, возвращается значение
// как есть (число, объект, массив). Иначе значения приводятся к строке
// и подставляются в текст.
//
// Неразрешённый плейсхолдер остаётся в результате исходным текстом,
// а ошибка (ResolutionError или их errors.Join) возвращается вместе
// с результатом.
func Resolve(tmpl string, vars Lookuper) (any, error) {
	if !strings.Contains(tmpl, openDelim) {
		return tmpl, nil
	}

	r := &resolver{vars: vars}
	value := r.resolve(tmpl, 1)
	return value, errors.Join(r.errs...)
}

// ResolveString разрешает шаблон и всегда возвращает строку.
func ResolveString(tmpl string, vars Lookuper) (string, error) {
	v, err := Resolve(tmpl, vars)
	return Stringify(v), err
}

// ResolveValue рекурсивно разрешает шаблоны в строках
// внутри объектов и массивов.
func ResolveValue(v any, vars Lookuper) (any, error) {
	var errs []error
	out := resolveValue(v, vars, &errs)
	return out, errors.Join(errs...)
}

func resolveValue(v any, vars Lookuper, errs *[]error) any {
	switch t := v.(type) {
	case string:
		out, err := Resolve(t, vars)
		if err != nil {
			*errs = append(*errs, err)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = resolveValue(val, vars, errs)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = resolveValue(val, vars, errs)
		}
		return out
	default:
		return v
	}
}

// resolver держит ошибки одного вызова Resolve.
type resolver struct {
	vars Lookuper
	errs []error
}

// resolve разбирает текст на литералы и плейсхолдеры.
func (r *resolver) resolve(s string, depth int) any {
	var b strings.Builder
	i := 0

	for i < len(s) {
		// 1. Ищем начало плейсхолдера
		start := strings.Index(s[i:], openDelim)
		if start < 0 {
			b.WriteString(s[i:])
			break
		}
		start += i

		// 2. Ищем парную закрывающую скобку с учётом вложенности
		end := matchClose(s, start+len(openDelim))
		if end < 0 {
			b.WriteString(s[i:])
			break
		}
		raw := s[start : end+len(closeDelim)]
		value, ok := r.placeholder(s[start+len(openDelim):end], raw, depth)

		// 3. Шаблон целиком — один плейсхолдер: отдаём типизированное значение
		if start == 0 && end+len(closeDelim) == len(s) {
			if !ok {
				return raw
			}
			return value
		}

		b.WriteString(s[i:start])
		if ok {
			b.WriteString(Stringify(value))
		} else {
			b.WriteString(raw)
		}
		i = end + len(closeDelim)
	}

	return b.String()
}

// placeholder разрешает содержимое одного {{...}}.
func (r *resolver) placeholder(inner, raw string, depth int) (any, bool) {
	if strings.Contains(inner, openDelim) {
		if depth >= MaxTemplateDepth {
			r.errs = append(r.errs, &ResolutionError{Kind: ResolutionTooDeep, Path: raw})
			return nil, false
		}
		before := len(r.errs)
		inner = Stringify(r.resolve(inner, depth+1))
		if len(r.errs) > before {
			return nil, false
		}
	}

	path := strings.TrimSpace(inner)
	p, err := ParsePath(path)
	if err != nil {
		r.errs = append(r.errs, &ResolutionError{Kind: ResolutionInvalidPath, Path: path})
		return nil, false
	}
	v, ok := r.vars.Lookup(p)
	if !ok {
		r.errs = append(r.errs, &ResolutionError{Kind: ResolutionMissingPath, Path: path})
		return nil, false
	}
	return v, true
}

// matchClose возвращает позицию "}}", закрывающей открытый плейсхолдер.
func matchClose(s string, from int) int {
	level := 1
	for p := from; p+1 < len(s); {
		switch s[p : p+2] {
		case openDelim:
			level++
			p += 2
		case closeDelim:
			level--
			if level == 0 {
				return p
			}
			p += 2
		default:
			p++
		}
	}
	return -1
}

// Stringify приводит значение к строке для подстановки в текст.
//
// Строки — как есть, числа — без лишних нулей, nil — пустая строка,
// объекты и массивы — JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t)
	case fmt.Stringer:
		return t.String()
	default:
		data, err := xjson.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

// InlineExpression подставляет значения плейсхолдеров в выражение
// литералами языка выражений: строки — в кавычках, nil — nil.
//
// Так `{{vars.count}} > 0` превращается в `2 > 0`.
// Неразрешённый плейсхолдер заменяется на nil.
func InlineExpression(src string, vars Lookuper) (string, error) {
	if !strings.Contains(src, openDelim) {
		return src, nil
	}

	r := &resolver{vars: vars}
	var b strings.Builder
	i := 0
	for i < len(src) {
		start := strings.Index(src[i:], openDelim)
		if start < 0 {
			b.WriteString(src[i:])
			break
		}
		start += i
		end := matchClose(src, start+len(openDelim))
		if end < 0 {
			b.WriteString(src[i:])
			break
		}
		raw := src[start : end+len(closeDelim)]
		value, ok := r.placeholder(src[start+len(openDelim):end], raw, 1)

		b.WriteString(src[i:start])
		if ok {
			b.WriteString(Literal(value))
		} else {
			b.WriteString("nil")
		}
		i = end + len(closeDelim)
	}
	return b.String(), errors.Join(r.errs...)
}

// Literal записывает значение литералом языка выражений.
func Literal(v any) string {
	switch t := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(t)
	case bool, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Stringify(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = Literal(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ": " + Literal(t[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}

	// Прочие типы приводим к JSON-подобному виду и повторяем.
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map || rv.Kind() == reflect.Slice || rv.Kind() == reflect.Struct {
		data, err := xjson.Marshal(v)
		if err == nil {
			var generic any
			if xjson.Unmarshal(data, &generic) == nil {
				return Literal(generic)
			}
		}
	}
	return strconv.Quote(fmt.Sprint(v))
}
