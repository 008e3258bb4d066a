package engine

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Segment — элемент пути: ключ объекта или индекс массива.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// String возвращает сегмент в исходной записи.
func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Path — разобранный путь к переменной.
//
// Грамматика: identifier ( '.' identifier | '[' integer ']' )*
type Path []Segment

// String собирает путь обратно в строку.
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if !s.IsIndex && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// Root возвращает первый сегмент пути ("vars", "system", "loop", ID узла).
func (p Path) Root() string {
	if len(p) == 0 {
		return ""
	}
	return p[0].Key
}

// ParsePath разбирает строку пути.
//
// Идентификатор допускает буквы, цифры, '_', '-' и '$':
// ID узлов из редактора часто содержат дефисы.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	var path Path
	i := 0
	expectIdent := true

	for i < len(s) {
		switch {
		case expectIdent:
			j := i
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			if j == i {
				return nil, fmt.Errorf("%w: %q: expected identifier at %d", ErrInvalidPath, s, i)
			}
			path = append(path, Segment{Key: s[i:j]})
			i = j
			expectIdent = false

		case s[i] == '.':
			i++
			expectIdent = true

		case s[i] == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: %q: unclosed '['", ErrInvalidPath, s)
			}
			idx, err := strconv.Atoi(strings.TrimSpace(s[i+1 : i+end]))
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("%w: %q: index must be a non-negative integer", ErrInvalidPath, s)
			}
			path = append(path, Segment{Index: idx, IsIndex: true})
			i += end + 1

		default:
			return nil, fmt.Errorf("%w: %q: unexpected %q at %d", ErrInvalidPath, s, s[i], i)
		}
	}

	if expectIdent {
		return nil, fmt.Errorf("%w: %q: trailing '.'", ErrInvalidPath, s)
	}
	return path, nil
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '-' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// lookupPath проходит по значению вдоль сегментов.
//
// Поддерживаются map[string]any, срезы и (через reflect) прочие
// map/slice. Сегмент "length" у массива или строки даёт длину.
func lookupPath(v any, segs []Segment) (any, bool) {
	cur := v
	for _, seg := range segs {
		next, ok := step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func step(cur any, seg Segment) (any, bool) {
	switch t := cur.(type) {
	case map[string]any:
		if seg.IsIndex {
			v, ok := t[strconv.Itoa(seg.Index)]
			return v, ok
		}
		v, ok := t[seg.Key]
		return v, ok

	case []any:
		if !seg.IsIndex {
			if seg.Key == "length" {
				return float64(len(t)), true
			}
			return nil, false
		}
		if seg.Index >= len(t) {
			return nil, false
		}
		return t[seg.Index], true

	case string:
		if !seg.IsIndex && seg.Key == "length" {
			return float64(len([]rune(t))), true
		}
		return nil, false

	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(cur)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		key := seg.Key
		if seg.IsIndex {
			key = strconv.Itoa(seg.Index)
		}
		mv := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true

	case reflect.Slice, reflect.Array:
		if !seg.IsIndex {
			if seg.Key == "length" {
				return float64(rv.Len()), true
			}
			return nil, false
		}
		if seg.Index >= rv.Len() {
			return nil, false
		}
		return rv.Index(seg.Index).Interface(), true
	}
	return nil, false
}
