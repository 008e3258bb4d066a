package engine

import (
	"fmt"
	"sort"

	"dario.cat/mergo"
)

// Корни пространства имён переменных.
const (
	RootVars   = "vars"
	RootSystem = "system"
	RootLoop   = "loop"
)

// ResultKey возвращает ключ, под которым пишется результат узла.
func ResultKey(nodeID string) string {
	return nodeID + ".result"
}

// VarKey возвращает ключ пользовательской переменной.
func VarKey(name string) string {
	return RootVars + "." + name
}

// Store — хранилище переменных одного run.
//
// Значения лежат деревом: "http1.result.data" — это data
// внутри result внутри http1. Порядок первой записи ключей сохраняется.
//
// Store не потокобезопасен: каждый run владеет своим экземпляром.
type Store struct {
	data map[string]any
	keys []string
	seen map[string]struct{}

	// base — для overlay: хранилище, куда уходят записи.
	base *Store
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		data: make(map[string]any),
		seen: make(map[string]struct{}),
	}
}

// NewStoreFrom создаёт хранилище из снимка (например, upstream для test-node).
func NewStoreFrom(snapshot map[string]any) (*Store, error) {
	s := NewStore()
	if err := s.Merge(snapshot); err != nil {
		return nil, err
	}
	return s, nil
}

// Overlay создаёт представление поверх хранилища.
//
// Корни из frame (например, "loop") читаются из overlay и скрывают
// одноимённые корни базы. Все записи уходят в базу, поэтому
// отбросить overlay после итерации — значит просто перестать его использовать.
func (s *Store) Overlay(frame map[string]any) *Store {
	return &Store{
		data: frame,
		base: s,
	}
}

// Get возвращает значение по строковому пути.
func (s *Store) Get(path string) (any, bool) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	return s.Lookup(p)
}

// Lookup возвращает значение по разобранному пути.
func (s *Store) Lookup(p Path) (any, bool) {
	if len(p) == 0 {
		return nil, false
	}
	if s.base != nil {
		if _, ok := s.data[p.Root()]; !ok {
			return s.base.Lookup(p)
		}
	}
	return lookupPath(s.data, p)
}

// Set записывает значение по ключу, создавая промежуточные объекты.
// Повторная запись того же ключа перезаписывает значение.
func (s *Store) Set(key string, value any) error {
	if s.base != nil {
		return s.base.Set(key, value)
	}

	p, err := ParsePath(key)
	if err != nil {
		return err
	}
	if err := assign(s.data, p, deepCopy(value)); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	s.track(key)
	return nil
}

// Merge вливает частичный снимок: вложенные объекты сливаются,
// листья перезаписываются.
func (s *Store) Merge(partial map[string]any) error {
	if s.base != nil {
		return s.base.Merge(partial)
	}
	if len(partial) == 0 {
		return nil
	}

	src, _ := deepCopy(partial).(map[string]any)
	if err := mergo.Merge(&s.data, src, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge variables: %w", err)
	}
	for _, k := range leafKeys(src) {
		s.track(k)
	}
	return nil
}

// Snapshot возвращает глубокую копию всех переменных.
// Для overlay в снимок входят и его корни.
func (s *Store) Snapshot() map[string]any {
	if s.base == nil {
		out, _ := deepCopy(s.data).(map[string]any)
		return out
	}
	out := s.base.Snapshot()
	for k, v := range s.data {
		out[k] = deepCopy(v)
	}
	return out
}

// Keys возвращает записанные ключи в порядке первой записи.
func (s *Store) Keys() []string {
	if s.base != nil {
		return s.base.Keys()
	}
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

func (s *Store) track(key string) {
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.keys = append(s.keys, key)
}

// assign записывает value по пути внутри дерева.
func assign(root map[string]any, p Path, value any) error {
	if p[0].IsIndex {
		return fmt.Errorf("%w: path must start with an identifier", ErrInvalidPath)
	}

	var cur any = root
	for i, seg := range p {
		last := i == len(p)-1

		switch node := cur.(type) {
		case map[string]any:
			if seg.IsIndex {
				return fmt.Errorf("%w: index on object", ErrInvalidPath)
			}
			if last {
				node[seg.Key] = value
				return nil
			}
			next, ok := node[seg.Key]
			_, isMap := next.(map[string]any)
			_, isSlice := next.([]any)
			if !ok || (!isMap && !isSlice) {
				next = make(map[string]any)
				node[seg.Key] = next
			}
			cur = next

		case []any:
			if !seg.IsIndex || seg.Index >= len(node) {
				return fmt.Errorf("%w: index out of range", ErrInvalidPath)
			}
			if last {
				node[seg.Index] = value
				return nil
			}
			cur = node[seg.Index]

		default:
			return fmt.Errorf("%w: cannot descend into %T", ErrInvalidPath, cur)
		}
	}
	return nil
}

// leafKeys возвращает ключи двух верхних уровней ("vars.count", "http1.result").
func leafKeys(m map[string]any) []string {
	var out []string
	for root, v := range m {
		inner, ok := v.(map[string]any)
		if !ok || len(inner) == 0 {
			out = append(out, root)
			continue
		}
		for k := range inner {
			out = append(out, root+"."+k)
		}
	}
	sort.Strings(out)
	return out
}

// deepCopy копирует JSON-подобные значения.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
