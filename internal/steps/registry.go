package steps

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/httpclient"
)

// Registry — реестр исполнителей узлов.
//
// Позволяет регистрировать и получать реализации Step по типу узла.
// Потокобезопасен.
type Registry struct {
	mu    sync.RWMutex
	steps map[domain.NodeKind]Step
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[domain.NodeKind]Step),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными узлами.
func DefaultRegistry(client httpclient.Client) *Registry {
	r := NewRegistry()

	// Регистрируем все стандартные узлы
	r.Register(NewHTTPStep(client))
	r.Register(NewIfElseStep())
	r.Register(NewLoopStep())
	r.Register(NewSetVariableStep())
	r.Register(NewLogStep())
	r.Register(NewDelayStep())
	r.Register(NewStopJobStep())

	return r
}

// Register регистрирует исполнитель в реестре.
// Если исполнитель такого типа уже существует, он будет перезаписан.
func (r *Registry) Register(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[step.Kind()] = step
}

// Get возвращает исполнитель по типу.
// Возвращает ErrStepNotFound, если исполнитель не найден.
func (r *Registry) Get(kind domain.NodeKind) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, exists := r.steps[kind]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, kind)
	}

	return step, nil
}

// Has проверяет, зарегистрирован ли исполнитель.
func (r *Registry) Has(kind domain.NodeKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.steps[kind]
	return exists
}

// Kinds возвращает список всех зарегистрированных типов.
func (r *Registry) Kinds() []domain.NodeKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]domain.NodeKind, 0, len(r.steps))
	for k := range r.steps {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Count возвращает количество зарегистрированных исполнителей.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}

// Unregister удаляет исполнитель из реестра.
func (r *Registry) Unregister(kind domain.NodeKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.steps, kind)
}
