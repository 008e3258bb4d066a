package steps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
)

// Ошибки узлов.
var (
	// ErrStepNotFound — тип узла не найден в реестре.
	ErrStepNotFound = errors.New("node executor not found")

	// ErrInvalidConfig — конфигурация не того типа или недопустима во время выполнения.
	ErrInvalidConfig = errors.New("invalid node config")

	// ErrHTTPStatus — ответ со статусом >= 400 при failOnError.
	ErrHTTPStatus = errors.New("http status indicates failure")

	// ErrNetwork — сетевая ошибка httpRequest.
	ErrNetwork = errors.New("network error")

	// ErrUnresolvedOperand — операнд сравнения не разрешился.
	ErrUnresolvedOperand = errors.New("comparison operand unresolved")

	// ErrNotArray — arrayPath указывает не на массив.
	ErrNotArray = errors.New("arrayPath does not resolve to an array")

	// ErrTransform — transform в setVariable завершился ошибкой.
	ErrTransform = errors.New("transform failed")

	// ErrInvalidDelay — значение задержки не число.
	ErrInvalidDelay = errors.New("invalid delay value")
)

// Step — исполнитель узла одного типа.
//
// Исполнитель не меняет хранилище сам: он возвращает Outcome,
// а runner применяет записи. Исключение — тело loop, которое
// выполняется через Request.RunBody.
type Step interface {
	// Kind возвращает тип узла.
	Kind() domain.NodeKind

	// Execute выполняет узел.
	// Ошибка — это ошибка выполнения узла (NodeError);
	// Outcome может вернуться вместе с ней (например, ответ HTTP 500).
	Execute(ctx context.Context, req *Request) (*Outcome, error)
}

// BodyRunner выполняет тело loop один раз в переданной области видимости.
type BodyRunner func(ctx context.Context, scope *engine.Store) error

// Request — входные данные для выполнения узла.
type Request struct {
	// Node — узел из снимка flow.
	Node *domain.Node

	// Vars — область видимости переменных (для тела loop — overlay).
	Vars *engine.Store

	// Evaluator — песочница выражений.
	Evaluator engine.Evaluator

	// RunBody — выполнение тела loop. Nil вне runner (test-node).
	RunBody BodyRunner

	// Emit пишет запись в журнал сразу, до завершения узла.
	// Нужен loop, чтобы его записи шли раньше записей тела.
	Emit func(sev domain.Severity, message string)

	// Now — источник времени.
	Now func() time.Time
}

// emit пишет запись через Emit, если он задан, иначе в Outcome.
func (r *Request) emit(out *Outcome, sev domain.Severity, msg string) {
	if r.Emit != nil {
		r.Emit(sev, msg)
		return
	}
	out.Add(sev, msg)
}

func (r *Request) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Write — запись в хранилище переменных.
type Write struct {
	Key   string
	Value any
}

// Terminal — сигнал остановки run от stopJob.
type Terminal struct {
	Status domain.RunStatus
	Reason string
}

// Outcome — результат выполнения узла.
type Outcome struct {
	// NodeID — какой узел вернул результат.
	NodeID string

	// EdgeSelector — handle исходящего ребра ("" — ребро по умолчанию).
	EdgeSelector string

	// Writes — записи в хранилище в порядке применения.
	Writes []Write

	// Log — записи журнала узла.
	Log []domain.LogEntry

	// Terminal — не nil, если run надо остановить.
	Terminal *Terminal
}

// NewOutcome создаёт пустой Outcome узла.
func NewOutcome(nodeID string) *Outcome {
	return &Outcome{NodeID: nodeID}
}

// Add добавляет запись журнала.
func (o *Outcome) Add(sev domain.Severity, msg string) {
	o.Log = append(o.Log, domain.LogEntry{Severity: sev, NodeID: o.NodeID, Message: msg})
}

// Addf добавляет запись журнала с форматированием.
func (o *Outcome) Addf(sev domain.Severity, format string, args ...any) {
	o.Add(sev, fmt.Sprintf(format, args...))
}

// Set добавляет запись в хранилище.
func (o *Outcome) Set(key string, value any) {
	o.Writes = append(o.Writes, Write{Key: key, Value: value})
}

// warnUnresolved пишет предупреждение на каждый неразрешённый плейсхолдер.
func warnUnresolved(out *Outcome, err error) {
	for _, re := range engine.ResolutionErrors(err) {
		out.Addf(domain.SeverityWarning, "Unresolved variable %q (%s): placeholder left as is", re.Path, re.Kind)
	}
}

// config приводит конфигурацию узла к ожидаемому типу.
func config[T domain.NodeConfig](node *domain.Node) (T, error) {
	cfg, ok := node.Config.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s node has %T config", ErrInvalidConfig, node.Kind, node.Config)
	}
	return cfg, nil
}

// env возвращает окружение выражений: снимок переменных области видимости.
func env(vars *engine.Store) map[string]any {
	if vars == nil {
		return map[string]any{}
	}
	return vars.Snapshot()
}
