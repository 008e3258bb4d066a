package engine

import (
	"errors"
	"fmt"

	"github.com/shaiso/Flowline/internal/domain"
)

// Ошибки валидации flow.
var (
	// ErrEmptyFlow — flow не содержит узлов.
	ErrEmptyFlow = errors.New("flow has no nodes")

	// ErrEmptyNodeID — узел не имеет ID.
	ErrEmptyNodeID = errors.New("node has empty ID")

	// ErrDuplicateNodeID — несколько узлов с одинаковым ID.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownNodeKind — неизвестный тип узла.
	ErrUnknownNodeKind = domain.ErrUnknownNodeKind

	// ErrMissingConfig — не заполнено обязательное поле конфигурации.
	ErrMissingConfig = errors.New("missing required config")

	// ErrInvalidConfig — значение поля конфигурации недопустимо.
	ErrInvalidConfig = errors.New("invalid config value")

	// ErrDanglingEdge — ребро ссылается на несуществующий узел.
	ErrDanglingEdge = errors.New("edge references unknown node")

	// ErrInvalidHandle — handle не поддерживается узлом-источником.
	ErrInvalidHandle = errors.New("edge uses unsupported source handle")

	// ErrCyclicGraph — цикл вне тела loop.
	ErrCyclicGraph = errors.New("cycle outside loop body")

	// ErrNoEntryNode — нет узла без входящих рёбер.
	ErrNoEntryNode = errors.New("flow has no entry node")
)

// Ошибки разрешения шаблонов.
var (
	// ErrTemplateTooDeep — вложенность {{ }} превышает предел.
	ErrTemplateTooDeep = errors.New("template nesting too deep")

	// ErrInvalidPath — путь не соответствует грамматике.
	ErrInvalidPath = errors.New("invalid variable path")
)

// Ошибки выполнения.
var (
	// ErrRunCancelled — run отменён извне.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrMaxIterations — loop превысил maxIterations.
	ErrMaxIterations = errors.New("loop exceeded max iterations")

	// ErrMaxSteps — run превысил предел выполненных узлов.
	ErrMaxSteps = errors.New("run exceeded max node executions")

	// ErrExpression — выражение песочницы не скомпилировалось или упало.
	ErrExpression = errors.New("expression evaluation failed")

	// ErrExpressionTimeout — выражение не уложилось во время.
	ErrExpressionTimeout = errors.New("expression evaluation timed out")
)

// ValidationError — ошибка валидации с контекстом.
// Run с такой ошибкой не переходит в RUNNING.
type ValidationError struct {
	NodeID  string // ID узла, где произошла ошибка
	EdgeID  string // ID ребра, если ошибка в ребре
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	switch {
	case e.NodeID != "":
		return "node " + e.NodeID + ": " + e.Message
	case e.EdgeID != "":
		return "edge " + e.EdgeID + ": " + e.Message
	default:
		return e.Message
	}
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации узла.
func NewValidationError(nodeID, field, message string, err error) *ValidationError {
	return &ValidationError{
		NodeID:  nodeID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// newEdgeError создаёт ошибку валидации ребра.
func newEdgeError(edgeID, field, message string, err error) *ValidationError {
	return &ValidationError{
		EdgeID:  edgeID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// ResolutionKind — вид ошибки разрешения.
type ResolutionKind string

// ResolutionMissingPath — путь не найден в хранилище.
const ResolutionMissingPath ResolutionKind = "missing_path"

// ResolutionError — плейсхолдер не разрешился.
//
// Ошибка не фатальна: узел получает исходный текст плейсхолдера,
// а в журнал пишется предупреждение.
type ResolutionError struct {
	Kind ResolutionKind
	Path string
}

// Error реализует интерфейс error.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("unresolved variable %q (%s)", e.Path, e.Kind)
}

// ResolutionErrors разворачивает ошибку (в том числе errors.Join)
// в список ResolutionError.
func ResolutionErrors(err error) []*ResolutionError {
	if err == nil {
		return nil
	}
	var out []*ResolutionError
	var walk func(error)
	walk = func(e error) {
		if re, ok := e.(*ResolutionError); ok {
			out = append(out, re)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			if inner := u.Unwrap(); inner != nil {
				walk(inner)
			}
		}
	}
	walk(err)
	return out
}

// NodeError — ошибка выполнения узла (NodeExecutionError).
// Валит run, если у узла не включён continueOnError.
type NodeError struct {
	NodeID string
	Kind   domain.NodeKind
	Err    error
}

// Error реализует интерфейс error.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.NodeID, e.Kind, e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// NewNodeError оборачивает ошибку в NodeError.
// Уже обёрнутая ошибка и ErrRunCancelled возвращаются как есть.
func NewNodeError(node *domain.Node, err error) error {
	if err == nil {
		return nil
	}
	var ne *NodeError
	if errors.As(err, &ne) || errors.Is(err, ErrRunCancelled) {
		return err
	}
	return &NodeError{NodeID: node.ID, Kind: node.Kind, Err: err}
}
