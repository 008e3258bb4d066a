package domain

import (
	"errors"
	"fmt"

	"github.com/shaiso/Flowline/internal/xjson"
)

// NodeKind — тип узла flow.
type NodeKind string

const (
	// KindHTTPRequest — HTTP-запрос к внешнему сервису.
	KindHTTPRequest NodeKind = "httpRequest"

	// KindIfElse — ветвление по условию.
	KindIfElse NodeKind = "ifElse"

	// KindLoop — цикл forEach/while.
	KindLoop NodeKind = "loop"

	// KindSetVariable — запись переменной vars.*.
	KindSetVariable NodeKind = "setVariable"

	// KindLog — запись в журнал выполнения.
	KindLog NodeKind = "log"

	// KindDelay — пауза или cron-директива.
	KindDelay NodeKind = "delay"

	// KindStopJob — принудительное завершение run.
	KindStopJob NodeKind = "stopJob"
)

// ErrUnknownNodeKind — тип узла не поддерживается движком.
var ErrUnknownNodeKind = errors.New("unknown node kind")

// Kinds возвращает все поддерживаемые типы узлов.
func Kinds() []NodeKind {
	return []NodeKind{
		KindHTTPRequest, KindIfElse, KindLoop, KindSetVariable,
		KindLog, KindDelay, KindStopJob,
	}
}

// IsValid проверяет, что тип узла известен.
func (k NodeKind) IsValid() bool {
	switch k {
	case KindHTTPRequest, KindIfElse, KindLoop, KindSetVariable, KindLog, KindDelay, KindStopJob:
		return true
	default:
		return false
	}
}

// Handles возвращает допустимые sourceHandle для рёбер из узла этого типа.
// nil означает, что тип не ветвится и handle не проверяется.
func (k NodeKind) Handles() []string {
	switch k {
	case KindIfElse:
		return []string{HandleTrue, HandleFalse}
	case KindLoop:
		return []string{HandleBody, HandleComplete}
	default:
		return nil
	}
}

// Handles ветвящихся узлов.
const (
	HandleTrue     = "true"
	HandleFalse    = "false"
	HandleBody     = "body"
	HandleComplete = "complete"
)

// NodeConfig — типизированная конфигурация узла.
// Конкретный тип определяется Node.Kind.
type NodeConfig interface {
	NodeKind() NodeKind
}

// Node — узел flow.
//
// В JSON конфигурация хранится в поле "data" (формат редактора),
// в Go — как NodeConfig конкретного типа.
type Node struct {
	// ID — уникальный идентификатор узла в рамках flow.
	ID string

	// Kind — тип узла.
	Kind NodeKind

	// Label — подпись узла в редакторе.
	Label string

	// Skipped — узел пропускается: пишется "node skipped",
	// выполнение идёт по первому исходящему ребру.
	Skipped bool

	// ContinueOnError — ошибка узла не валит run.
	ContinueOnError bool

	// Position — координаты на холсте.
	Position *Position

	// Config — конфигурация узла. Nil, если тип неизвестен.
	Config NodeConfig
}

// nodeJSON — wire-формат узла.
type nodeJSON struct {
	ID              string           `json:"id"`
	Type            NodeKind         `json:"type"`
	Label           string           `json:"label,omitempty"`
	Skipped         bool             `json:"skipped,omitempty"`
	ContinueOnError bool             `json:"continueOnError,omitempty"`
	Position        *Position        `json:"position,omitempty"`
	Data            xjson.RawMessage `json:"data,omitempty"`
}

// UnmarshalJSON декодирует узел, выбирая тип конфигурации по полю "type".
//
// Неизвестный тип не является ошибкой декодирования: Config остаётся nil,
// а отказ формирует валидация flow.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := xjson.Unmarshal(data, &raw); err != nil {
		return err
	}

	n.ID = raw.ID
	n.Kind = raw.Type
	n.Label = raw.Label
	n.Skipped = raw.Skipped
	n.ContinueOnError = raw.ContinueOnError
	n.Position = raw.Position
	n.Config = nil

	cfg := NewConfig(raw.Type)
	if cfg == nil {
		return nil
	}
	if len(raw.Data) > 0 && string(raw.Data) != "null" {
		if err := xjson.Unmarshal(raw.Data, cfg); err != nil {
			return fmt.Errorf("node %s: decode %s config: %w", raw.ID, raw.Type, err)
		}
	}
	n.Config = cfg
	return nil
}

// MarshalJSON кодирует узел в формат редактора.
func (n Node) MarshalJSON() ([]byte, error) {
	raw := nodeJSON{
		ID:              n.ID,
		Type:            n.Kind,
		Label:           n.Label,
		Skipped:         n.Skipped,
		ContinueOnError: n.ContinueOnError,
		Position:        n.Position,
	}
	if n.Config != nil {
		data, err := xjson.Marshal(n.Config)
		if err != nil {
			return nil, fmt.Errorf("node %s: encode config: %w", n.ID, err)
		}
		raw.Data = data
	}
	return xjson.Marshal(raw)
}

// NewConfig возвращает пустую конфигурацию для типа узла.
// Для неизвестного типа возвращает nil.
func NewConfig(kind NodeKind) NodeConfig {
	switch kind {
	case KindHTTPRequest:
		return &HTTPRequestConfig{}
	case KindIfElse:
		return &IfElseConfig{}
	case KindLoop:
		return &LoopConfig{}
	case KindSetVariable:
		return &SetVariableConfig{}
	case KindLog:
		return &LogConfig{}
	case KindDelay:
		return &DelayConfig{}
	case KindStopJob:
		return &StopJobConfig{}
	default:
		return nil
	}
}
