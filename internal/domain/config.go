package domain

import (
	"fmt"
	"time"

	"github.com/shaiso/Flowline/internal/xjson"
)

// HTTPRequestConfig — конфигурация узла httpRequest.
//
// Строковые поля — шаблоны {{path}}, разрешаются перед запросом.
type HTTPRequestConfig struct {
	// Method — HTTP метод (по умолчанию GET).
	Method string `json:"method,omitempty"`

	// URL — адрес запроса.
	URL string `json:"url,omitempty"`

	// Endpoint — синоним URL (старые версии редактора).
	Endpoint string `json:"endpoint,omitempty"`

	// Headers — заголовки запроса.
	Headers KeyValues `json:"headers,omitempty"`

	// QueryParams — параметры query string.
	QueryParams KeyValues `json:"queryParams,omitempty"`

	// Body — тело запроса. Строка отправляется как есть,
	// объект или массив кодируется в JSON.
	Body any `json:"body,omitempty"`

	// ParseJSON — разбирать тело ответа как JSON (по умолчанию true).
	ParseJSON *bool `json:"parseJson,omitempty"`

	// FailOnError — статус >= 400 считается ошибкой узла.
	FailOnError bool `json:"failOnError,omitempty"`

	// TimeoutSec — таймаут запроса в секундах (0 — по умолчанию клиента).
	TimeoutSec int `json:"timeoutSec,omitempty"`
}

// NodeKind реализует NodeConfig.
func (*HTTPRequestConfig) NodeKind() NodeKind { return KindHTTPRequest }

// Target возвращает адрес запроса: URL, а если он пуст — Endpoint.
func (c *HTTPRequestConfig) Target() string {
	if c.URL != "" {
		return c.URL
	}
	return c.Endpoint
}

// ShouldParseJSON возвращает значение parseJson с учётом умолчания.
func (c *HTTPRequestConfig) ShouldParseJSON() bool {
	return c.ParseJSON == nil || *c.ParseJSON
}

// ConditionType — режим узла ifElse.
type ConditionType string

const (
	// ConditionComparison — сравнение двух операндов.
	ConditionComparison ConditionType = "comparison"

	// ConditionExpression — булево выражение в песочнице.
	ConditionExpression ConditionType = "expression"

	// ConditionExists — проверка существования пути.
	ConditionExists ConditionType = "exists"
)

// Operator — оператор сравнения.
type Operator string

// Операторы сравнения.
const (
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpContains       Operator = "contains"
	OpStartsWith     Operator = "startsWith"
	OpEndsWith       Operator = "endsWith"
)

// IsValid проверяет, что оператор поддерживается.
func (o Operator) IsValid() bool {
	switch o {
	case OpEqual, OpNotEqual, OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual,
		OpContains, OpStartsWith, OpEndsWith:
		return true
	default:
		return false
	}
}

// Comparison — операнды и оператор сравнения.
type Comparison struct {
	Left     any      `json:"left"`
	Operator Operator `json:"operator"`
	Right    any      `json:"right"`
}

// IfElseConfig — конфигурация узла ifElse.
type IfElseConfig struct {
	// ConditionType — режим (по умолчанию comparison).
	ConditionType ConditionType `json:"conditionType,omitempty"`

	// Comparison — для режима comparison.
	Comparison *Comparison `json:"comparison,omitempty"`

	// Expression — для режима expression.
	// Может содержать {{path}}: значения подставляются литералами.
	Expression string `json:"expression,omitempty"`

	// ExistsPath — для режима exists.
	ExistsPath string `json:"existsPath,omitempty"`
}

// NodeKind реализует NodeConfig.
func (*IfElseConfig) NodeKind() NodeKind { return KindIfElse }

// Mode возвращает режим с учётом умолчания.
func (c *IfElseConfig) Mode() ConditionType {
	if c.ConditionType == "" {
		return ConditionComparison
	}
	return c.ConditionType
}

// LoopType — вид цикла.
type LoopType string

const (
	// LoopForEach — итерация по массиву.
	LoopForEach LoopType = "forEach"

	// LoopWhile — итерация, пока условие истинно.
	LoopWhile LoopType = "while"
)

// DefaultMaxIterations — предел итераций, если maxIterations не задан.
const DefaultMaxIterations = 100

// LoopConfig — конфигурация узла loop.
type LoopConfig struct {
	// LoopType — forEach или while.
	LoopType LoopType `json:"loopType"`

	// ArrayPath — путь к массиву для forEach ("http1.result.data" или "{{...}}").
	ArrayPath string `json:"arrayPath,omitempty"`

	// BatchSize — размер пачки; 0 — без разбиения, по одному элементу.
	BatchSize int `json:"batchSize,omitempty"`

	// MaxIterations — предел итераций (0 — DefaultMaxIterations).
	MaxIterations int `json:"maxIterations,omitempty"`

	// ConditionExpression — условие while.
	ConditionExpression string `json:"conditionExpression,omitempty"`
}

// NodeKind реализует NodeConfig.
func (*LoopConfig) NodeKind() NodeKind { return KindLoop }

// IterationLimit возвращает предел итераций с учётом умолчания.
func (c *LoopConfig) IterationLimit() int {
	if c.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return c.MaxIterations
}

// SetVariableConfig — конфигурация узла setVariable.
type SetVariableConfig struct {
	// VariableKey — имя переменной, запись идёт в vars.<VariableKey>.
	VariableKey string `json:"variableKey"`

	// Value — значение или шаблон.
	Value any `json:"value,omitempty"`

	// UseTransform — применить Transform к разрешённому значению.
	UseTransform bool `json:"useTransform,omitempty"`

	// Transform — выражение песочницы; исходное значение доступно как value.
	Transform string `json:"transform,omitempty"`
}

// NodeKind реализует NodeConfig.
func (*SetVariableConfig) NodeKind() NodeKind { return KindSetVariable }

// LogConfig — конфигурация узла log.
type LogConfig struct {
	// Message — шаблон сообщения.
	Message string `json:"message"`

	// LogLevel — уровень записи (по умолчанию info).
	LogLevel Severity `json:"logLevel,omitempty"`
}

// NodeKind реализует NodeConfig.
func (*LogConfig) NodeKind() NodeKind { return KindLog }

// Level возвращает уровень с учётом умолчания.
func (c *LogConfig) Level() Severity {
	if c.LogLevel == "" {
		return SeverityInfo
	}
	return c.LogLevel
}

// DelayType — вид задержки.
type DelayType string

const (
	DelaySeconds DelayType = "seconds"
	DelayMinutes DelayType = "minutes"
	DelayHours   DelayType = "hours"
	DelayCron    DelayType = "cron"
)

// Unit возвращает длительность одной единицы задержки.
// Для cron возвращает 0.
func (t DelayType) Unit() time.Duration {
	switch t {
	case DelaySeconds:
		return time.Second
	case DelayMinutes:
		return time.Minute
	case DelayHours:
		return time.Hour
	default:
		return 0
	}
}

// DelayConfig — конфигурация узла delay.
type DelayConfig struct {
	// DelayType — seconds, minutes, hours или cron.
	DelayType DelayType `json:"delayType"`

	// Value — количество единиц (число или шаблон).
	Value any `json:"value,omitempty"`

	// CronExpression — расписание для cron.
	CronExpression string `json:"cronExpression,omitempty"`

	// Timezone — часовой пояс для cron (по умолчанию UTC).
	Timezone string `json:"timezone,omitempty"`
}

// NodeKind реализует NodeConfig.
func (*DelayConfig) NodeKind() NodeKind { return KindDelay }

// StopType — вид завершения run.
type StopType string

const (
	StopSuccess StopType = "success"
	StopError   StopType = "error"
	StopCancel  StopType = "cancel"
)

// Status возвращает итоговый статус run для вида завершения.
func (t StopType) Status() RunStatus {
	switch t {
	case StopError:
		return RunStatusFailed
	case StopCancel:
		return RunStatusCancelled
	default:
		return RunStatusSucceeded
	}
}

// StopJobConfig — конфигурация узла stopJob.
type StopJobConfig struct {
	// StopType — success, error или cancel.
	StopType StopType `json:"stopType"`

	// Reason — шаблон причины остановки.
	Reason string `json:"reason,omitempty"`
}

// NodeKind реализует NodeConfig.
func (*StopJobConfig) NodeKind() NodeKind { return KindStopJob }

// KeyValues — заголовки и query-параметры.
//
// Редактор сохраняет их либо объектом {"k": "v"},
// либо списком [{"key": "k", "value": "v", "enabled": true}].
// Оба варианта декодируются в map.
type KeyValues map[string]string

// UnmarshalJSON принимает объект или список пар.
func (kv *KeyValues) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*kv = nil
		return nil
	}

	var obj map[string]any
	if err := xjson.Unmarshal(data, &obj); err == nil {
		out := make(KeyValues, len(obj))
		for k, v := range obj {
			out[k] = stringify(v)
		}
		*kv = out
		return nil
	}

	var list []struct {
		Key     string `json:"key"`
		Value   any    `json:"value"`
		Enabled *bool  `json:"enabled"`
	}
	if err := xjson.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("key-values must be an object or a list of pairs: %w", err)
	}
	out := make(KeyValues, len(list))
	for _, p := range list {
		if p.Key == "" || (p.Enabled != nil && !*p.Enabled) {
			continue
		}
		out[p.Key] = stringify(p.Value)
	}
	*kv = out
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		data, err := xjson.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
