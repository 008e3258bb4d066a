package engine

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Flowline/internal/domain"
)

// Допустимые HTTP методы.
var validMethods = map[string]bool{
	"GET":     true,
	"POST":    true,
	"PUT":     true,
	"PATCH":   true,
	"DELETE":  true,
	"HEAD":    true,
	"OPTIONS": true,
}

// Compile выполняет полную валидацию flow и строит граф.
//
// Проверяет:
// - Наличие узлов
// - Уникальность ID узлов
// - Известность типов и обязательные поля конфигурации
// - Рёбра: существование концов и допустимость handle
// - Отсутствие циклов вне тел loop (делегируется Graph)
//
// Возвращает первую найденную ошибку.
func Compile(flow *domain.Flow) (*Graph, error) {
	if problems := Problems(flow); len(problems) > 0 {
		return nil, problems[0]
	}
	return BuildGraph(flow)
}

// Validate проверяет flow без сохранения графа.
func Validate(flow *domain.Flow) error {
	_, err := Compile(flow)
	return err
}

// Problems возвращает все ошибки узлов и рёбер (без проверки циклов).
// Используется редактором, чтобы подсветить все проблемы сразу.
func Problems(flow *domain.Flow) []*ValidationError {
	if flow == nil || len(flow.Nodes) == 0 {
		return []*ValidationError{{Message: "flow has no nodes", Err: ErrEmptyFlow}}
	}

	var problems []*ValidationError
	nodeIDs := make(map[string]*domain.Node, len(flow.Nodes))

	// Валидируем каждый узел
	for i := range flow.Nodes {
		n := &flow.Nodes[i]

		if n.ID == "" {
			problems = append(problems, NewValidationError("", "id",
				fmt.Sprintf("node %d has empty ID", i), ErrEmptyNodeID))
			continue
		}
		if _, dup := nodeIDs[n.ID]; dup {
			problems = append(problems, NewValidationError(n.ID, "id",
				fmt.Sprintf("duplicate node ID: %s", n.ID), ErrDuplicateNodeID))
			continue
		}
		nodeIDs[n.ID] = n

		// Результат узла пишется по пути <id>.result
		if p, err := ParsePath(ResultKey(n.ID)); err != nil || len(p) != 2 || p.Root() != n.ID {
			problems = append(problems, NewValidationError(n.ID, "id",
				fmt.Sprintf("node ID %q is not a valid variable name", n.ID), ErrInvalidConfig))
			continue
		}

		if err := ValidateNode(n); err != nil {
			if ve, ok := err.(*ValidationError); ok {
				problems = append(problems, ve)
			}
		}
	}

	// Валидируем рёбра
	for _, e := range flow.Edges {
		src, ok := nodeIDs[e.Source]
		if !ok {
			problems = append(problems, newEdgeError(e.ID, "source",
				fmt.Sprintf("source %q does not exist", e.Source), ErrDanglingEdge))
			continue
		}
		if _, ok := nodeIDs[e.Target]; !ok {
			problems = append(problems, newEdgeError(e.ID, "target",
				fmt.Sprintf("target %q does not exist", e.Target), ErrDanglingEdge))
			continue
		}
		if handles := src.Kind.Handles(); handles != nil && !slices.Contains(handles, e.SourceHandle) {
			problems = append(problems, newEdgeError(e.ID, "sourceHandle",
				fmt.Sprintf("%s node %s has no handle %q (want one of %v)", src.Kind, src.ID, e.SourceHandle, handles),
				ErrInvalidHandle))
		}
	}

	return problems
}

// Report возвращает все проблемы узлов и рёбер, а если их нет,
// проверяет граф целиком (циклы). Пустой результат — flow валиден.
func Report(flow *domain.Flow) []*ValidationError {
	if problems := Problems(flow); len(problems) > 0 {
		return problems
	}

	_, err := BuildGraph(flow)
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return []*ValidationError{ve}
	}
	return []*ValidationError{{Message: err.Error(), Err: err}}
}

// ValidateNode валидирует конфигурацию одного узла.
func ValidateNode(n *domain.Node) error {
	if n.Kind == "" {
		return NewValidationError(n.ID, "type", "node has empty type", ErrUnknownNodeKind)
	}
	if !n.Kind.IsValid() || n.Config == nil {
		return NewValidationError(n.ID, "type",
			fmt.Sprintf("unknown node type: %s", n.Kind), ErrUnknownNodeKind)
	}

	switch cfg := n.Config.(type) {
	case *domain.HTTPRequestConfig:
		return validateHTTP(n.ID, cfg)
	case *domain.IfElseConfig:
		return validateIfElse(n.ID, cfg)
	case *domain.LoopConfig:
		return validateLoop(n.ID, cfg)
	case *domain.SetVariableConfig:
		return validateSetVariable(n.ID, cfg)
	case *domain.LogConfig:
		return validateLog(n.ID, cfg)
	case *domain.DelayConfig:
		return validateDelay(n.ID, cfg)
	case *domain.StopJobConfig:
		return validateStopJob(n.ID, cfg)
	}
	return nil
}

func missing(nodeID, field string) *ValidationError {
	return NewValidationError(nodeID, field, field+" is required", ErrMissingConfig)
}

func invalid(nodeID, field, msg string) *ValidationError {
	return NewValidationError(nodeID, field, msg, ErrInvalidConfig)
}

func validateHTTP(id string, cfg *domain.HTTPRequestConfig) error {
	if strings.TrimSpace(cfg.Target()) == "" {
		return missing(id, "url")
	}
	if cfg.Method != "" && !HasPlaceholders(cfg.Method) && !validMethods[strings.ToUpper(cfg.Method)] {
		return invalid(id, "method", fmt.Sprintf("unsupported HTTP method: %s", cfg.Method))
	}
	if cfg.TimeoutSec < 0 {
		return invalid(id, "timeoutSec", "timeoutSec must not be negative")
	}
	return nil
}

func validateIfElse(id string, cfg *domain.IfElseConfig) error {
	switch cfg.Mode() {
	case domain.ConditionComparison:
		if cfg.Comparison == nil {
			return missing(id, "comparison")
		}
		if cfg.Comparison.Left == nil {
			return missing(id, "comparison.left")
		}
		if !cfg.Comparison.Operator.IsValid() {
			return invalid(id, "comparison.operator",
				fmt.Sprintf("unsupported operator: %q", cfg.Comparison.Operator))
		}
	case domain.ConditionExpression:
		if strings.TrimSpace(cfg.Expression) == "" {
			return missing(id, "expression")
		}
	case domain.ConditionExists:
		if strings.TrimSpace(cfg.ExistsPath) == "" {
			return missing(id, "existsPath")
		}
	default:
		return invalid(id, "conditionType",
			fmt.Sprintf("unsupported condition type: %s", cfg.ConditionType))
	}
	return nil
}

func validateLoop(id string, cfg *domain.LoopConfig) error {
	switch cfg.LoopType {
	case domain.LoopForEach:
		if strings.TrimSpace(cfg.ArrayPath) == "" {
			return missing(id, "arrayPath")
		}
	case domain.LoopWhile:
		if strings.TrimSpace(cfg.ConditionExpression) == "" {
			return missing(id, "conditionExpression")
		}
	case "":
		return missing(id, "loopType")
	default:
		return invalid(id, "loopType", fmt.Sprintf("unsupported loop type: %s", cfg.LoopType))
	}
	if cfg.BatchSize < 0 {
		return invalid(id, "batchSize", "batchSize must not be negative")
	}
	if cfg.MaxIterations < 0 {
		return invalid(id, "maxIterations", "maxIterations must not be negative")
	}
	return nil
}

func validateSetVariable(id string, cfg *domain.SetVariableConfig) error {
	key := strings.TrimSpace(cfg.VariableKey)
	if key == "" {
		return missing(id, "variableKey")
	}
	if _, err := ParsePath(VarKey(key)); err != nil {
		return invalid(id, "variableKey", fmt.Sprintf("invalid variable key %q", cfg.VariableKey))
	}
	if cfg.UseTransform && strings.TrimSpace(cfg.Transform) == "" {
		return missing(id, "transform")
	}
	return nil
}

func validateLog(id string, cfg *domain.LogConfig) error {
	if cfg.Message == "" {
		return missing(id, "message")
	}
	switch cfg.Level() {
	case domain.SeverityInfo, domain.SeveritySuccess, domain.SeverityWarning, domain.SeverityError:
		return nil
	default:
		return invalid(id, "logLevel", fmt.Sprintf("unsupported log level: %s", cfg.LogLevel))
	}
}

func validateDelay(id string, cfg *domain.DelayConfig) error {
	switch cfg.DelayType {
	case domain.DelaySeconds, domain.DelayMinutes, domain.DelayHours:
		if cfg.Value == nil {
			return missing(id, "value")
		}
		if n, ok := literalNumber(cfg.Value); ok && n < 0 {
			return invalid(id, "value", "delay must not be negative")
		}
	case domain.DelayCron:
		if strings.TrimSpace(cfg.CronExpression) == "" {
			return missing(id, "cronExpression")
		}
		if _, err := ParseCron(cfg.CronExpression); err != nil {
			return NewValidationError(id, "cronExpression", err.Error(), ErrInvalidConfig)
		}
		if cfg.Timezone != "" {
			if _, err := time.LoadLocation(cfg.Timezone); err != nil {
				return invalid(id, "timezone", fmt.Sprintf("unknown timezone: %s", cfg.Timezone))
			}
		}
	case "":
		return missing(id, "delayType")
	default:
		return invalid(id, "delayType", fmt.Sprintf("unsupported delay type: %s", cfg.DelayType))
	}
	return nil
}

func validateStopJob(id string, cfg *domain.StopJobConfig) error {
	switch cfg.StopType {
	case domain.StopSuccess, domain.StopError, domain.StopCancel:
		return nil
	case "":
		return missing(id, "stopType")
	default:
		return invalid(id, "stopType", fmt.Sprintf("unsupported stop type: %s", cfg.StopType))
	}
}

// literalNumber возвращает число, если значение — числовой литерал
// (не шаблон).
func literalNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		if HasPlaceholders(t) {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
