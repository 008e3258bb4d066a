package steps

import (
	"context"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
)

// LogStep — узел записи в журнал выполнения.
// Хранилище не меняет.
type LogStep struct{}

// NewLogStep создаёт LogStep.
func NewLogStep() *LogStep {
	return &LogStep{}
}

// Kind возвращает тип узла.
func (s *LogStep) Kind() domain.NodeKind {
	return domain.KindLog
}

// Execute разрешает сообщение и пишет его с уровнем logLevel.
func (s *LogStep) Execute(_ context.Context, req *Request) (*Outcome, error) {
	cfg, err := config[*domain.LogConfig](req.Node)
	if err != nil {
		return nil, err
	}
	out := NewOutcome(req.Node.ID)

	msg, err := engine.ResolveString(cfg.Message, req.Vars)
	warnUnresolved(out, err)

	out.Add(cfg.Level(), msg)
	return out, nil
}
