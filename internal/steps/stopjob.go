package steps

import (
	"context"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
)

// StopJobStep — терминальный узел.
//
// Возвращает Terminal: runner немедленно завершает run
// со статусом по stopType и не идёт дальше по рёбрам.
type StopJobStep struct{}

// NewStopJobStep создаёт StopJobStep.
func NewStopJobStep() *StopJobStep {
	return &StopJobStep{}
}

// Kind возвращает тип узла.
func (s *StopJobStep) Kind() domain.NodeKind {
	return domain.KindStopJob
}

// Execute формирует сигнал остановки.
func (s *StopJobStep) Execute(_ context.Context, req *Request) (*Outcome, error) {
	cfg, err := config[*domain.StopJobConfig](req.Node)
	if err != nil {
		return nil, err
	}
	out := NewOutcome(req.Node.ID)

	reason, err := engine.ResolveString(cfg.Reason, req.Vars)
	warnUnresolved(out, err)

	status := cfg.StopType.Status()
	out.Terminal = &Terminal{Status: status, Reason: reason}

	msg := "Job stopped (" + string(cfg.StopType) + ")"
	if reason != "" {
		msg += ": " + reason
	}
	sev := domain.SeverityError
	if status == domain.RunStatusSucceeded {
		sev = domain.SeveritySuccess
	}
	out.Add(sev, msg)
	return out, nil
}
