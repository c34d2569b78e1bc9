package eventlog

import (
	"context"

	"github.com/tphakala/odeflow/internal/conf"
	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/ode"
)

// Sink writes every delivered payload to the repository.
type Sink struct {
	repo Repository
}

// NewSink creates a sink writing to repo.
func NewSink(repo Repository) *Sink {
	return &Sink{repo: repo}
}

func (s *Sink) Name() string { return conf.SinkEventLog }

func (s *Sink) Deliver(ctx context.Context, p ode.Payload) error {
	o, err := FromPayload(p)
	if err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryRuntime).
			Build()
	}
	if err := s.repo.Save(ctx, o); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryDatabase).
			Context("trigger", p.Trigger).
			Build()
	}
	return nil
}
