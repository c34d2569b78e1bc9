// Package notify sends occurrence notifications through shoutrrr services
// such as ntfy, Telegram, Discord or email.
package notify

import (
	"context"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/odeflow/internal/conf"
	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/ode"
)

const componentName = "notify"

// Sender delivers a rendered message to every configured service. It
// returns one entry per service; nil entries are successes.
type Sender interface {
	Send(message string, params *types.Params) []error
}

// Sink renders a title and message from each payload and sends them.
type Sink struct {
	sender   Sender
	title    string
	template string
}

// New creates a sink for the configured shoutrrr URLs.
func New(s conf.NotifySettings) (*Sink, error) {
	if len(s.URLs) == 0 {
		return nil, errors.Newf("no notification urls configured").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	sender, err := shoutrrr.CreateSender(s.URLs...)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Context("services", len(s.URLs)).
			Build()
	}
	return NewWithSender(sender, s), nil
}

// NewWithSender creates a sink around an existing sender.
func NewWithSender(sender Sender, s conf.NotifySettings) *Sink {
	return &Sink{sender: sender, title: s.Title, template: s.Template}
}

func (s *Sink) Name() string { return conf.SinkNotify }

// Deliver sends the rendered notification. The send runs on its own
// goroutine so ctx bounds how long the caller waits; a send that outlives
// ctx finishes in the background.
func (s *Sink) Deliver(ctx context.Context, p ode.Payload) error {
	vars := p.Vars()
	message := ode.RenderTemplate(s.template, vars)
	params := types.Params{}
	if s.title != "" {
		params.SetTitle(ode.RenderTemplate(s.title, vars))
	}

	done := make(chan error, 1)
	go func() {
		done <- errors.Join(s.sender.Send(message, &params)...)
	}()

	select {
	case err := <-done:
		if err != nil {
			return errors.New(err).
				Component(componentName).
				Category(errors.CategoryNetwork).
				Context("trigger", p.Trigger).
				Build()
		}
		return nil
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("trigger", p.Trigger).
			Build()
	}
}
