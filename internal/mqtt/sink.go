package mqtt

import (
	"context"
	"encoding/json"

	"github.com/tphakala/odeflow/internal/conf"
	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/ode"
)

// Sink publishes each payload as JSON to a topic rendered from the payload.
type Sink struct {
	client Client
	topic  string
	retain bool
}

// NewSink wraps c. The topic template defaults to conf.DefaultMQTTTopic.
func NewSink(c Client, s conf.MQTTSettings) *Sink {
	topic := s.Topic
	if topic == "" {
		topic = conf.DefaultMQTTTopic
	}
	return &Sink{client: c, topic: topic, retain: s.Retain}
}

func (s *Sink) Name() string { return conf.SinkMQTT }

// Deliver connects on first use and publishes p.
func (s *Sink) Deliver(ctx context.Context, p ode.Payload) error {
	if !s.client.IsConnected() {
		if err := s.client.Connect(ctx); err != nil {
			return err
		}
	}
	body, err := json.Marshal(p)
	if err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryRuntime).
			Build()
	}
	return s.client.PublishWithRetain(ctx, ode.RenderTemplate(s.topic, p.Vars()), string(body), s.retain)
}

// Close disconnects from the broker.
func (s *Sink) Close() {
	s.client.Disconnect()
}
