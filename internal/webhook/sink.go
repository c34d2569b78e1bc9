// Package webhook posts occurrence payloads to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/tphakala/odeflow/internal/conf"
	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/ode"
)

const (
	componentName  = "webhook"
	defaultTimeout = 5 * time.Second
	// maxErrorBody caps how much of a failed response is kept in the error.
	maxErrorBody = 512
)

// Option configures a Sink.
type Option func(*Sink)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sink) { s.client = c }
}

// Sink posts each payload as a JSON body.
type Sink struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// New creates a webhook sink.
func New(s conf.WebhookSettings, opts ...Option) (*Sink, error) {
	if s.URL == "" {
		return nil, errors.Newf("webhook url is not configured").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	timeout := s.Timeout.Std()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	sink := &Sink{
		url:     s.URL,
		headers: s.Headers,
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(sink)
	}
	return sink, nil
}

func (s *Sink) Name() string { return conf.SinkWebhook }

// Deliver posts p. Any non-2xx response is an error.
func (s *Sink) Deliver(ctx context.Context, p ode.Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return s.fail(err, errors.CategoryRuntime, p)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return s.fail(err, errors.CategoryConfiguration, p)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "odeflow")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return s.fail(err, errors.CategoryNetwork, p)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errors.Newf("webhook returned %s", resp.Status).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("url", s.url).
			Context("status", resp.StatusCode).
			Context("body", string(snippet)).
			Context("trigger", p.Trigger).
			Build()
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *Sink) fail(err error, category errors.Category, p ode.Payload) error {
	return errors.New(err).
		Component(componentName).
		Category(category).
		Context("url", s.url).
		Context("trigger", p.Trigger).
		Build()
}
