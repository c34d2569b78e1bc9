// Package telemetry forwards enhanced errors to Sentry.
package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/odeflow/internal/conf"
	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/logger"
)

// dedupWindow suppresses repeats of the same error from the same component.
const dedupWindow = time.Minute

// Option adjusts the Sentry client options before the client is created.
type Option func(*sentry.ClientOptions)

// WithBeforeSend installs a hook that sees every event before it is sent.
// Returning nil drops the event.
func WithBeforeSend(fn func(*sentry.Event, *sentry.EventHint) *sentry.Event) Option {
	return func(o *sentry.ClientOptions) { o.BeforeSend = fn }
}

// WithRelease tags events with the build version.
func WithRelease(release string) Option {
	return func(o *sentry.ClientOptions) { o.Release = release }
}

// Reporter sends runtime errors to Sentry. User errors (validation and
// not-found) are never reported.
type Reporter struct {
	hub  *sentry.Hub
	seen *cache.Cache
	log  logger.Logger
}

// New creates a reporter with its own Sentry hub.
func New(s conf.TelemetrySettings, log logger.Logger, opts ...Option) (*Reporter, error) {
	co := sentry.ClientOptions{
		Dsn:              s.DSN,
		Environment:      s.Environment,
		SampleRate:       s.SampleRate,
		AttachStacktrace: true,
	}
	for _, opt := range opts {
		opt(&co)
	}
	client, err := sentry.NewClient(co)
	if err != nil {
		return nil, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if log == nil {
		log = logger.Global()
	}
	return &Reporter{
		hub:  sentry.NewHub(client, sentry.NewScope()),
		seen: cache.New(dedupWindow, 2*dedupWindow),
		log:  log.Module("telemetry"),
	}, nil
}

// Install makes r the process-wide error reporter.
func (r *Reporter) Install() {
	errors.SetReporter(r.Report)
}

// Report sends ee to Sentry unless its category is excluded or the same
// error was sent within the dedup window.
func (r *Reporter) Report(ee *errors.EnhancedError) {
	if ee == nil || !reportable(ee.GetCategory()) {
		return
	}
	key := ee.GetComponent() + "\x00" + string(ee.GetCategory()) + "\x00" + ee.Error()
	if r.seen.Add(key, struct{}{}, cache.DefaultExpiration) != nil {
		return
	}

	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.GetCategory()))
		if ctx := ee.GetContext(); len(ctx) > 0 {
			scope.SetContext("error", sentry.Context(ctx))
		}
		if id := r.hub.CaptureException(ee.Err); id != nil {
			r.log.Debug("error reported",
				logger.String("event_id", string(*id)),
				logger.String("component", ee.GetComponent()))
		}
	})
}

// Flush waits up to timeout for queued events to be sent.
func (r *Reporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

// Close clears the process-wide reporter and flushes pending events.
func (r *Reporter) Close(timeout time.Duration) {
	errors.SetReporter(nil)
	r.Flush(timeout)
}

func reportable(c errors.Category) bool {
	switch c {
	case errors.CategoryValidation, errors.CategoryNotFound:
		return false
	default:
		return true
	}
}
