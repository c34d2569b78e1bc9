// Package app assembles a running odeflow instance from settings: logger,
// error reporting, metrics, delivery queue, sinks, event log and the rules
// handler.
package app

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/tphakala/odeflow/internal/conf"
	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/eventlog"
	"github.com/tphakala/odeflow/internal/logger"
	"github.com/tphakala/odeflow/internal/mqtt"
	"github.com/tphakala/odeflow/internal/notify"
	"github.com/tphakala/odeflow/internal/observability/metrics"
	"github.com/tphakala/odeflow/internal/ode"
	"github.com/tphakala/odeflow/internal/rules"
	"github.com/tphakala/odeflow/internal/telemetry"
	"github.com/tphakala/odeflow/internal/webhook"
)

const componentName = "app"

// flushTimeout bounds how long Close waits for queued error reports.
const flushTimeout = 2 * time.Second

// App is a fully wired instance. Close releases everything New acquired.
type App struct {
	Settings *conf.Settings
	Log      logger.Logger
	Handler  *ode.Handler
	Registry *prometheus.Registry
	// History is nil unless the event log is enabled.
	History eventlog.Repository
	Pruner  *eventlog.Pruner

	queue    *ode.DeliveryQueue
	db       *gorm.DB
	mqtt     *mqtt.Sink
	reporter *telemetry.Reporter
}

// Option customizes New.
type Option func(*options)

type options struct {
	log        logger.Logger
	logOutput  io.Writer
	rules      []rules.Option
	skipSinks  bool
	httpClient webhook.Option
}

// WithLogger replaces the logger built from settings.
func WithLogger(log logger.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithLogOutput sets where the settings-built logger writes. Defaults to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithRuleOptions passes extra options to rules.Build, for example callbacks
// or collaborators the host provides.
func WithRuleOptions(opts ...rules.Option) Option {
	return func(o *options) { o.rules = append(o.rules, opts...) }
}

// WithoutSinks replaces every sink with a placeholder that accepts and
// discards payloads. Used by validation, which must not dial brokers or
// create databases.
func WithoutSinks() Option {
	return func(o *options) { o.skipSinks = true }
}

// WithWebhookOption forwards an option to the webhook sink.
func WithWebhookOption(opt webhook.Option) Option {
	return func(o *options) { o.httpClient = opt }
}

// NewLogger builds the logger described by s.
func NewLogger(s conf.LogSettings, w io.Writer) (logger.Logger, error) {
	var tz *time.Location
	if s.Timezone != "" {
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return nil, errors.New(err).
				Component(componentName).
				Category(errors.CategoryConfiguration).
				Context("timezone", s.Timezone).
				Build()
		}
		tz = loc
	}
	level := logger.ParseLevel(s.Level)
	if s.Format == "json" {
		return logger.NewJSONLogger(w, level, tz), nil
	}
	return logger.NewSlogLogger(w, level, tz), nil
}

// New validates s and wires every enabled component.
func New(s *conf.Settings, opts ...Option) (*App, error) {
	o := options{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	log := o.log
	if log == nil {
		var err error
		if log, err = NewLogger(s.Log, o.logOutput); err != nil {
			return nil, err
		}
	}
	logger.SetGlobal(log)

	a := &App{Settings: s, Log: log.Module(componentName)}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.Background())
		}
	}()

	if s.Telemetry.Enabled {
		r, err := telemetry.New(s.Telemetry, log)
		if err != nil {
			return nil, err
		}
		r.Install()
		a.reporter = r
	}

	var m *metrics.Metrics
	if s.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		var err error
		if m, err = metrics.New(a.Registry); err != nil {
			return nil, errors.New(err).
				Component(componentName).
				Category(errors.CategoryRuntime).
				Build()
		}
	}

	a.queue = ode.NewDeliveryQueue(
		ode.WithQueueSize(s.Delivery.QueueSize),
		ode.WithWorkers(s.Delivery.Workers),
		ode.WithJobTimeout(s.Delivery.JobTimeout.Std()),
		ode.WithQueueLogger(log.Module("delivery")),
		ode.WithQueueMetrics(m),
	)

	ruleOpts := []rules.Option{
		rules.WithLogger(log),
		rules.WithHandlerOptions(ode.WithDeliveryQueue(a.queue), ode.WithMetrics(m)),
	}
	sinks, err := a.openSinks(o)
	if err != nil {
		return nil, err
	}
	for _, sink := range sinks {
		ruleOpts = append(ruleOpts, rules.WithSink(sink))
	}
	ruleOpts = append(ruleOpts, o.rules...)

	h, err := rules.Build(s.Rules, ruleOpts...)
	if err != nil {
		return nil, err
	}
	a.Handler = h
	ok = true
	return a, nil
}

func (a *App) openSinks(o options) ([]ode.Sink, error) {
	s := a.Settings
	var sinks []ode.Sink
	if o.skipSinks {
		for _, name := range []string{conf.SinkEventLog, conf.SinkMQTT, conf.SinkNotify, conf.SinkWebhook} {
			sinks = append(sinks, discardSink(name))
		}
		return sinks, nil
	}

	if s.EventLog.Enabled {
		db, err := eventlog.Open(s.EventLog)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.History = eventlog.NewRepository(db)
		sinks = append(sinks, eventlog.NewSink(a.History))
		if s.EventLog.Retention > 0 {
			a.Pruner = eventlog.NewPruner(a.History, s.EventLog.Retention.Std(), s.EventLog.CleanupInterval.Std(), a.Log)
		}
	}
	if s.MQTT.Enabled {
		client, err := mqtt.NewClient(s.MQTT, a.Log)
		if err != nil {
			return nil, err
		}
		a.mqtt = mqtt.NewSink(client, s.MQTT)
		sinks = append(sinks, a.mqtt)
	}
	if s.Notify.Enabled {
		n, err := notify.New(s.Notify)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, n)
	}
	if s.Webhook.Enabled {
		var whOpts []webhook.Option
		if o.httpClient != nil {
			whOpts = append(whOpts, o.httpClient)
		}
		w, err := webhook.New(s.Webhook, whOpts...)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, w)
	}
	return sinks, nil
}

// Close stops the handler, drains the delivery queue within ctx and closes
// the sinks and the database. It is safe to call on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Handler != nil {
		if err := a.Handler.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	if a.db != nil {
		if err := eventlog.Close(a.db); err != nil {
			errs = append(errs, err)
		}
	}
	if a.reporter != nil {
		a.reporter.Close(flushTimeout)
	}
	return errors.Join(errs...)
}

// discardSink stands in for a network sink when rules are built without
// connecting anywhere.
type discardSink string

func (d discardSink) Name() string { return string(d) }

func (discardSink) Deliver(context.Context, ode.Payload) error { return nil }
