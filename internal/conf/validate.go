package conf

import (
	"fmt"
	"slices"
	"time"

	"github.com/tphakala/odeflow/internal/errors"
)

// ErrInvalidSettings is wrapped by every error Validate returns.
var ErrInvalidSettings = errors.NewStd("invalid settings")

// Sink names accepted by deliver actions.
const (
	SinkMQTT     = "mqtt"
	SinkNotify   = "notify"
	SinkWebhook  = "webhook"
	SinkEventLog = "eventlog"
)

// Validate checks settings that do not need the engine to verify. Rule
// kinds and geometry are checked when the rules are built.
func (s *Settings) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, errors.Newf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidSettings).
			Component("conf").
			Category(errors.CategoryValidation).
			Build())
	}

	switch s.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log.level %q", s.Log.Level)
	}
	if s.Log.Format != "text" && s.Log.Format != "json" {
		add("log.format %q", s.Log.Format)
	}
	if s.Log.Timezone != "" {
		if _, err := time.LoadLocation(s.Log.Timezone); err != nil {
			add("log.timezone %q", s.Log.Timezone)
		}
	}
	if s.Telemetry.Enabled && s.Telemetry.DSN == "" {
		add("telemetry.dsn is required when telemetry is enabled")
	}
	if s.Telemetry.SampleRate < 0 || s.Telemetry.SampleRate > 1 {
		add("telemetry.sample_rate %g outside [0,1]", s.Telemetry.SampleRate)
	}
	if s.API.Enabled && s.API.Listen == "" {
		add("api.listen is required when the api is enabled")
	}
	if s.Delivery.QueueSize < 1 {
		add("delivery.queue_size %d", s.Delivery.QueueSize)
	}
	if s.Delivery.Workers < 1 {
		add("delivery.workers %d", s.Delivery.Workers)
	}
	if s.Delivery.JobTimeout < 0 {
		add("delivery.job_timeout %s", s.Delivery.JobTimeout)
	}
	if s.MQTT.Enabled {
		if s.MQTT.Broker == "" {
			add("mqtt.broker is required when mqtt is enabled")
		}
		if s.MQTT.QoS > 2 {
			add("mqtt.qos %d", s.MQTT.QoS)
		}
	}
	if s.Notify.Enabled && len(s.Notify.URLs) == 0 {
		add("notify.urls is required when notify is enabled")
	}
	if s.Webhook.Enabled && s.Webhook.URL == "" {
		add("webhook.url is required when the webhook is enabled")
	}
	if s.EventLog.Enabled {
		if s.EventLog.Driver != "sqlite" && s.EventLog.Driver != "mysql" {
			add("eventlog.driver %q", s.EventLog.Driver)
		}
		if s.EventLog.DSN == "" {
			add("eventlog.dsn is required when the event log is enabled")
		}
	}

	s.validateRules(add)
	return errors.Join(errs...)
}

func (s *Settings) validateRules(add func(format string, args ...any)) {
	r := &s.Rules
	if r.Handler == "" {
		add("rules.handler must not be empty")
	}

	areas := uniqueNames("area", len(r.Areas), func(i int) string { return r.Areas[i].Name }, add)
	actions := uniqueNames("action", len(r.Actions), func(i int) string { return r.Actions[i].Name }, add)
	uniqueNames("trigger", len(r.Triggers), func(i int) string { return r.Triggers[i].Name }, add)

	for _, a := range r.Actions {
		if a.Type == "" {
			add("action %q has no type", a.Name)
		}
		if a.Type == "deliver" && !s.sinkEnabled(a.Sink) {
			add("action %q delivers to %q which is unknown or disabled", a.Name, a.Sink)
		}
	}
	for _, t := range r.Triggers {
		if t.Type == "" {
			add("trigger %q has no type", t.Name)
		}
		for _, name := range t.Areas {
			if !slices.Contains(areas, name) {
				add("trigger %q uses unknown area %q", t.Name, name)
			}
		}
		for _, name := range t.Actions {
			if !slices.Contains(actions, name) {
				add("trigger %q uses unknown action %q", t.Name, name)
			}
		}
		if t.Line != "" && !slices.Contains(areas, t.Line) {
			add("trigger %q watches unknown line %q", t.Name, t.Line)
		}
		if t.MaxHistory < 0 {
			add("trigger %q max_history must not be negative", t.Name)
		}
	}
}

func (s *Settings) sinkEnabled(name string) bool {
	switch name {
	case SinkMQTT:
		return s.MQTT.Enabled
	case SinkNotify:
		return s.Notify.Enabled
	case SinkWebhook:
		return s.Webhook.Enabled
	case SinkEventLog:
		return s.EventLog.Enabled
	default:
		return false
	}
}

// uniqueNames reports empty and duplicate names and returns the names seen.
func uniqueNames(what string, n int, name func(int) string, add func(string, ...any)) []string {
	seen := make([]string, 0, n)
	for i := range n {
		v := name(i)
		switch {
		case v == "":
			add("%s #%d has no name", what, i+1)
		case slices.Contains(seen, v):
			add("duplicate %s name %q", what, v)
		default:
			seen = append(seen, v)
		}
	}
	return seen
}
