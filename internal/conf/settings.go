// Package conf loads and validates odeflow settings. Settings come from a
// YAML file, environment variables prefixed with ODEFLOW_ and code defaults,
// in that order of precedence from last to first.
package conf

import (
	"time"
)

// Settings is the root configuration.
type Settings struct {
	Log       LogSettings       `mapstructure:"log" json:"log"`
	Telemetry TelemetrySettings `mapstructure:"telemetry" json:"telemetry"`
	API       APISettings       `mapstructure:"api" json:"api"`
	Metrics   MetricsSettings   `mapstructure:"metrics" json:"metrics"`
	Delivery  DeliverySettings  `mapstructure:"delivery" json:"delivery"`
	MQTT      MQTTSettings      `mapstructure:"mqtt" json:"mqtt"`
	Notify    NotifySettings    `mapstructure:"notify" json:"notify"`
	Webhook   WebhookSettings   `mapstructure:"webhook" json:"webhook"`
	EventLog  EventLogSettings  `mapstructure:"eventlog" json:"eventlog"`
	Rules     RulesSettings     `mapstructure:"rules" json:"rules"`
}

// LogSettings selects the log level and output format.
type LogSettings struct {
	Level string `mapstructure:"level" json:"level"` // debug, info, warn, error
	// Format is "text" or "json".
	Format string `mapstructure:"format" json:"format"`
	// Timezone names the IANA zone used for log timestamps. Empty is local.
	Timezone string `mapstructure:"timezone" json:"timezone"`
}

// TelemetrySettings configures error reporting to Sentry.
type TelemetrySettings struct {
	Enabled     bool    `mapstructure:"enabled" json:"enabled"`
	DSN         string  `mapstructure:"dsn" json:"-"`
	Environment string  `mapstructure:"environment" json:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" json:"sample_rate"`
}

// APISettings configures the HTTP control API.
type APISettings struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Listen  string `mapstructure:"listen" json:"listen"`
	// ShutdownTimeout bounds graceful server shutdown.
	ShutdownTimeout Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

// MetricsSettings toggles Prometheus metrics. When enabled and the API is
// running, metrics are served on /metrics.
type MetricsSettings struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
}

// DeliverySettings sizes the asynchronous delivery queue.
type DeliverySettings struct {
	QueueSize  int      `mapstructure:"queue_size" json:"queue_size"`
	Workers    int      `mapstructure:"workers" json:"workers"`
	JobTimeout Duration `mapstructure:"job_timeout" json:"job_timeout"`
}

// MQTTSettings configures the MQTT publish sink.
type MQTTSettings struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled"`
	Broker   string `mapstructure:"broker" json:"broker"`
	ClientID string `mapstructure:"client_id" json:"client_id"`
	Username string `mapstructure:"username" json:"username"`
	Password string `mapstructure:"password" json:"-"`
	// Topic may contain {{trigger}} and other payload placeholders.
	Topic          string   `mapstructure:"topic" json:"topic"`
	QoS            byte     `mapstructure:"qos" json:"qos"`
	Retain         bool     `mapstructure:"retain" json:"retain"`
	ConnectTimeout Duration `mapstructure:"connect_timeout" json:"connect_timeout"`
}

// NotifySettings configures the shoutrrr notification sink.
type NotifySettings struct {
	Enabled bool     `mapstructure:"enabled" json:"enabled"`
	URLs    []string `mapstructure:"urls" json:"-"`
	Title   string   `mapstructure:"title" json:"title"`
	// Template renders the message body from payload placeholders.
	Template string `mapstructure:"template" json:"template"`
}

// WebhookSettings configures the HTTP webhook sink.
type WebhookSettings struct {
	Enabled bool              `mapstructure:"enabled" json:"enabled"`
	URL     string            `mapstructure:"url" json:"url"`
	Headers map[string]string `mapstructure:"headers" json:"-"`
	Timeout Duration          `mapstructure:"timeout" json:"timeout"`
}

// EventLogSettings configures the persistent occurrence log.
type EventLogSettings struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Driver is "sqlite" or "mysql".
	Driver string `mapstructure:"driver" json:"driver"`
	// DSN is a file path for sqlite or a go-sql-driver DSN for mysql.
	DSN             string   `mapstructure:"dsn" json:"-"`
	Retention       Duration `mapstructure:"retention" json:"retention"`
	CleanupInterval Duration `mapstructure:"cleanup_interval" json:"cleanup_interval"`
}

// RulesSettings declares one handler with its areas, actions and triggers.
type RulesSettings struct {
	Handler  string          `mapstructure:"handler" json:"handler"`
	Areas    []AreaConfig    `mapstructure:"areas" json:"areas"`
	Actions  []ActionConfig  `mapstructure:"actions" json:"actions"`
	Triggers []TriggerConfig `mapstructure:"triggers" json:"triggers"`
}

// PointConfig is a coordinate in frame pixels.
type PointConfig struct {
	X float64 `mapstructure:"x" json:"x"`
	Y float64 `mapstructure:"y" json:"y"`
}

// AreaConfig declares a polygon or line area.
type AreaConfig struct {
	Name string `mapstructure:"name" json:"name"`
	// Type is "polygon" or "line".
	Type      string        `mapstructure:"type" json:"type"`
	Polarity  string        `mapstructure:"polarity" json:"polarity"`
	Points    []PointConfig `mapstructure:"points" json:"points"`
	TestPoint string        `mapstructure:"test_point" json:"test_point"`
	Direction string        `mapstructure:"direction" json:"direction"`
	Edge      string        `mapstructure:"edge" json:"edge"`
	Color     string        `mapstructure:"color" json:"color"`
	LineWidth int           `mapstructure:"line_width" json:"line_width"`
}

// ActionConfig declares an action. Which fields apply depends on Type.
type ActionConfig struct {
	Name string `mapstructure:"name" json:"name"`
	Type string `mapstructure:"type" json:"type"`

	// Target names the trigger or action controlled by control actions.
	Target  string `mapstructure:"target" json:"target,omitempty"`
	Trigger string `mapstructure:"trigger" json:"trigger,omitempty"`
	Area    string `mapstructure:"area" json:"area,omitempty"`

	// Sink names the destination of a deliver action: mqtt, notify,
	// webhook or eventlog.
	Sink string `mapstructure:"sink" json:"sink,omitempty"`
	// Output is "stdout" or "stderr" for print actions.
	Output   string `mapstructure:"output" json:"output,omitempty"`
	Template string `mapstructure:"template" json:"template,omitempty"`

	BorderWidth     int    `mapstructure:"border_width" json:"border_width,omitempty"`
	BorderColor     string `mapstructure:"border_color" json:"border_color,omitempty"`
	BackgroundColor string `mapstructure:"background_color" json:"background_color,omitempty"`

	// Component, Pipeline, Start and Duration apply to record and pipeline
	// actions.
	Component string   `mapstructure:"component" json:"component,omitempty"`
	Pipeline  string   `mapstructure:"pipeline" json:"pipeline,omitempty"`
	Start     Duration `mapstructure:"start" json:"start,omitzero"`
	Duration  Duration `mapstructure:"duration" json:"duration,omitzero"`
	Annotate  bool     `mapstructure:"annotate" json:"annotate,omitempty"`
}

// TriggerConfig declares a trigger. Which fields apply depends on Type.
type TriggerConfig struct {
	Name string `mapstructure:"name" json:"name"`
	Type string `mapstructure:"type" json:"type"`
	// Disabled starts the trigger switched off.
	Disabled bool `mapstructure:"disabled" json:"disabled,omitempty"`

	// ClassID is the target class. Nil matches any class.
	ClassID           *int    `mapstructure:"class_id" json:"class_id,omitempty"`
	SourceID          uint    `mapstructure:"source_id" json:"source_id,omitempty"`
	MinConfidence     float64 `mapstructure:"min_confidence" json:"min_confidence,omitempty"`
	MinWidth          float64 `mapstructure:"min_width" json:"min_width,omitempty"`
	MinHeight         float64 `mapstructure:"min_height" json:"min_height,omitempty"`
	MaxWidth          float64 `mapstructure:"max_width" json:"max_width,omitempty"`
	MaxHeight         float64 `mapstructure:"max_height" json:"max_height,omitempty"`
	SampleNumerator   uint    `mapstructure:"sample_numerator" json:"sample_numerator,omitempty"`
	SampleDenominator uint    `mapstructure:"sample_denominator" json:"sample_denominator,omitempty"`

	Limit        uint     `mapstructure:"limit" json:"limit,omitempty"`
	ResetTimeout Duration `mapstructure:"reset_timeout" json:"reset_timeout,omitzero"`
	AreaPolicy   string   `mapstructure:"area_policy" json:"area_policy,omitempty"`
	Areas        []string `mapstructure:"areas" json:"areas,omitempty"`
	Actions      []string `mapstructure:"actions" json:"actions,omitempty"`

	// Minimum and Maximum are the bounds of minimum, maximum and range
	// triggers.
	Minimum uint64 `mapstructure:"minimum" json:"minimum,omitempty"`
	Maximum uint64 `mapstructure:"maximum" json:"maximum,omitempty"`
	// PeerClassID pairs the target class with another class in intersection
	// triggers. Nil pairs objects of the target class with each other.
	PeerClassID *int `mapstructure:"peer_class_id" json:"peer_class_id,omitempty"`
	// MinDuration and MaxDuration bound persistence triggers.
	MinDuration Duration `mapstructure:"min_duration" json:"min_duration,omitzero"`
	MaxDuration Duration `mapstructure:"max_duration" json:"max_duration,omitzero"`
	// Line names the line area watched by a cross trigger.
	Line           string `mapstructure:"line" json:"line,omitempty"`
	CrossMode      string `mapstructure:"cross_mode" json:"cross_mode,omitempty"`
	MinTracePoints int    `mapstructure:"min_trace_points" json:"min_trace_points,omitempty"`
	MaxTracePoints int    `mapstructure:"max_trace_points" json:"max_trace_points,omitempty"`
	// MaxHistory caps the trace kept per object by instance and persistence
	// triggers. 0 keeps the default.
	MaxHistory int `mapstructure:"max_history" json:"max_history,omitempty"`
}

// Defaults used when neither the file nor the environment sets a value.
const (
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultAPIListen       = ":8089"
	DefaultQueueSize       = 1000
	DefaultQueueWorkers    = 2
	DefaultJobTimeout      = 10 * time.Second
	DefaultMQTTTopic       = "odeflow/{{trigger}}"
	DefaultEventLogDriver  = "sqlite"
	DefaultEventLogDSN     = "odeflow.db"
	DefaultEventRetention  = 30 * 24 * time.Hour
	DefaultCleanupInterval = time.Hour
	DefaultHandlerName     = "main"
)
