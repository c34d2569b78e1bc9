package conf

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/tphakala/odeflow/internal/errors"
)

// EnvPrefix prefixes every environment override, for example
// ODEFLOW_MQTT_BROKER or ODEFLOW_DELIVERY_JOB_TIMEOUT.
const EnvPrefix = "ODEFLOW"

// Load reads settings from path. An empty path searches for odeflow.yaml in
// the working directory and /etc/odeflow; finding none is not an error and
// leaves defaults and environment overrides in effect.
func Load(path string) (*Settings, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("odeflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/odeflow")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("path", path).
				Build()
		}
	}

	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("path", v.ConfigFileUsed()).
			Build()
	}
	return &s, nil
}

// SetDefaults registers every default with v. Keys must be known to viper
// for environment overrides to apply.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("log.timezone", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")
	v.SetDefault("telemetry.environment", "production")
	v.SetDefault("telemetry.sample_rate", 1.0)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen", DefaultAPIListen)
	v.SetDefault("api.shutdown_timeout", "5s")
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("delivery.queue_size", DefaultQueueSize)
	v.SetDefault("delivery.workers", DefaultQueueWorkers)
	v.SetDefault("delivery.job_timeout", DefaultJobTimeout.String())

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "odeflow")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", DefaultMQTTTopic)
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.connect_timeout", "10s")

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.title", "odeflow: {{trigger}}")
	v.SetDefault("notify.template", "{{trigger}} fired on source {{source_id}} frame {{frame_number}}")

	v.SetDefault("webhook.enabled", false)
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout", "5s")

	v.SetDefault("eventlog.enabled", false)
	v.SetDefault("eventlog.driver", DefaultEventLogDriver)
	v.SetDefault("eventlog.dsn", DefaultEventLogDSN)
	v.SetDefault("eventlog.retention", DefaultEventRetention.String())
	v.SetDefault("eventlog.cleanup_interval", DefaultCleanupInterval.String())

	v.SetDefault("rules.handler", DefaultHandlerName)
}
