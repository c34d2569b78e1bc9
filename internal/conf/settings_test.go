package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/odeflow/internal/errors"
)

const sampleConfig = `
log:
  level: debug
  format: json
mqtt:
  enabled: true
  broker: tcp://localhost:1883
  qos: 1
delivery:
  job_timeout: 2s
rules:
  handler: gate
  areas:
    - name: entrance
      type: polygon
      polarity: inclusion
      test_point: bottom-center
      points:
        - {x: 0, y: 0}
        - {x: 100, y: 0}
        - {x: 100, y: 100}
  actions:
    - name: publish
      type: deliver
      sink: mqtt
    - name: stop-counting
      type: trigger-disable
      target: people
  triggers:
    - name: people
      type: occurrence
      class_id: 0
      min_confidence: 0.5
      limit: 10
      reset_timeout: 1m
      areas: [entrance]
      actions: [publish]
    - name: anything
      type: summation
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "odeflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	s, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, "json", s.Log.Format)
	assert.True(t, s.MQTT.Enabled)
	assert.Equal(t, byte(1), s.MQTT.QoS)
	assert.Equal(t, DefaultMQTTTopic, s.MQTT.Topic)
	assert.Equal(t, 2*time.Second, s.Delivery.JobTimeout.Std())
	assert.Equal(t, DefaultQueueSize, s.Delivery.QueueSize)
	assert.Equal(t, DefaultEventRetention, s.EventLog.Retention.Std())
	assert.Equal(t, DefaultAPIListen, s.API.Listen)

	r := s.Rules
	assert.Equal(t, "gate", r.Handler)
	require.Len(t, r.Areas, 1)
	assert.Len(t, r.Areas[0].Points, 3)
	assert.Equal(t, "bottom-center", r.Areas[0].TestPoint)
	require.Len(t, r.Triggers, 2)
	people := r.Triggers[0]
	require.NotNil(t, people.ClassID)
	assert.Equal(t, 0, *people.ClassID)
	assert.Equal(t, time.Minute, people.ResetTimeout.Std())
	assert.Equal(t, []string{"entrance"}, people.Areas)
	assert.Nil(t, r.Triggers[1].ClassID)

	require.NoError(t, s.Validate())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ODEFLOW_LOG_LEVEL", "warn")
	t.Setenv("ODEFLOW_DELIVERY_JOB_TIMEOUT", "750ms")
	t.Setenv("ODEFLOW_MQTT_BROKER", "tcp://broker:1883")

	s, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "warn", s.Log.Level)
	assert.Equal(t, 750*time.Millisecond, s.Delivery.JobTimeout.Std())
	assert.Equal(t, "tcp://broker:1883", s.MQTT.Broker)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, errors.CategoryConfiguration, errors.CategoryOf(err))
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultLogLevel, s.Log.Level)
	assert.Equal(t, DefaultHandlerName, s.Rules.Handler)
	require.NoError(t, s.Validate())
}

func TestSettings_Validate(t *testing.T) {
	valid := func(t *testing.T) *Settings {
		t.Helper()
		s, err := Load(writeConfig(t, sampleConfig))
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name   string
		mutate func(s *Settings)
		want   string
	}{
		{"log level", func(s *Settings) { s.Log.Level = "loud" }, "log.level"},
		{"log format", func(s *Settings) { s.Log.Format = "xml" }, "log.format"},
		{"timezone", func(s *Settings) { s.Log.Timezone = "Mars/Olympus" }, "log.timezone"},
		{"queue size", func(s *Settings) { s.Delivery.QueueSize = 0 }, "delivery.queue_size"},
		{"mqtt broker", func(s *Settings) { s.MQTT.Broker = "" }, "mqtt.broker"},
		{"mqtt qos", func(s *Settings) { s.MQTT.QoS = 3 }, "mqtt.qos"},
		{"telemetry dsn", func(s *Settings) { s.Telemetry.Enabled = true }, "telemetry.dsn"},
		{"notify urls", func(s *Settings) { s.Notify.Enabled = true }, "notify.urls"},
		{"eventlog driver", func(s *Settings) { s.EventLog.Enabled = true; s.EventLog.Driver = "oracle" }, "eventlog.driver"},
		{"disabled sink", func(s *Settings) { s.MQTT.Enabled = false }, `delivers to "mqtt"`},
		{"duplicate trigger", func(s *Settings) { s.Rules.Triggers[1].Name = "people" }, `duplicate trigger name "people"`},
		{"unnamed area", func(s *Settings) { s.Rules.Areas[0].Name = "" }, "area #1 has no name"},
		{"unknown area", func(s *Settings) { s.Rules.Triggers[0].Areas = []string{"exit"} }, `unknown area "exit"`},
		{"unknown action", func(s *Settings) { s.Rules.Triggers[0].Actions = []string{"email"} }, `unknown action "email"`},
		{"unknown line", func(s *Settings) { s.Rules.Triggers[1].Line = "tripwire" }, `unknown line "tripwire"`},
		{"missing type", func(s *Settings) { s.Rules.Triggers[1].Type = "" }, "has no type"},
		{"negative max history", func(s *Settings) { s.Rules.Triggers[0].MaxHistory = -1 }, "max_history"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid(t)
			tt.mutate(s)
			err := s.Validate()
			require.Error(t, err)
			require.ErrorIs(t, err, ErrInvalidSettings)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
