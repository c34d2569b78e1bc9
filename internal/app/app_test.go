package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/odeflow/internal/conf"
	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/eventlog"
	"github.com/tphakala/odeflow/internal/logger"
	"github.com/tphakala/odeflow/internal/webhook"
)

const hookURL = "https://hooks.example.com/odeflow"

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func intPtr(v int) *int { return &v }

// testSettings enables the event log and the webhook and logs every person
// seen in the left half of a 1920x1080 frame.
func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return &conf.Settings{
		Log:      conf.LogSettings{Level: "error", Format: "text"},
		Metrics:  conf.MetricsSettings{Enabled: true},
		Delivery: conf.DeliverySettings{QueueSize: 16, Workers: 1, JobTimeout: conf.Duration(time.Second)},
		Webhook:  conf.WebhookSettings{Enabled: true, URL: hookURL},
		EventLog: conf.EventLogSettings{
			Enabled:   true,
			Driver:    "sqlite",
			DSN:       fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
			Retention: conf.Duration(24 * time.Hour),
		},
		Rules: conf.RulesSettings{
			Handler: "replay",
			Areas: []conf.AreaConfig{{
				Name:   "left-half",
				Points: []conf.PointConfig{{X: 0, Y: 0}, {X: 960, Y: 0}, {X: 960, Y: 1080}, {X: 0, Y: 1080}},
			}},
			Actions: []conf.ActionConfig{
				{Name: "log-db", Type: "deliver", Sink: conf.SinkEventLog},
				{Name: "hook", Type: "deliver", Sink: conf.SinkWebhook},
			},
			Triggers: []conf.TriggerConfig{{
				Name:    "people",
				Type:    "occurrence",
				ClassID: intPtr(0),
				Areas:   []string{"left-half"},
				Actions: []string{"log-db", "hook"},
			}},
		},
	}
}

const replayInput = `# two frames, one person inside the area
{"frames":[{"source_id":1,"frame_number":1,"width":1920,"height":1080,"objects":[{"class_id":0,"confidence":0.9,"bbox":{"left":100,"top":100,"width":50,"height":120}}]}]}
{"frames":[{"source_id":1,"frame_number":2,"width":1920,"height":1080,"objects":[{"class_id":0,"confidence":0.9,"bbox":{"left":1500,"top":100,"width":50,"height":120}},{"class_id":2,"confidence":0.7,"bbox":{"left":10,"top":10,"width":50,"height":50}}]}]}
`

func TestApp_ReplayDeliversToSinks(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodPost, hookURL, httpmock.NewStringResponder(http.StatusNoContent, ""))

	a, err := New(testSettings(t),
		WithLogger(testLogger()),
		WithWebhookOption(webhook.WithHTTPClient(&http.Client{Transport: mt})))
	require.NoError(t, err)
	require.NotNil(t, a.History)
	require.NotNil(t, a.Pruner)
	require.NotNil(t, a.Registry)

	stats, err := a.Replay(t.Context(), strings.NewReader(replayInput), 0)
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Batches: 2, Frames: 2, Objects: 3, Events: 1}, stats)

	// Close drains the delivery queue before returning.
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	history := a.History
	require.NoError(t, a.Handler.Close(ctx))
	require.NoError(t, a.queue.Stop(ctx))

	items, total, err := history.List(t.Context(), eventlog.Filter{Trigger: "people"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, uint64(1), items[0].FrameNumber)
	assert.Equal(t, 1, mt.GetTotalCallCount())

	require.NoError(t, a.Close(ctx))
}

func TestApp_ReplayPacesAndStops(t *testing.T) {
	s := testSettings(t)
	s.Webhook.Enabled = false
	s.Rules.Actions = s.Rules.Actions[:1]
	s.Rules.Triggers[0].Actions = []string{"log-db"}

	a, err := New(s, WithLogger(testLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	start := time.Now()
	stats, err := a.Replay(t.Context(), strings.NewReader(replayInput), 20)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Batches)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond, "second batch waits for a token")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = a.Replay(ctx, strings.NewReader(replayInput), 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestApp_ReplayRejectsMalformedLine(t *testing.T) {
	s := testSettings(t)
	s.Webhook.Enabled = false
	s.Rules.Actions = s.Rules.Actions[:1]
	s.Rules.Triggers[0].Actions = []string{"log-db"}

	a, err := New(s, WithLogger(testLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	stats, err := a.Replay(t.Context(), strings.NewReader("{\"frames\":[]}\n{oops\n"), 0)
	require.Error(t, err)
	assert.Equal(t, 1, stats.Batches)
	assert.Equal(t, errors.CategoryValidation, errors.CategoryOf(err))
	assert.Contains(t, err.Error(), "line 2")
}

func TestApp_ReplaySkipsNullFramesAndObjects(t *testing.T) {
	s := testSettings(t)
	s.Webhook.Enabled = false
	s.Rules.Actions = s.Rules.Actions[:1]
	s.Rules.Triggers[0].Actions = []string{"log-db"}

	a, err := New(s, WithLogger(testLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	input := "{\"frames\":[null]}\n{\"frames\":[{\"frame_number\":1,\"objects\":[null]},null]}\n"
	stats, err := a.Replay(t.Context(), strings.NewReader(input), 0)
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Batches: 2, Frames: 1, Objects: 0, Events: 0}, stats)
}

func TestApp_WithoutSinksBuildsOffline(t *testing.T) {
	s := testSettings(t)
	s.MQTT = conf.MQTTSettings{Enabled: true, Broker: "tcp://127.0.0.1:1"}
	s.Rules.Actions = append(s.Rules.Actions, conf.ActionConfig{Name: "publish", Type: "deliver", Sink: conf.SinkMQTT})

	a, err := New(s, WithLogger(testLogger()), WithoutSinks())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	_, err = a.Handler.Action("publish")
	require.NoError(t, err)
	assert.Nil(t, a.mqtt, "no broker client is created")
	assert.Nil(t, a.History, "no database is opened")
}

func TestApp_NewFailures(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(s *conf.Settings)
		category errors.Category
	}{
		{"invalid settings", func(s *conf.Settings) { s.Delivery.Workers = 0 }, errors.CategoryValidation},
		{"bad mysql dsn", func(s *conf.Settings) { s.EventLog.Driver = "mysql"; s.EventLog.DSN = "bad dsn" }, errors.CategoryDatabase},
		{"bad notify url", func(s *conf.Settings) {
			s.Notify = conf.NotifySettings{Enabled: true, URLs: []string{"nope://"}}
		}, errors.CategoryConfiguration},
		{"unknown trigger type", func(s *conf.Settings) { s.Rules.Triggers[0].Type = "median" }, errors.CategoryConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings(t)
			tt.mutate(s)
			a, err := New(s, WithLogger(testLogger()))
			require.Error(t, err)
			assert.Nil(t, a)
			assert.Equal(t, tt.category, errors.CategoryOf(err), err.Error())
		})
	}
}

func TestNewLogger(t *testing.T) {
	var sb strings.Builder
	log, err := NewLogger(conf.LogSettings{Level: "info", Format: "json", Timezone: "UTC"}, &sb)
	require.NoError(t, err)
	log.Info("hello", logger.String("k", "v"))
	assert.Contains(t, sb.String(), `"msg":"hello"`)

	_, err = NewLogger(conf.LogSettings{Timezone: "Mars/Olympus"}, io.Discard)
	require.Error(t, err)
}
