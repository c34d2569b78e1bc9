package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogLevelDebug},
		{"DEBUG", LogLevelDebug},
		{"warning", LogLevelWarn},
		{"warn", LogLevelWarn},
		{"error", LogLevelError},
		{"", LogLevelInfo},
		{"bogus", LogLevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSlogLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelWarn, nil)

	log.Info("hidden")
	log.Warn("shown", String("key", "value"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "key=value")
}

func TestJSONLogger_FieldsAndModule(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSONLogger(&buf, LogLevelDebug, time.UTC).Module("ode").With(Int("frame", 7))

	log.Error("action failed", Error(errors.New("boom")), Uint64("event_id", 3))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "action failed", rec["msg"])
	assert.Equal(t, "ode", rec["module"])
	assert.EqualValues(t, 7, rec["frame"])
	assert.Equal(t, "boom", rec["error"])
	assert.EqualValues(t, 3, rec["event_id"])
}

func TestGlobal_SetIgnoresNil(t *testing.T) {
	prev := Global()
	t.Cleanup(func() { SetGlobal(prev) })

	SetGlobal(nil)
	assert.Same(t, prev, Global())

	var buf bytes.Buffer
	l := NewSlogLogger(&buf, LogLevelInfo, nil)
	SetGlobal(l)
	assert.Same(t, l, Global())
}
