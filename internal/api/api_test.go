package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/odeflow/internal/conf"
	"github.com/tphakala/odeflow/internal/detection"
	"github.com/tphakala/odeflow/internal/eventlog"
	"github.com/tphakala/odeflow/internal/logger"
	"github.com/tphakala/odeflow/internal/observability/metrics"
	"github.com/tphakala/odeflow/internal/ode"
	"github.com/tphakala/odeflow/internal/rules"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func intPtr(v int) *int { return &v }

func testRules() conf.RulesSettings {
	return conf.RulesSettings{
		Handler: "front-door",
		Areas: []conf.AreaConfig{
			{
				Name:   "porch",
				Points: []conf.PointConfig{{X: 0, Y: 0}, {X: 500, Y: 0}, {X: 500, Y: 500}, {X: 0, Y: 500}},
			},
			{
				Name:   "gate",
				Type:   "line",
				Points: []conf.PointConfig{{X: 700, Y: 0}, {X: 700, Y: 1080}},
			},
		},
		Actions: []conf.ActionConfig{
			{Name: "printer", Type: "print"},
			{Name: "stop-people", Type: "trigger-disable", Target: "people"},
		},
		Triggers: []conf.TriggerConfig{
			{Name: "people", Type: "occurrence", ClassID: intPtr(0), Areas: []string{"porch"}, Actions: []string{"printer"}},
			{Name: "crowd", Type: "range", Minimum: 2, Maximum: 5},
		},
	}
}

type fixture struct {
	server  *Server
	handler *ode.Handler
	repo    eventlog.Repository
	reg     *prometheus.Registry
}

func newFixture(t *testing.T, withHistory bool) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	h, err := rules.Build(testRules(),
		rules.WithLogger(testLogger()),
		rules.WithOutput(io.Discard, io.Discard),
		rules.WithHandlerOptions(ode.WithMetrics(m)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close(context.Background()) })

	f := &fixture{handler: h, reg: reg}
	opts := []Option{WithLogger(testLogger()), WithMetrics(reg)}
	if withHistory {
		name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
		db, err := eventlog.Open(conf.EventLogSettings{
			Driver: "sqlite",
			DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = eventlog.Close(db) })
		f.repo = eventlog.NewRepository(db)
		opts = append(opts, WithHistory(f.repo))
	}
	f.server = New(h, opts...)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func personBatch(frame uint64) *detection.Batch {
	f := &detection.Frame{SourceID: 1, FrameNumber: frame, Width: 1920, Height: 1080}
	f.AddObject(&detection.Object{
		ClassID:    0,
		Confidence: 0.9,
		TrackingID: detection.Untracked,
		BBox:       detection.BBox{Left: 100, Top: 100, Width: 50, Height: 100},
	})
	return &detection.Batch{Frames: []*detection.Frame{f}}
}

func TestHealthAndSchema(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "front-door", health["handler"])
	assert.Equal(t, true, health["enabled"])

	rec = f.do(t, http.MethodGet, "/api/v1/schema", "")
	require.Equal(t, http.StatusOK, rec.Code)
	schema := decode[ode.Schema](t, rec)
	assert.Len(t, schema.Triggers, len(ode.GetSchema().Triggers))
	assert.NotEmpty(t, schema.Actions)
}

func TestTriggerRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/api/v1/triggers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Triggers []ode.TriggerInfo `json:"triggers"`
		Count    int               `json:"count"`
	}](t, rec)
	require.Equal(t, 2, list.Count)
	assert.Equal(t, "people", list.Triggers[0].Name)
	assert.Equal(t, []string{"porch"}, list.Triggers[0].Areas)

	f.handler.ProcessBatch(nil, personBatch(1))
	rec = f.do(t, http.MethodGet, "/api/v1/triggers/people", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint(1), decode[ode.TriggerInfo](t, rec).Fired)

	rec = f.do(t, http.MethodPost, "/api/v1/triggers/people/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[ode.TriggerInfo](t, rec).Fired)

	rec = f.do(t, http.MethodPatch, "/api/v1/triggers/people", `{"limit": 3, "reset_timeout_ms": 1500, "area_policy": "all"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[ode.TriggerInfo](t, rec)
	assert.Equal(t, uint(3), info.Limit)
	assert.Equal(t, int64(1500), info.ResetTimeoutMs)
	assert.Equal(t, "all", info.AreaPolicy)

	rec = f.do(t, http.MethodPatch, "/api/v1/triggers/people/toggle", `{"enabled": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	people, err := f.handler.Trigger("people")
	require.NoError(t, err)
	assert.False(t, people.Enabled())
}

func TestTriggerRoutes_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		status   int
		category string
	}{
		{"unknown trigger", http.MethodGet, "/api/v1/triggers/ghost", "", http.StatusNotFound, "not-found"},
		{"toggle without body", http.MethodPatch, "/api/v1/triggers/people/toggle", `{}`, http.StatusBadRequest, ""},
		{"negative timeout", http.MethodPatch, "/api/v1/triggers/people", `{"reset_timeout_ms": -1}`, http.StatusBadRequest, ""},
		{"bad area policy", http.MethodPatch, "/api/v1/triggers/people", `{"area_policy": "most"}`, http.StatusBadRequest, ""},
		{"attach unknown action", http.MethodPut, "/api/v1/triggers/people/actions/ghost", "", http.StatusNotFound, "not-found"},
		{"attach duplicate action", http.MethodPut, "/api/v1/triggers/people/actions/printer", "", http.StatusConflict, "conflict"},
		{"unknown action", http.MethodGet, "/api/v1/actions/ghost", "", http.StatusNotFound, "not-found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, tt.category, resp.Category)
		})
	}
}

func TestAttachAndDetach(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPut, "/api/v1/triggers/crowd/areas/porch", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"porch"}, decode[ode.TriggerInfo](t, rec).Areas)

	rec = f.do(t, http.MethodPut, "/api/v1/triggers/crowd/actions/printer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"printer"}, decode[ode.TriggerInfo](t, rec).Actions)

	rec = f.do(t, http.MethodDelete, "/api/v1/triggers/crowd/actions/printer", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/v1/triggers/crowd/areas/porch", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	crowd, err := f.handler.Trigger("crowd")
	require.NoError(t, err)
	assert.False(t, crowd.HasArea("porch"))
	assert.False(t, crowd.HasAction("printer"))
}

func TestActionAndAreaRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/api/v1/actions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Actions []ode.ActionInfo `json:"actions"`
	}](t, rec)
	require.Len(t, list.Actions, 2)
	assert.Equal(t, "printer", list.Actions[0].Name)
	assert.Equal(t, []ode.Reference{{Kind: "trigger", Name: "people"}}, list.Actions[1].References)

	rec = f.do(t, http.MethodPatch, "/api/v1/actions/printer/toggle", `{"enabled": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/v1/actions/printer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[ode.ActionInfo](t, rec).Enabled)

	rec = f.do(t, http.MethodGet, "/api/v1/areas", "")
	require.Equal(t, http.StatusOK, rec.Code)
	areas := decode[struct {
		Areas []areaView `json:"areas"`
	}](t, rec)
	require.Len(t, areas.Areas, 2)
	assert.Equal(t, areaView{Name: "gate", Type: "line", Polarity: "inclusion"}, areas.Areas[0])
	assert.Equal(t, "polygon", areas.Areas[1].Type)
}

func TestHandlerRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPatch, "/api/v1/handler/toggle", `{"enabled": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[ode.HandlerInfo](t, rec)
	assert.False(t, info.Enabled)
	assert.Equal(t, 2, info.Triggers)
	assert.False(t, f.handler.Enabled())

	rec = f.do(t, http.MethodPost, "/api/v1/handler/validate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	stop, err := ode.NewTriggerDisableAction("stop-ghost", "ghost")
	require.NoError(t, err)
	require.NoError(t, f.handler.AddAction(stop))
	rec = f.do(t, http.MethodPost, "/api/v1/handler/validate", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "ghost")
}

func TestHistoryRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	sink := eventlog.NewSink(f.repo)

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i, trigger := range []string{"people", "people", "crowd"} {
		require.NoError(t, sink.Deliver(t.Context(), ode.Payload{
			ID:          uuid.NewString(),
			Trigger:     trigger,
			Kind:        ode.KindOccurrence,
			SourceID:    uint(i % 2),
			FrameNumber: uint64(i),
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	rec := f.do(t, http.MethodGet, "/api/v1/history?trigger=people&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		History []historyEntry `json:"history"`
		Total   int64          `json:"total"`
		Limit   int            `json:"limit"`
	}](t, rec)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 1, page.Limit)
	require.Len(t, page.History, 1)
	assert.Equal(t, uint64(1), page.History[0].Payload.FrameNumber, "newest first")

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/history/%d", page.History[0].ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "people", decode[historyEntry](t, rec).Payload.Trigger)

	rec = f.do(t, http.MethodGet, "/api/v1/history?source_id=0&since="+base.Add(time.Second).Format(time.RFC3339), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = f.do(t, http.MethodGet, "/api/v1/history/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[struct {
		Triggers []eventlog.TriggerCount `json:"triggers"`
	}](t, rec)
	assert.ElementsMatch(t, []eventlog.TriggerCount{
		{TriggerName: "people", Total: 2},
		{TriggerName: "crowd", Total: 1},
	}, summary.Triggers)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/history/9999", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/history/abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/history?since=yesterday", "").Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted":3`)
}

func TestHistoryRoutes_Disabled(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/api/v1/history", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.handler.ProcessBatch(nil, personBatch(1))

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "odeflow_handler_batches_total 1")
	assert.Contains(t, rec.Body.String(), `odeflow_trigger_fires_total{kind="occurrence",trigger="people"} 1`)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- f.server.Run(ctx, "127.0.0.1:0", time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
