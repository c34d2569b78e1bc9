package rules

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/odeflow/internal/area"
	"github.com/tphakala/odeflow/internal/conf"
	"github.com/tphakala/odeflow/internal/detection"
	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/logger"
	"github.com/tphakala/odeflow/internal/ode"
	"github.com/tphakala/odeflow/internal/tracking"
)

type memorySink struct {
	mu       sync.Mutex
	payloads []ode.Payload
}

func (s *memorySink) Name() string { return conf.SinkWebhook }

func (s *memorySink) Deliver(_ context.Context, p ode.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	return nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func intPtr(v int) *int { return &v }

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func leftHalf() conf.AreaConfig {
	return conf.AreaConfig{
		Name:      "left-half",
		Polarity:  "inclusion",
		TestPoint: "center",
		Points: []conf.PointConfig{
			{X: 0, Y: 0}, {X: 960, Y: 0}, {X: 960, Y: 1080}, {X: 0, Y: 1080},
		},
	}
}

func sampleRules() conf.RulesSettings {
	return conf.RulesSettings{
		Handler: "lobby",
		Areas: []conf.AreaConfig{
			leftHalf(),
			{
				Name:      "tripwire",
				Type:      "line",
				Direction: "left",
				Points:    []conf.PointConfig{{X: 100, Y: 0}, {X: 100, Y: 1080}},
			},
		},
		Actions: []conf.ActionConfig{
			{Name: "collect", Type: "callback"},
			{Name: "printer", Type: "print"},
			{Name: "publish", Type: "deliver", Sink: conf.SinkWebhook},
			{Name: "stop-people", Type: "trigger-disable", Target: "people"},
			{Name: "outline", Type: "format-bbox", BorderWidth: 3, BorderColor: "red"},
		},
		Triggers: []conf.TriggerConfig{
			{
				Name:          "people",
				Type:          "occurrence",
				ClassID:       intPtr(0),
				MinConfidence: 0.5,
				Limit:         5,
				ResetTimeout:  conf.Duration(time.Minute),
				AreaPolicy:    "all",
				Areas:         []string{"left-half"},
				Actions:       []string{"collect", "printer", "publish", "outline"},
			},
			{
				Name:    "crowd",
				Type:    "range",
				Minimum: 2,
				Maximum: 4,
			},
			{
				Name:        "contact",
				Type:        "intersection",
				ClassID:     intPtr(0),
				PeerClassID: intPtr(2),
				Disabled:    true,
			},
			{
				Name:      "crossing",
				Type:      "cross",
				ClassID:   intPtr(0),
				Line:      "tripwire",
				CrossMode: "any",
			},
		},
	}
}

func buildSample(t *testing.T, rules conf.RulesSettings, opts ...Option) (*ode.Handler, *memorySink, *[]*ode.Occurrence, *bytes.Buffer) {
	t.Helper()
	sink := &memorySink{}
	var (
		mu    sync.Mutex
		fired []*ode.Occurrence
	)
	out := &bytes.Buffer{}
	base := []Option{
		WithLogger(testLogger()),
		WithSink(sink),
		WithOutput(out, io.Discard),
		WithCallback("collect", func(occ *ode.Occurrence) {
			mu.Lock()
			defer mu.Unlock()
			fired = append(fired, occ)
		}),
	}
	h, err := Build(rules, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close(context.Background()) })
	return h, sink, &fired, out
}

func personFrame(number uint64, left float64) *detection.Frame {
	f := &detection.Frame{SourceID: 1, FrameNumber: number, Width: 1920, Height: 1080}
	f.AddObject(&detection.Object{
		ClassID:    0,
		Confidence: 0.9,
		TrackingID: detection.Untracked,
		BBox:       detection.BBox{Left: left, Top: 200, Width: 80, Height: 200},
	})
	return f
}

func TestBuild_WiresRegistries(t *testing.T) {
	t.Parallel()
	h, _, _, _ := buildSample(t, sampleRules())

	assert.Equal(t, "lobby", h.Name())
	assert.Len(t, h.Areas(), 2)
	assert.Len(t, h.Actions(), 5)
	require.Len(t, h.Triggers(), 4)

	people, err := h.Trigger("people")
	require.NoError(t, err)
	assert.Equal(t, ode.KindOccurrence, people.Kind())
	assert.Equal(t, uint(5), people.Limit())
	assert.Equal(t, time.Minute, people.ResetTimeout())
	assert.Equal(t, ode.AreaPolicyAll, people.AreaPolicy())
	assert.Equal(t, 0, people.Criteria().ClassID)
	assert.InDelta(t, 0.5, people.Criteria().MinConfidence, 1e-9)
	assert.True(t, people.HasArea("left-half"))
	assert.True(t, people.HasAction("publish"))
	assert.False(t, people.HasAction("stop-people"))

	crowd, err := h.Trigger("crowd")
	require.NoError(t, err)
	assert.Equal(t, detection.ClassAny, crowd.Criteria().ClassID)

	contact, err := h.Trigger("contact")
	require.NoError(t, err)
	assert.False(t, contact.Enabled())
	require.IsType(t, &ode.IntersectionTrigger{}, contact)
	assert.Equal(t, 2, contact.(*ode.IntersectionTrigger).PeerClass())

	crossing, err := h.Trigger("crossing")
	require.NoError(t, err)
	require.IsType(t, &ode.CrossTrigger{}, crossing)
	assert.Equal(t, "tripwire", crossing.(*ode.CrossTrigger).Line().Name())

	tripwire, err := h.Area("tripwire")
	require.NoError(t, err)
	assert.IsType(t, &area.Line{}, tripwire)
}

func TestBuild_ProcessesFrames(t *testing.T) {
	t.Parallel()
	h, sink, fired, out := buildSample(t, sampleRules())

	h.ProcessBatch(nil, &detection.Batch{Frames: []*detection.Frame{
		personFrame(1, 200),  // inside left-half
		personFrame(2, 1500), // outside left-half
	}})

	require.Len(t, *fired, 1)
	occ := (*fired)[0]
	assert.Equal(t, "people", occ.TriggerName())
	assert.Equal(t, uint64(1), occ.Frame.FrameNumber)
	assert.Equal(t, 3, occ.Object.Display.BorderWidth)
	assert.Contains(t, out.String(), "trigger=people")
	assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBuild_ControlActionDisablesTrigger(t *testing.T) {
	t.Parallel()
	rules := sampleRules()
	rules.Triggers[0].Actions = []string{"collect", "stop-people"}
	h, _, fired, _ := buildSample(t, rules)

	h.ProcessBatch(nil, &detection.Batch{Frames: []*detection.Frame{personFrame(1, 200)}})
	h.ProcessBatch(nil, &detection.Batch{Frames: []*detection.Frame{personFrame(2, 300)}})

	assert.Len(t, *fired, 1)
	people, err := h.Trigger("people")
	require.NoError(t, err)
	assert.False(t, people.Enabled())
}

func TestBuild_TrackingMaxHistory(t *testing.T) {
	t.Parallel()
	rules := sampleRules()
	rules.Triggers = append(rules.Triggers,
		conf.TriggerConfig{Name: "loiter", Type: "persistence", ClassID: intPtr(0), MaxHistory: 25},
		conf.TriggerConfig{Name: "arrivals", Type: "instance", ClassID: intPtr(0)},
	)
	h, _, _, _ := buildSample(t, rules)

	loiter, err := h.Trigger("loiter")
	require.NoError(t, err)
	tt, ok := loiter.(ode.TrackingTrigger)
	require.True(t, ok)
	assert.Equal(t, 25, tt.MaxHistory())

	arrivals, err := h.Trigger("arrivals")
	require.NoError(t, err)
	assert.Equal(t, 1, arrivals.(ode.TrackingTrigger).MaxHistory(), "unset keeps the kind default")
}

func TestBuild_OptionalCollaborators(t *testing.T) {
	t.Parallel()
	rules := conf.RulesSettings{
		Handler: "custom",
		Actions: []conf.ActionConfig{{Name: "collect", Type: "callback"}},
		Triggers: []conf.TriggerConfig{{
			Name:    "wide",
			Type:    "custom",
			Actions: []string{"collect"},
		}},
	}
	check := CustomCheck{Check: func(_ *detection.Frame, obj *detection.Object) bool {
		return obj.BBox.Width > 100
	}}
	h, _, fired, _ := buildSample(t, rules, WithCustomCheck("wide", check))

	f := personFrame(1, 10)
	f.AddObject(&detection.Object{ClassID: 5, Confidence: 1, TrackingID: detection.Untracked,
		BBox: detection.BBox{Left: 0, Top: 0, Width: 300, Height: 10}})
	h.ProcessBatch(nil, &detection.Batch{Frames: []*detection.Frame{f}})

	require.Len(t, *fired, 1)
	assert.Equal(t, 5, (*fired)[0].Object.ClassID)
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(r *conf.RulesSettings)
		target error
	}{
		{"unknown area type", func(r *conf.RulesSettings) { r.Areas[0].Type = "circle" }, ErrUnknownType},
		{"bad polarity", func(r *conf.RulesSettings) { r.Areas[0].Polarity = "sideways" }, nil},
		{"degenerate polygon", func(r *conf.RulesSettings) { r.Areas[0].Points = r.Areas[0].Points[:2] }, area.ErrInvalidGeometry},
		{"unknown action type", func(r *conf.RulesSettings) { r.Actions[0].Type = "email" }, ErrUnknownType},
		{"missing sink", func(r *conf.RulesSettings) { r.Actions[2].Sink = conf.SinkMQTT }, ErrMissingCollaborator},
		{"missing recorder", func(r *conf.RulesSettings) {
			r.Actions = append(r.Actions, conf.ActionConfig{Name: "rec", Type: "record-start", Component: "rec0", Duration: conf.Duration(time.Second)})
		}, ErrMissingCollaborator},
		{"duplicate action", func(r *conf.RulesSettings) { r.Actions[1].Name = "collect" }, ode.ErrDuplicateName},
		{"unknown trigger type", func(r *conf.RulesSettings) { r.Triggers[1].Type = "median" }, ErrUnknownType},
		{"inverted range", func(r *conf.RulesSettings) { r.Triggers[1].Minimum = 9 }, ode.ErrInvalidParameter},
		{"cross on polygon", func(r *conf.RulesSettings) { r.Triggers[3].Line = "left-half" }, ode.ErrInvalidParameter},
		{"cross on missing line", func(r *conf.RulesSettings) { r.Triggers[3].Line = "nowhere" }, ode.ErrNotFound},
		{"attach unknown area", func(r *conf.RulesSettings) { r.Triggers[0].Areas = []string{"nowhere"} }, ode.ErrNotFound},
		{"bad area policy", func(r *conf.RulesSettings) { r.Triggers[0].AreaPolicy = "most" }, nil},
		{"unresolved control target", func(r *conf.RulesSettings) { r.Actions[3].Target = "ghost" }, ode.ErrNotFound},
		{"missing custom check", func(r *conf.RulesSettings) { r.Triggers[1].Type = "custom" }, ErrMissingCollaborator},
		{"max history on count trigger", func(r *conf.RulesSettings) { r.Triggers[1].MaxHistory = 5 }, ode.ErrInvalidParameter},
		{"max history on cross trigger", func(r *conf.RulesSettings) { r.Triggers[3].MaxHistory = 5 }, ode.ErrInvalidParameter},
		{"negative max history", func(r *conf.RulesSettings) {
			r.Triggers = append(r.Triggers, conf.TriggerConfig{Name: "new", Type: "instance", MaxHistory: -2})
		}, tracking.ErrInvalidHistory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rules := sampleRules()
			tt.mutate(&rules)

			h, err := Build(rules,
				WithLogger(testLogger()),
				WithSink(&memorySink{}),
				WithCallback("collect", func(*ode.Occurrence) {}))
			require.Error(t, err)
			assert.Nil(t, h)
			if tt.target != nil {
				require.ErrorIs(t, err, tt.target)
			}
			var ee *errors.EnhancedError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, componentName, ee.GetComponent())
		})
	}
}
