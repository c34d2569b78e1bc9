package ode

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/odeflow/internal/detection"
	"github.com/tphakala/odeflow/internal/logger"
	"github.com/tphakala/odeflow/internal/observability/metrics"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func newTestHandler(t *testing.T, opts ...HandlerOption) *Handler {
	t.Helper()
	h, err := NewHandler("test", append([]HandlerOption{WithLogger(testLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Close(ctx)
	})
	return h
}

// collector is a callback target that keeps every occurrence it sees.
type collector struct {
	mu   sync.Mutex
	occs []*Occurrence
}

func (c *collector) record(occ *Occurrence) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.occs = append(c.occs, occ)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.occs)
}

func (c *collector) all() []*Occurrence {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Occurrence, len(c.occs))
	copy(out, c.occs)
	return out
}

// collect attaches a callback action to trig and returns its collector.
func collect(t *testing.T, trig Trigger) *collector {
	t.Helper()
	c := &collector{}
	a, err := NewCallbackAction(trig.Name()+"-collect", c.record)
	require.NoError(t, err)
	require.NoError(t, trig.AddAction(a))
	return c
}

func box(left, top, width, height float64) detection.BBox {
	return detection.BBox{Left: left, Top: top, Width: width, Height: height}
}

func object(classID int, confidence float64, b detection.BBox) *detection.Object {
	return &detection.Object{ClassID: classID, Confidence: confidence, BBox: b, TrackingID: detection.Untracked}
}

func tracked(classID int, id uint64, b detection.BBox) *detection.Object {
	return &detection.Object{ClassID: classID, Confidence: 0.9, BBox: b, TrackingID: id}
}

func frame(number uint64, objs ...*detection.Object) *detection.Frame {
	f := &detection.Frame{SourceID: 1, FrameNumber: number, Width: 1920, Height: 1080}
	for _, o := range objs {
		f.AddObject(o)
	}
	return f
}

func batch(frames ...*detection.Frame) *detection.Batch {
	return &detection.Batch{Frames: frames}
}

// runFrame drives the three phases of a single trigger for one frame.
func runFrame(trig Trigger, f *detection.Frame) {
	trig.PreProcess(nil, f)
	for _, o := range f.Objects {
		trig.CheckForOccurrence(nil, f, o)
	}
	trig.PostProcess(nil, f)
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testMetrics(t *testing.T) (*metrics.Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	return m, reg
}

// counterValue sums the counter samples of a family whose labels include
// every pair in match.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, match map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, match) {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

func labelsMatch(m *dto.Metric, match map[string]string) bool {
	found := 0
	for _, lp := range m.GetLabel() {
		if v, ok := match[lp.GetName()]; ok && v == lp.GetValue() {
			found++
		}
	}
	return found == len(match)
}
