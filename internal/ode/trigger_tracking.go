package ode

import (
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/odeflow/internal/area"
	"github.com/tphakala/odeflow/internal/detection"
	"github.com/tphakala/odeflow/internal/tracking"
)

// TrackingTrigger is implemented by kinds that keep per-object history.
type TrackingTrigger interface {
	Trigger
	TrackedCount() int
	MaxHistory() int
	SetMaxHistory(n int) error
}

// trackedBase owns a tracking store that only sees objects passing the
// criteria. Objects absent from a sampled frame are purged at its end.
type trackedBase struct {
	triggerBase
	store *tracking.Store
}

func (t *trackedBase) initTracked(self Trigger, kind Kind, name string, c Criteria, maxHistory int, opts []tracking.Option) error {
	if err := t.init(self, kind, name, c); err != nil {
		return err
	}
	t.store = tracking.NewStore(maxHistory, opts...)
	t.onReset = t.store.Clear
	return nil
}

// TrackedCount returns the number of objects currently tracked.
func (t *trackedBase) TrackedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Len()
}

func (t *trackedBase) MaxHistory() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.MaxHistory()
}

// SetMaxHistory changes the trace capacity of all tracked objects.
func (t *trackedBase) SetMaxHistory(n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.SetMaxHistory(n)
}

// trackLocked applies the criteria and records obj. It returns the tracked
// object and whether it was already known before this frame.
func (t *trackedBase) trackLocked(frame *detection.Frame, obj *detection.Object) (*tracking.TrackedObject, bool) {
	if !obj.IsTracked() || !t.checkLocked(frame, obj, t.criteria.ClassID) {
		return nil, false
	}
	_, known := t.store.Get(frame.SourceID, obj.TrackingID)
	t.accumulator++
	return t.store.Track(frame, obj), known
}

// PostProcess purges objects not seen in this frame. Unsampled frames are
// skipped so the objects they did not evaluate survive.
func (t *trackedBase) PostProcess(_ detection.Buffer, frame *detection.Frame) uint {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sampled {
		t.store.PurgeSource(frame.SourceID, frame.FrameNumber)
	}
	return 0
}

// InstanceTrigger fires the first time a tracking id qualifies. An object
// that stops qualifying and later returns fires again.
type InstanceTrigger struct {
	trackedBase
}

// NewInstanceTrigger creates an instance trigger.
func NewInstanceTrigger(name string, c Criteria, opts ...tracking.Option) (*InstanceTrigger, error) {
	t := &InstanceTrigger{}
	if err := t.initTracked(t, KindInstance, name, c, 1, opts); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *InstanceTrigger) CheckForOccurrence(buf detection.Buffer, frame *detection.Frame, obj *detection.Object) bool {
	f, qualified, fire := func() (firing, bool, bool) {
		t.mu.Lock()
		defer t.mu.Unlock()
		tracked, known := t.trackLocked(frame, obj)
		if tracked == nil {
			return firing{}, false, false
		}
		if known {
			return firing{}, true, false
		}
		return t.prepareLocked(buf, frame, fireOpts{obj: obj, track: tracked}), true, true
	}()
	if fire {
		t.dispatch(f)
	}
	return qualified
}

// PersistenceTrigger fires every frame while a tracked object has been
// continuously qualifying for between Minimum and Maximum.
type PersistenceTrigger struct {
	trackedBase
	minimum time.Duration
	maximum time.Duration
}

// NewPersistenceTrigger creates a persistence trigger. A zero maximum has no
// upper bound.
func NewPersistenceTrigger(name string, c Criteria, minimum, maximum time.Duration, opts ...tracking.Option) (*PersistenceTrigger, error) {
	if minimum < 0 || maximum < 0 || (maximum > 0 && maximum < minimum) {
		return nil, invalidParam("persistence range %s..%s", minimum, maximum)
	}
	t := &PersistenceTrigger{minimum: minimum, maximum: maximum}
	if err := t.initTracked(t, KindPersistence, name, c, tracking.DefaultMaxHistory, opts); err != nil {
		return nil, err
	}
	return t, nil
}

// Range returns the persistence window.
func (t *PersistenceTrigger) Range() (minimum, maximum time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.minimum, t.maximum
}

func (t *PersistenceTrigger) CheckForOccurrence(buf detection.Buffer, frame *detection.Frame, obj *detection.Object) bool {
	f, qualified, fire := func() (firing, bool, bool) {
		t.mu.Lock()
		defer t.mu.Unlock()
		tracked, _ := t.trackLocked(frame, obj)
		if tracked == nil {
			return firing{}, false, false
		}
		ms := tracked.DurationMs()
		if ms < float64(t.minimum.Milliseconds()) {
			return firing{}, true, false
		}
		if t.maximum > 0 && ms > float64(t.maximum.Milliseconds()) {
			return firing{}, true, false
		}
		return t.prepareLocked(buf, frame, fireOpts{obj: obj, track: tracked}), true, true
	}()
	if fire {
		t.dispatch(f)
	}
	return qualified
}

// CrossMode restricts which crossings of a line fire.
type CrossMode int

const (
	// CrossEither fires for crossings in both directions.
	CrossEither CrossMode = iota
	// CrossToLeft fires when the object ends on the left of the line.
	CrossToLeft
	// CrossToRight fires when the object ends on the right of the line.
	CrossToRight
)

func (m CrossMode) String() string {
	switch m {
	case CrossToLeft:
		return "to-left"
	case CrossToRight:
		return "to-right"
	default:
		return "either"
	}
}

// ParseCrossMode converts a config value. Empty means either.
func ParseCrossMode(s string) (CrossMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "either", "any":
		return CrossEither, nil
	case "to-left", "left":
		return CrossToLeft, nil
	case "to-right", "right":
		return CrossToRight, nil
	default:
		return CrossEither, fmt.Errorf("unknown cross mode %q", s)
	}
}

type trackKey struct {
	source uint
	id     uint64
}

// CrossTrigger fires once per tracked object when its trace moves from one
// side of a line to the other. Points exactly on the line are ignored.
type CrossTrigger struct {
	trackedBase
	line      *area.Line
	mode      CrossMode
	minPoints int
	crossed   map[trackKey]struct{}
}

// NewCrossTrigger creates a line-cross trigger. The object needs at least
// minTracePoints history entries before a crossing is considered; the trace
// holds at most maxTracePoints.
func NewCrossTrigger(name string, c Criteria, line *area.Line, mode CrossMode, minTracePoints, maxTracePoints int, opts ...tracking.Option) (*CrossTrigger, error) {
	if line == nil {
		return nil, invalidParam("cross trigger %q needs a line", name)
	}
	if mode < CrossEither || mode > CrossToRight {
		return nil, invalidParam("cross mode %d", int(mode))
	}
	minTracePoints = max(minTracePoints, 2)
	if maxTracePoints < minTracePoints {
		maxTracePoints = max(minTracePoints, tracking.DefaultMaxHistory)
	}
	t := &CrossTrigger{
		line:      line,
		mode:      mode,
		minPoints: minTracePoints,
		crossed:   make(map[trackKey]struct{}),
	}
	if err := t.initTracked(t, KindCross, name, c, maxTracePoints, opts); err != nil {
		return nil, err
	}
	store := t.store
	t.onReset = func() {
		store.Clear()
		clear(t.crossed)
	}
	return t, nil
}

// Line returns the line the trigger watches.
func (t *CrossTrigger) Line() *area.Line { return t.line }

func (t *CrossTrigger) CheckForOccurrence(buf detection.Buffer, frame *detection.Frame, obj *detection.Object) bool {
	f, qualified, fire := func() (firing, bool, bool) {
		t.mu.Lock()
		defer t.mu.Unlock()
		tracked, _ := t.trackLocked(frame, obj)
		if tracked == nil {
			return firing{}, false, false
		}
		key := trackKey{source: frame.SourceID, id: obj.TrackingID}
		if _, done := t.crossed[key]; done || tracked.HistoryLen() < t.minPoints {
			return firing{}, true, false
		}
		if !t.crossedLocked(tracked) {
			return firing{}, true, false
		}
		t.crossed[key] = struct{}{}
		return t.prepareLocked(buf, frame, fireOpts{obj: obj, track: tracked}), true, true
	}()
	if fire {
		t.dispatch(f)
	}
	return qualified
}

func (t *CrossTrigger) crossedLocked(tracked *tracking.TrackedObject) bool {
	first, last := area.SideOn, area.SideOn
	for _, pt := range tracked.Trace(t.line.TestPoint(), tracking.TraceAll) {
		side := t.line.Side(pt)
		if side == area.SideOn {
			continue
		}
		if first == area.SideOn {
			first = side
		}
		last = side
	}
	if first == area.SideOn || first == last {
		return false
	}
	switch t.mode {
	case CrossToLeft:
		return last == area.SideLeft
	case CrossToRight:
		return last == area.SideRight
	default:
		return true
	}
}

func (t *CrossTrigger) PostProcess(buf detection.Buffer, frame *detection.Frame) uint {
	t.trackedBase.PostProcess(buf, frame)
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.crossed {
		if _, ok := t.store.Get(key.source, key.id); !ok {
			delete(t.crossed, key)
		}
	}
	return 0
}
