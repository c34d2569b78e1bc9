// Package tracking keeps a bounded history of bounding boxes for every
// tracked object, keyed by source id and tracking id.
//
// A Store is owned by a single goroutine, the one that processes frames.
// Callers that share a Store across goroutines must serialize access.
package tracking

import (
	"math"
	"time"

	"github.com/tphakala/odeflow/internal/detection"
	"github.com/tphakala/odeflow/internal/errors"
)

// DefaultMaxHistory is the trace capacity used when none is configured.
const DefaultMaxHistory = 10

// ErrInvalidHistory is returned for a maximum history below one.
var ErrInvalidHistory = errors.NewStd("max history must be at least 1")

// Simplification selects how a trace is reduced before it is returned.
type Simplification struct {
	kind simplifyKind
	step int
}

type simplifyKind int

const (
	simplifyNone simplifyKind = iota
	simplifyEndPoints
	simplifyDecimate
)

var (
	// TraceAll returns every history entry.
	TraceAll = Simplification{}
	// TraceEndPoints returns the oldest and newest entries only.
	TraceEndPoints = Simplification{kind: simplifyEndPoints}
)

// TraceDecimate keeps every n-th entry counting from the oldest, always
// keeping the newest. n below 2 is equivalent to TraceAll.
func TraceDecimate(n int) Simplification {
	if n < 2 {
		return TraceAll
	}
	return Simplification{kind: simplifyDecimate, step: n}
}

// TrackedObject is the history of one tracking id on one source.
type TrackedObject struct {
	SourceID   uint
	TrackingID uint64
	ClassID    int
	FirstFrame uint64
	LastFrame  uint64
	Created    time.Time

	history *Ring[detection.BBox]
	now     func() time.Time
}

// Trace projects the bbox history onto the given test point, oldest first.
// The returned slice is a snapshot.
func (o *TrackedObject) Trace(tp detection.TestPoint, method Simplification) []detection.Point {
	n := o.history.Len()
	if n == 0 {
		return nil
	}
	point := func(i int) detection.Point { return o.history.At(i).Point(tp) }

	switch method.kind {
	case simplifyEndPoints:
		if n == 1 {
			return []detection.Point{point(0)}
		}
		return []detection.Point{point(0), point(n - 1)}
	case simplifyDecimate:
		out := make([]detection.Point, 0, n/method.step+2)
		for i := 0; i < n; i += method.step {
			out = append(out, point(i))
		}
		if (n-1)%method.step != 0 {
			out = append(out, point(n-1))
		}
		return out
	default:
		out := make([]detection.Point, n)
		for i := range n {
			out[i] = point(i)
		}
		return out
	}
}

// Boxes returns the raw history, oldest first.
func (o *TrackedObject) Boxes() []detection.BBox { return o.history.Items() }

// HistoryLen returns the number of stored boxes.
func (o *TrackedObject) HistoryLen() int { return o.history.Len() }

// Last returns the newest bounding box.
func (o *TrackedObject) Last() detection.BBox {
	b, _ := o.history.Last()
	return b
}

// DurationMs returns the milliseconds elapsed since the object was first seen.
func (o *TrackedObject) DurationMs() float64 {
	return float64(o.now().Sub(o.Created)) / float64(time.Millisecond)
}

// Movement returns the straight-line distance between the oldest and newest
// trace points.
func (o *TrackedObject) Movement(tp detection.TestPoint) float64 {
	pts := o.Trace(tp, TraceEndPoints)
	if len(pts) < 2 {
		return 0
	}
	return math.Hypot(pts[1].X-pts[0].X, pts[1].Y-pts[0].Y)
}

func (o *TrackedObject) push(frameNumber uint64, bbox detection.BBox) {
	o.history.Push(bbox)
	o.LastFrame = frameNumber
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for creation and duration timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store maps source id to tracking id to TrackedObject.
type Store struct {
	objects    map[uint]map[uint64]*TrackedObject
	maxHistory int
	now        func() time.Time
}

// NewStore creates an empty store. maxHistory below one selects
// DefaultMaxHistory.
func NewStore(maxHistory int, opts ...Option) *Store {
	if maxHistory < 1 {
		maxHistory = DefaultMaxHistory
	}
	s := &Store{
		objects:    make(map[uint]map[uint64]*TrackedObject),
		maxHistory: maxHistory,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Track records obj's bounding box for the current frame. A new
// TrackedObject is created the first time a tracking id is seen on a source.
// Untracked objects are ignored and yield nil.
func (s *Store) Track(frame *detection.Frame, obj *detection.Object) *TrackedObject {
	if !obj.IsTracked() {
		return nil
	}
	bySource, ok := s.objects[frame.SourceID]
	if !ok {
		bySource = make(map[uint64]*TrackedObject)
		s.objects[frame.SourceID] = bySource
	}
	tracked, ok := bySource[obj.TrackingID]
	if !ok {
		tracked = &TrackedObject{
			SourceID:   frame.SourceID,
			TrackingID: obj.TrackingID,
			ClassID:    obj.ClassID,
			FirstFrame: frame.FrameNumber,
			Created:    s.now(),
			history:    NewRing[detection.BBox](s.maxHistory),
			now:        s.now,
		}
		bySource[obj.TrackingID] = tracked
	}
	tracked.push(frame.FrameNumber, obj.BBox)
	return tracked
}

// Purge removes every object not updated in frameNumber and returns how many
// were removed. Source maps left empty are dropped.
func (s *Store) Purge(frameNumber uint64) int {
	removed := 0
	for source, bySource := range s.objects {
		for id, tracked := range bySource {
			if tracked.LastFrame != frameNumber {
				delete(bySource, id)
				removed++
			}
		}
		if len(bySource) == 0 {
			delete(s.objects, source)
		}
	}
	return removed
}

// PurgeSource is Purge restricted to one source. Multi-source batches purge
// per frame, so objects of other sources are left alone.
func (s *Store) PurgeSource(sourceID uint, frameNumber uint64) int {
	bySource, ok := s.objects[sourceID]
	if !ok {
		return 0
	}
	removed := 0
	for id, tracked := range bySource {
		if tracked.LastFrame != frameNumber {
			delete(bySource, id)
			removed++
		}
	}
	if len(bySource) == 0 {
		delete(s.objects, sourceID)
	}
	return removed
}

// Get returns the object for (sourceID, trackingID).
func (s *Store) Get(sourceID uint, trackingID uint64) (*TrackedObject, bool) {
	tracked, ok := s.objects[sourceID][trackingID]
	return tracked, ok
}

// Len returns the number of tracked objects across all sources.
func (s *Store) Len() int {
	n := 0
	for _, bySource := range s.objects {
		n += len(bySource)
	}
	return n
}

// Sources returns the number of sources with at least one tracked object.
func (s *Store) Sources() int { return len(s.objects) }

// MaxHistory returns the trace capacity.
func (s *Store) MaxHistory() int { return s.maxHistory }

// SetMaxHistory changes the trace capacity and trims existing traces from
// the oldest end.
func (s *Store) SetMaxHistory(n int) error {
	if n < 1 {
		return errors.New(ErrInvalidHistory).
			Component("tracking").
			Category(errors.CategoryValidation).
			Context("max_history", n).
			Build()
	}
	s.maxHistory = n
	for _, bySource := range s.objects {
		for _, tracked := range bySource {
			tracked.history.Resize(n)
		}
	}
	return nil
}

// Clear drops every tracked object.
func (s *Store) Clear() {
	clear(s.objects)
}
