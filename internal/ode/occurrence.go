package ode

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/odeflow/internal/detection"
	"github.com/tphakala/odeflow/internal/logger"
	"github.com/tphakala/odeflow/internal/observability/metrics"
	"github.com/tphakala/odeflow/internal/tracking"
)

// EventCounter hands out monotonically increasing event ids. It is used for
// observability only; no trigger logic depends on it.
type EventCounter struct {
	n atomic.Uint64
}

// Next increments the counter and returns the new value.
func (c *EventCounter) Next() uint64 { return c.n.Add(1) }

// Value returns the number of events counted so far.
func (c *EventCounter) Value() uint64 { return c.n.Load() }

// environment is what a trigger needs from its owning Handler. Triggers that
// were never added to a Handler get a private one.
type environment struct {
	handler *Handler
	counter *EventCounter
	log     logger.Logger
	metrics *metrics.Metrics
	queue   *DeliveryQueue
	now     func() time.Time
	// reported remembers skip reports already logged.
	reported *cache.Cache
}

func standaloneEnvironment() *environment {
	return &environment{
		counter:  &EventCounter{},
		log:      logger.Global().Module(componentName),
		now:      time.Now,
		reported: newReportCache(),
	}
}

// Occurrence describes one trigger fire. Object is nil for frame-level fires.
type Occurrence struct {
	ID      uuid.UUID
	EventID uint64
	Trigger Trigger
	Kind    Kind
	Buffer  detection.Buffer
	Frame   *detection.Frame
	Object  *detection.Object
	// Peer is the second object of an intersecting pair.
	Peer *detection.Object
	// Count is the accumulated count reported by frame-level kinds.
	Count uint64
	// Track is the tracking history behind tracking kinds.
	Track     *tracking.TrackedObject
	Timestamp time.Time

	env *environment
}

// Handler returns the Handler that owns the firing trigger, or nil.
func (o *Occurrence) Handler() *Handler { return o.env.handler }

func (o *Occurrence) logger() logger.Logger { return o.env.log }

// TriggerName returns the firing trigger's name.
func (o *Occurrence) TriggerName() string {
	if o.Trigger == nil {
		return ""
	}
	return o.Trigger.Name()
}

// ObjectPayload is the serializable view of a detected object.
type ObjectPayload struct {
	ClassID    int            `json:"class_id"`
	TrackingID *uint64        `json:"tracking_id,omitempty"`
	Label      string         `json:"label,omitempty"`
	Confidence float64        `json:"confidence"`
	BBox       detection.BBox `json:"bbox"`
}

func newObjectPayload(obj *detection.Object) *ObjectPayload {
	if obj == nil {
		return nil
	}
	p := &ObjectPayload{
		ClassID:    obj.ClassID,
		Label:      obj.Label,
		Confidence: obj.Confidence,
		BBox:       obj.BBox,
	}
	if obj.IsTracked() {
		id := obj.TrackingID
		p.TrackingID = &id
	}
	return p
}

// Payload is the structured, serializable record of an occurrence handed to
// callbacks and sinks. It is a snapshot taken at fire time.
type Payload struct {
	ID          string         `json:"id"`
	EventID     uint64         `json:"event_id"`
	Trigger     string         `json:"trigger"`
	Kind        Kind           `json:"kind"`
	SourceID    uint           `json:"source_id"`
	FrameNumber uint64         `json:"frame_number"`
	FrameWidth  int            `json:"frame_width,omitempty"`
	FrameHeight int            `json:"frame_height,omitempty"`
	Count       uint64         `json:"count"`
	DurationMs  float64        `json:"duration_ms,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Object      *ObjectPayload `json:"object,omitempty"`
	Peer        *ObjectPayload `json:"peer,omitempty"`
}

// Payload builds the serializable snapshot of the occurrence.
func (o *Occurrence) Payload() Payload {
	p := Payload{
		ID:        o.ID.String(),
		EventID:   o.EventID,
		Trigger:   o.TriggerName(),
		Kind:      o.Kind,
		Count:     o.Count,
		Timestamp: o.Timestamp,
		Object:    newObjectPayload(o.Object),
		Peer:      newObjectPayload(o.Peer),
	}
	if o.Frame != nil {
		p.SourceID = o.Frame.SourceID
		p.FrameNumber = o.Frame.FrameNumber
		p.FrameWidth = o.Frame.Width
		p.FrameHeight = o.Frame.Height
	}
	if o.Track != nil {
		p.DurationMs = o.Track.DurationMs()
	}
	return p
}

// Vars flattens the payload into template variables.
func (p Payload) Vars() map[string]string {
	vars := map[string]string{
		"id":           p.ID,
		"event_id":     strconv.FormatUint(p.EventID, 10),
		"trigger":      p.Trigger,
		"kind":         string(p.Kind),
		"source_id":    strconv.FormatUint(uint64(p.SourceID), 10),
		"frame_number": strconv.FormatUint(p.FrameNumber, 10),
		"count":        strconv.FormatUint(p.Count, 10),
		"timestamp":    p.Timestamp.Format(time.RFC3339),
	}
	if p.DurationMs > 0 {
		vars["duration_ms"] = strconv.FormatFloat(p.DurationMs, 'f', 0, 64)
	}
	if obj := p.Object; obj != nil {
		vars["class_id"] = strconv.Itoa(obj.ClassID)
		vars["label"] = obj.Label
		vars["confidence"] = strconv.FormatFloat(obj.Confidence, 'f', 2, 64)
		if obj.TrackingID != nil {
			vars["tracking_id"] = strconv.FormatUint(*obj.TrackingID, 10)
		}
	}
	return vars
}
