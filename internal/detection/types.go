// Package detection defines the per-frame object-detection records the host
// pipeline hands to the ODE engine.
package detection

import (
	"encoding/json"
	"math"
	"slices"
	"time"
)

const (
	// ClassAny matches every class id in trigger criteria.
	ClassAny = -1

	// Untracked marks an object that no tracker has assigned an id to.
	Untracked uint64 = math.MaxUint64
)

// Buffer is the opaque handle of the host buffer a batch arrived in. The
// engine never inspects it; it is passed through to actions.
type Buffer any

// Point is a 2-D coordinate in frame pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Batch is the set of frames delivered in one host buffer.
type Batch struct {
	Frames []*Frame `json:"frames"`
}

// Link drops null frames and sets every object's parent frame pointer. Call
// after decoding.
func (b *Batch) Link() {
	b.Frames = slices.DeleteFunc(b.Frames, func(f *Frame) bool { return f == nil })
	for _, f := range b.Frames {
		f.Link()
	}
}

// Frame is a single video frame and the objects detected in it.
type Frame struct {
	SourceID    uint      `json:"source_id"`
	FrameNumber uint64    `json:"frame_number"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Timestamp   time.Time `json:"timestamp,omitzero"`
	Objects     []*Object `json:"objects"`
}

// Link drops null objects and sets the parent frame pointer on the rest.
func (f *Frame) Link() {
	f.Objects = slices.DeleteFunc(f.Objects, func(o *Object) bool { return o == nil })
	for _, o := range f.Objects {
		o.Frame = f
	}
}

// AddObject appends obj and links it to f.
func (f *Frame) AddObject(obj *Object) {
	obj.Frame = f
	f.Objects = append(f.Objects, obj)
}

// Object is one detection result.
type Object struct {
	ClassID    int     `json:"class_id"`
	TrackingID uint64  `json:"tracking_id"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
	Label      string  `json:"label,omitempty"`

	// Display is written by format actions and read by the host's renderer.
	Display Display `json:"-"`
	// Frame is the parent frame record.
	Frame *Frame `json:"-"`
}

// UnmarshalJSON defaults TrackingID to Untracked when the field is absent.
func (o *Object) UnmarshalJSON(data []byte) error {
	type plain Object
	p := plain{TrackingID: Untracked}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = Object(p)
	return nil
}

// IsTracked reports whether a tracker assigned an id to the object.
func (o *Object) IsTracked() bool {
	return o.TrackingID != Untracked
}

// SourceID returns the parent frame's source id, or 0 when unlinked.
func (o *Object) SourceID() uint {
	if o.Frame == nil {
		return 0
	}
	return o.Frame.SourceID
}

// Display is the overlay metadata for an object.
type Display struct {
	BorderWidth     int    `json:"border_width"`
	BorderColor     string `json:"border_color,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
	Text            string `json:"text,omitempty"`
	Hidden          bool   `json:"hidden"`
}
