// Package eventlog persists trigger occurrences with gorm on SQLite or MySQL
// and prunes them after a retention period.
package eventlog

import (
	"encoding/json"
	"time"

	"github.com/tphakala/odeflow/internal/ode"
)

// Occurrence is one fired trigger.
type Occurrence struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	OccurrenceID string    `gorm:"size:36;not null;uniqueIndex" json:"occurrence_id"`
	EventID      uint64    `gorm:"not null" json:"event_id"`
	TriggerName  string    `gorm:"size:128;not null;index:idx_ode_occurrences_trigger_fired,priority:1" json:"trigger"`
	Kind         string    `gorm:"size:32;not null" json:"kind"`
	SourceID     uint      `gorm:"not null;index" json:"source_id"`
	FrameNumber  uint64    `gorm:"not null" json:"frame_number"`
	Count        uint64    `gorm:"not null;default:0" json:"count"`
	ClassID      *int      `json:"class_id,omitempty"`
	TrackingID   *uint64   `json:"tracking_id,omitempty"`
	Label        string    `gorm:"size:128;default:''" json:"label,omitempty"`
	Confidence   *float64  `json:"confidence,omitempty"`
	DurationMs   float64   `gorm:"default:0" json:"duration_ms,omitempty"`
	FiredAt      time.Time `gorm:"not null;index:idx_ode_occurrences_trigger_fired,priority:2;index" json:"fired_at"`
	Payload      string    `gorm:"type:text" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (Occurrence) TableName() string {
	return "ode_occurrences"
}

// FromPayload converts a payload into a row. The full payload is kept as
// JSON alongside the indexed columns.
func FromPayload(p ode.Payload) (*Occurrence, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	o := &Occurrence{
		OccurrenceID: p.ID,
		EventID:      p.EventID,
		TriggerName:  p.Trigger,
		Kind:         string(p.Kind),
		SourceID:     p.SourceID,
		FrameNumber:  p.FrameNumber,
		Count:        p.Count,
		DurationMs:   p.DurationMs,
		FiredAt:      p.Timestamp.UTC(),
		Payload:      string(raw),
	}
	if obj := p.Object; obj != nil {
		classID, confidence := obj.ClassID, obj.Confidence
		o.ClassID = &classID
		o.Confidence = &confidence
		o.TrackingID = obj.TrackingID
		o.Label = obj.Label
	}
	return o, nil
}

// Decode returns the stored payload.
func (o *Occurrence) Decode() (ode.Payload, error) {
	var p ode.Payload
	err := json.Unmarshal([]byte(o.Payload), &p)
	return p, err
}
