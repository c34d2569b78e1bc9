package ode

import (
	"github.com/tphakala/odeflow/internal/detection"
)

// OccurrenceTrigger fires once for every qualifying object.
type OccurrenceTrigger struct {
	triggerBase
}

// NewOccurrenceTrigger creates an occurrence trigger.
func NewOccurrenceTrigger(name string, c Criteria) (*OccurrenceTrigger, error) {
	t := &OccurrenceTrigger{}
	if err := t.init(t, KindOccurrence, name, c); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *OccurrenceTrigger) CheckForOccurrence(buf detection.Buffer, frame *detection.Frame, obj *detection.Object) bool {
	f, ok := t.checkAndPrepare(buf, frame, obj)
	if !ok {
		return false
	}
	t.dispatch(f)
	return true
}

func (t *triggerBase) checkAndPrepare(buf detection.Buffer, frame *detection.Frame, obj *detection.Object) (firing, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.checkLocked(frame, obj, t.criteria.ClassID) {
		return firing{}, false
	}
	t.accumulator++
	return t.prepareLocked(buf, frame, fireOpts{obj: obj}), true
}

// countObject increments the accumulator when obj qualifies.
func (t *triggerBase) countObject(frame *detection.Frame, obj *detection.Object) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.checkLocked(frame, obj, t.criteria.ClassID) {
		return false
	}
	t.accumulator++
	return true
}

// AbsenceTrigger fires once at the end of every frame in which no object
// qualified.
type AbsenceTrigger struct {
	triggerBase
}

// NewAbsenceTrigger creates an absence trigger.
func NewAbsenceTrigger(name string, c Criteria) (*AbsenceTrigger, error) {
	t := &AbsenceTrigger{}
	if err := t.init(t, KindAbsence, name, c); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *AbsenceTrigger) CheckForOccurrence(_ detection.Buffer, frame *detection.Frame, obj *detection.Object) bool {
	return t.countObject(frame, obj)
}

func (t *AbsenceTrigger) PostProcess(buf detection.Buffer, frame *detection.Frame) uint {
	f, ok := func() (firing, bool) {
		t.mu.Lock()
		defer t.mu.Unlock()
		count := t.accumulator
		t.accumulator = 0
		if count != 0 || !t.canFireLocked() {
			return firing{}, false
		}
		return t.prepareLocked(buf, frame, fireOpts{}), true
	}()
	if !ok {
		return 0
	}
	t.dispatch(f)
	return 1
}

// SummationTrigger fires at the end of every frame with the number of
// qualifying objects, zero included.
type SummationTrigger struct {
	triggerBase
}

// NewSummationTrigger creates a summation trigger.
func NewSummationTrigger(name string, c Criteria) (*SummationTrigger, error) {
	t := &SummationTrigger{}
	if err := t.init(t, KindSummation, name, c); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *SummationTrigger) CheckForOccurrence(_ detection.Buffer, frame *detection.Frame, obj *detection.Object) bool {
	return t.countObject(frame, obj)
}

func (t *SummationTrigger) PostProcess(buf detection.Buffer, frame *detection.Frame) uint {
	f, ok := func() (firing, bool) {
		t.mu.Lock()
		defer t.mu.Unlock()
		count := t.accumulator
		t.accumulator = 0
		if !t.canFireLocked() {
			return firing{}, false
		}
		return t.prepareLocked(buf, frame, fireOpts{count: count}), true
	}()
	if !ok {
		return 0
	}
	t.dispatch(f)
	return 1
}

// AccumulationTrigger keeps a running count of qualifying objects across
// frames and reports the total at the end of every frame. The count only
// goes back to zero on Reset.
type AccumulationTrigger struct {
	triggerBase
}

// NewAccumulationTrigger creates an accumulation trigger.
func NewAccumulationTrigger(name string, c Criteria) (*AccumulationTrigger, error) {
	t := &AccumulationTrigger{}
	if err := t.init(t, KindAccumulation, name, c); err != nil {
		return nil, err
	}
	return t, nil
}

// PreProcess advances sampling but keeps the running total.
func (t *AccumulationTrigger) PreProcess(_ detection.Buffer, _ *detection.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.beginFrameLocked()
}

func (t *AccumulationTrigger) CheckForOccurrence(_ detection.Buffer, frame *detection.Frame, obj *detection.Object) bool {
	return t.countObject(frame, obj)
}

func (t *AccumulationTrigger) PostProcess(buf detection.Buffer, frame *detection.Frame) uint {
	f, ok := func() (firing, bool) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if !t.canFireLocked() {
			return firing{}, false
		}
		return t.prepareLocked(buf, frame, fireOpts{count: t.accumulator}), true
	}()
	if !ok {
		return 0
	}
	t.dispatch(f)
	return 1
}

// CountTrigger fires at the end of a frame when the number of qualifying
// objects leaves (minimum, maximum) or enters (range) its bounds.
type CountTrigger struct {
	triggerBase
	lower, upper uint64
	fires        func(count, lower, upper uint64) bool
}

// NewMinimumTrigger fires when fewer than minimum objects qualify. A count
// equal to minimum is safe.
func NewMinimumTrigger(name string, c Criteria, minimum uint64) (*CountTrigger, error) {
	return newCountTrigger(KindMinimum, name, c, minimum, 0, func(n, lo, _ uint64) bool { return n < lo })
}

// NewMaximumTrigger fires when more than maximum objects qualify. A count
// equal to maximum is safe.
func NewMaximumTrigger(name string, c Criteria, maximum uint64) (*CountTrigger, error) {
	return newCountTrigger(KindMaximum, name, c, 0, maximum, func(n, _, hi uint64) bool { return n > hi })
}

// NewRangeTrigger fires when the count is within [lower, upper].
func NewRangeTrigger(name string, c Criteria, lower, upper uint64) (*CountTrigger, error) {
	if upper < lower {
		return nil, invalidParam("range upper %d below lower %d", upper, lower)
	}
	return newCountTrigger(KindRange, name, c, lower, upper, func(n, lo, hi uint64) bool { return n >= lo && n <= hi })
}

func newCountTrigger(kind Kind, name string, c Criteria, lower, upper uint64, fires func(n, lo, hi uint64) bool) (*CountTrigger, error) {
	t := &CountTrigger{lower: lower, upper: upper, fires: fires}
	if err := t.init(t, kind, name, c); err != nil {
		return nil, err
	}
	return t, nil
}

// Bounds returns the configured lower and upper thresholds.
func (t *CountTrigger) Bounds() (lower, upper uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lower, t.upper
}

// SetBounds changes the thresholds. Kinds ignore the bound they do not use.
func (t *CountTrigger) SetBounds(lower, upper uint64) error {
	if t.kind == KindRange && upper < lower {
		return invalidParam("range upper %d below lower %d", upper, lower)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lower, t.upper = lower, upper
	return nil
}

func (t *CountTrigger) CheckForOccurrence(_ detection.Buffer, frame *detection.Frame, obj *detection.Object) bool {
	return t.countObject(frame, obj)
}

func (t *CountTrigger) PostProcess(buf detection.Buffer, frame *detection.Frame) uint {
	f, ok := func() (firing, bool) {
		t.mu.Lock()
		defer t.mu.Unlock()
		count := t.accumulator
		t.accumulator = 0
		if !t.canFireLocked() || !t.fires(count, t.lower, t.upper) {
			return firing{}, false
		}
		return t.prepareLocked(buf, frame, fireOpts{count: count}), true
	}()
	if !ok {
		return 0
	}
	t.dispatch(f)
	return 1
}
