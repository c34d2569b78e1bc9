package ode

import (
	"github.com/tphakala/odeflow/internal/detection"
)

// CheckFunc decides whether an object that passed the common criteria
// should fire a custom trigger.
type CheckFunc func(frame *detection.Frame, obj *detection.Object) bool

// PostFunc decides at the end of a frame whether a custom trigger fires a
// frame-level occurrence. count is the number of objects that passed the
// criteria and the check.
type PostFunc func(frame *detection.Frame, count uint64) bool

// CustomTrigger delegates both phases to caller-supplied predicates. The
// predicates run without the trigger lock held and may call back into the
// trigger.
type CustomTrigger struct {
	triggerBase
	check CheckFunc
	post  PostFunc
}

// NewCustomTrigger creates a custom trigger. A nil check fires for every
// object passing the criteria; a nil post disables frame-level fires.
func NewCustomTrigger(name string, c Criteria, check CheckFunc, post PostFunc) (*CustomTrigger, error) {
	t := &CustomTrigger{check: check, post: post}
	if err := t.init(t, KindCustom, name, c); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *CustomTrigger) CheckForOccurrence(buf detection.Buffer, frame *detection.Frame, obj *detection.Object) bool {
	if !t.CheckForMinCriteria(frame, obj) {
		return false
	}
	if t.check != nil && !t.check(frame, obj) {
		return false
	}
	f, ok := func() (firing, bool) {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.accumulator++
		// The predicate ran unlocked; the limit may have been reached meanwhile.
		if t.limitReachedLocked() {
			return firing{}, false
		}
		return t.prepareLocked(buf, frame, fireOpts{obj: obj}), true
	}()
	if ok {
		t.dispatch(f)
	}
	return true
}

func (t *CustomTrigger) PostProcess(buf detection.Buffer, frame *detection.Frame) uint {
	if t.post == nil {
		return 0
	}
	count, ok := func() (uint64, bool) {
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.accumulator, t.canFireLocked()
	}()
	if !ok || !t.post(frame, count) {
		return 0
	}
	f, ok := func() (firing, bool) {
		t.mu.Lock()
		defer t.mu.Unlock()
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
