package ode

import (
	"github.com/tphakala/odeflow/internal/detection"
)

// NoPeerClass selects same-class intersection: qualifying objects of the
// trigger's class are tested against each other.
const NoPeerClass = -2

// IntersectionTrigger collects qualifying objects during the frame and, at
// the end of it, fires once for every pair whose bounding boxes overlap.
// With a peer class, pairs are formed between the trigger's class and the
// peer class instead.
type IntersectionTrigger struct {
	triggerBase
	peerClass int
	primary   []*detection.Object
	peers     []*detection.Object
}

// NewIntersectionTrigger creates an intersection trigger. Pass NoPeerClass
// for same-class pairs.
func NewIntersectionTrigger(name string, c Criteria, peerClass int) (*IntersectionTrigger, error) {
	if peerClass < NoPeerClass {
		return nil, invalidParam("peer class id %d", peerClass)
	}
	t := &IntersectionTrigger{peerClass: peerClass}
	if err := t.init(t, KindIntersection, name, c); err != nil {
		return nil, err
	}
	t.onReset = t.clearCandidatesLocked
	return t, nil
}

// PeerClass returns the second class id, or NoPeerClass.
func (t *IntersectionTrigger) PeerClass() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peerClass
}

func (t *IntersectionTrigger) clearCandidatesLocked() {
	clear(t.primary)
	clear(t.peers)
	t.primary = t.primary[:0]
	t.peers = t.peers[:0]
}

func (t *IntersectionTrigger) PreProcess(_ detection.Buffer, _ *detection.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.beginFrameLocked()
	t.accumulator = 0
	t.clearCandidatesLocked()
}

func (t *IntersectionTrigger) CheckForOccurrence(_ detection.Buffer, frame *detection.Frame, obj *detection.Object) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	qualified := false
	if t.checkLocked(frame, obj, t.criteria.ClassID) {
		t.primary = append(t.primary, obj)
		qualified = true
	}
	if t.peerClass != NoPeerClass && t.checkLocked(frame, obj, t.peerClass) {
		t.peers = append(t.peers, obj)
		qualified = true
	}
	if qualified {
		t.accumulator++
	}
	return qualified
}

func (t *IntersectionTrigger) PostProcess(buf detection.Buffer, frame *detection.Frame) uint {
	fs := func() []firing {
		t.mu.Lock()
		defer t.mu.Unlock()
		defer t.clearCandidatesLocked()
		if !t.canFireLocked() {
			return nil
		}
		var fs []firing
		emit := func(a, b *detection.Object) bool {
			if a == b || !a.BBox.Intersects(b.BBox) {
				return true
			}
			fs = append(fs, t.prepareLocked(buf, frame, fireOpts{obj: a, peer: b, count: 2}))
			return !t.limitReachedLocked()
		}
		if t.peerClass == NoPeerClass {
			for i := range t.primary {
				for j := i + 1; j < len(t.primary); j++ {
					if !emit(t.primary[i], t.primary[j]) {
						return fs
					}
				}
			}
			return fs
		}
		for _, a := range t.primary {
			for _, b := range t.peers {
				if !emit(a, b) {
					return fs
				}
			}
		}
		return fs
	}()
	t.dispatch(fs...)
	return uint(len(fs))
}
