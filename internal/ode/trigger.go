package ode

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/odeflow/internal/area"
	"github.com/tphakala/odeflow/internal/detection"
	"github.com/tphakala/odeflow/internal/tracking"
)

// Trigger is a named rule evaluated by the Handler in three phases per frame.
// All methods are safe for concurrent use; mutators are serialized against
// evaluation by the trigger's own lock.
type Trigger interface {
	Name() string
	Kind() Kind

	Enabled() bool
	SetEnabled(enabled bool)
	Limit() uint
	SetLimit(limit uint)
	FiredCount() uint
	Accumulator() uint64
	ResetTimeout() time.Duration
	SetResetTimeout(d time.Duration)
	Criteria() Criteria
	SetCriteria(c Criteria) error
	AreaPolicy() AreaPolicy
	SetAreaPolicy(p AreaPolicy)

	AddAction(a Action) error
	RemoveAction(name string) error
	Actions() []Action
	HasAction(name string) bool
	AddArea(a area.Area) error
	RemoveArea(name string) error
	Areas() []area.Area
	HasArea(name string) bool

	// CheckForMinCriteria reports whether obj passes the common criteria.
	CheckForMinCriteria(frame *detection.Frame, obj *detection.Object) bool
	// PreProcess runs once per frame before any object is checked.
	PreProcess(buf detection.Buffer, frame *detection.Frame)
	// CheckForOccurrence runs once per object. It reports whether the object
	// qualified, whether or not the trigger fired for it.
	CheckForOccurrence(buf detection.Buffer, frame *detection.Frame, obj *detection.Object) bool
	// PostProcess runs once per frame after all objects and returns the
	// number of fires it produced.
	PostProcess(buf detection.Buffer, frame *detection.Frame) uint
	// Reset clears the fired count and all accumulated state.
	Reset()
	Info() TriggerInfo

	base() *triggerBase
}

// AreaPolicy combines the results of several attached areas.
type AreaPolicy int

const (
	// AreaPolicyAny admits an object when at least one area admits it.
	AreaPolicyAny AreaPolicy = iota
	// AreaPolicyAll admits an object only when every area admits it.
	AreaPolicyAll
)

func (p AreaPolicy) String() string {
	if p == AreaPolicyAll {
		return "all"
	}
	return "any"
}

// ParseAreaPolicy converts a config value. Empty means any.
func ParseAreaPolicy(s string) (AreaPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "or":
		return AreaPolicyAny, nil
	case "all", "and":
		return AreaPolicyAll, nil
	default:
		return AreaPolicyAny, fmt.Errorf("unknown area policy %q", s)
	}
}

// Criteria are the minimum conditions an object must meet before any
// kind-specific logic sees it. Zero values mean unset.
type Criteria struct {
	// ClassID is the target class or detection.ClassAny.
	ClassID int `json:"class_id"`
	// SourceID restricts the trigger to one source. 0 matches every source.
	SourceID      uint    `json:"source_id"`
	MinConfidence float64 `json:"min_confidence"`
	MinWidth      float64 `json:"min_width"`
	MinHeight     float64 `json:"min_height"`
	MaxWidth      float64 `json:"max_width"`
	MaxHeight     float64 `json:"max_height"`
	// The trigger evaluates SampleNumerator out of every SampleDenominator
	// frames. Zero values select every frame.
	SampleNumerator   uint `json:"sample_numerator"`
	SampleDenominator uint `json:"sample_denominator"`
}

// ForClass returns criteria matching classID with every other field unset.
func ForClass(classID int) Criteria {
	return Criteria{ClassID: classID}
}

func (c Criteria) normalized() Criteria {
	if c.SampleDenominator == 0 {
		c.SampleDenominator = 1
	}
	if c.SampleNumerator == 0 {
		c.SampleNumerator = c.SampleDenominator
	}
	return c
}

// Validate checks value ranges.
func (c Criteria) Validate() error {
	c = c.normalized()
	switch {
	case c.ClassID < detection.ClassAny:
		return invalidParam("class id %d", c.ClassID)
	case c.MinConfidence < 0 || c.MinConfidence > 1:
		return invalidParam("min confidence %g outside [0,1]", c.MinConfidence)
	case c.MinWidth < 0 || c.MinHeight < 0 || c.MaxWidth < 0 || c.MaxHeight < 0:
		return invalidParam("negative dimension")
	case c.MaxWidth > 0 && c.MaxWidth < c.MinWidth:
		return invalidParam("max width %g below min width %g", c.MaxWidth, c.MinWidth)
	case c.MaxHeight > 0 && c.MaxHeight < c.MinHeight:
		return invalidParam("max height %g below min height %g", c.MaxHeight, c.MinHeight)
	case c.SampleNumerator > c.SampleDenominator:
		return invalidParam("sampling ratio %d/%d above one", c.SampleNumerator, c.SampleDenominator)
	}
	return nil
}

// TriggerInfo is a point-in-time view of a trigger for the control API.
type TriggerInfo struct {
	Name           string   `json:"name"`
	Kind           Kind     `json:"kind"`
	Enabled        bool     `json:"enabled"`
	Limit          uint     `json:"limit"`
	Fired          uint     `json:"fired"`
	Accumulator    uint64   `json:"accumulator"`
	ResetTimeoutMs int64    `json:"reset_timeout_ms,omitempty"`
	AreaPolicy     string   `json:"area_policy"`
	Criteria       Criteria `json:"criteria"`
	Actions        []string `json:"actions"`
	Areas          []string `json:"areas"`
}

// triggerBase holds the state and behavior common to every kind. Kinds embed
// it and add their own per-object and per-frame logic.
type triggerBase struct {
	mu sync.Mutex

	self     Trigger
	name     string
	kind     Kind
	enabled  bool
	criteria Criteria
	limit    uint
	fired    uint
	// accumulator counts qualifying objects; kinds decide when it resets.
	accumulator uint64
	actions     []Action
	areas       []area.Area
	policy      AreaPolicy

	resetTimeout time.Duration
	resetTimer   *time.Timer

	frames  uint64
	sampled bool

	env *environment
	// onReset clears kind-specific state. Called with mu held.
	onReset func()
}

func (t *triggerBase) init(self Trigger, kind Kind, name string, c Criteria) error {
	if name == "" {
		return invalidParam("trigger name must not be empty")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	t.self = self
	t.name = name
	t.kind = kind
	t.enabled = true
	t.criteria = c.normalized()
	t.sampled = true
	t.env = standaloneEnvironment()
	return nil
}

func (t *triggerBase) base() *triggerBase { return t }

func (t *triggerBase) bind(env *environment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.env = env
}

func (t *triggerBase) Name() string { return t.name }
func (t *triggerBase) Kind() Kind   { return t.kind }

func (t *triggerBase) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *triggerBase) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *triggerBase) Limit() uint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limit
}

// SetLimit sets the fire limit. 0 means unlimited.
func (t *triggerBase) SetLimit(limit uint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limit = limit
	t.armResetLocked()
}

func (t *triggerBase) FiredCount() uint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

func (t *triggerBase) Accumulator() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accumulator
}

func (t *triggerBase) ResetTimeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resetTimeout
}

// SetResetTimeout makes the trigger reset itself d after reaching its limit.
// 0 disables the automatic reset.
func (t *triggerBase) SetResetTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetTimeout = max(d, 0)
	if t.resetTimeout == 0 {
		t.stopResetTimerLocked()
		return
	}
	t.armResetLocked()
}

func (t *triggerBase) Criteria() Criteria {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.criteria
}

func (t *triggerBase) SetCriteria(c Criteria) error {
	if err := c.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.criteria = c.normalized()
	return nil
}

func (t *triggerBase) AreaPolicy() AreaPolicy {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.policy
}

func (t *triggerBase) SetAreaPolicy(p AreaPolicy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.policy = p
}

// AddAction appends a to the ordered action list.
func (t *triggerBase) AddAction(a Action) error {
	if a == nil {
		return invalidParam("nil action")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if slices.ContainsFunc(t.actions, func(x Action) bool { return x.Name() == a.Name() }) {
		return duplicateName("action", a.Name())
	}
	t.actions = append(t.actions, a)
	return nil
}

func (t *triggerBase) RemoveAction(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := slices.IndexFunc(t.actions, func(x Action) bool { return x.Name() == name })
	if i < 0 {
		return notFound("action", name)
	}
	t.actions = slices.Delete(t.actions, i, i+1)
	return nil
}

func (t *triggerBase) Actions() []Action {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.actions)
}

func (t *triggerBase) HasAction(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.ContainsFunc(t.actions, func(x Action) bool { return x.Name() == name })
}

func (t *triggerBase) AddArea(a area.Area) error {
	if a == nil {
		return invalidParam("nil area")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if slices.ContainsFunc(t.areas, func(x area.Area) bool { return x.Name() == a.Name() }) {
		return duplicateName("area", a.Name())
	}
	t.areas = append(t.areas, a)
	return nil
}

func (t *triggerBase) RemoveArea(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := slices.IndexFunc(t.areas, func(x area.Area) bool { return x.Name() == name })
	if i < 0 {
		return notFound("area", name)
	}
	t.areas = slices.Delete(t.areas, i, i+1)
	return nil
}

func (t *triggerBase) Areas() []area.Area {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.areas)
}

func (t *triggerBase) HasArea(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.ContainsFunc(t.areas, func(x area.Area) bool { return x.Name() == name })
}

func (t *triggerBase) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopResetTimerLocked()
	t.fired = 0
	t.accumulator = 0
	t.frames = 0
	t.sampled = true
	if t.onReset != nil {
		t.onReset()
	}
}

func (t *triggerBase) Info() TriggerInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	info := TriggerInfo{
		Name:           t.name,
		Kind:           t.kind,
		Enabled:        t.enabled,
		Limit:          t.limit,
		Fired:          t.fired,
		Accumulator:    t.accumulator,
		ResetTimeoutMs: t.resetTimeout.Milliseconds(),
		AreaPolicy:     t.policy.String(),
		Criteria:       t.criteria,
		Actions:        make([]string, 0, len(t.actions)),
		Areas:          make([]string, 0, len(t.areas)),
	}
	for _, a := range t.actions {
		info.Actions = append(info.Actions, a.Name())
	}
	for _, a := range t.areas {
		info.Areas = append(info.Areas, a.Name())
	}
	return info
}

func (t *triggerBase) CheckForMinCriteria(frame *detection.Frame, obj *detection.Object) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkLocked(frame, obj, t.criteria.ClassID)
}

// PreProcess advances the sampling window and clears the per-frame
// accumulator.
func (t *triggerBase) PreProcess(_ detection.Buffer, _ *detection.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.beginFrameLocked()
	t.accumulator = 0
}

// PostProcess is a no-op for object-level kinds.
func (t *triggerBase) PostProcess(_ detection.Buffer, _ *detection.Frame) uint { return 0 }

func (t *triggerBase) beginFrameLocked() {
	c := t.criteria
	t.sampled = t.frames%uint64(c.SampleDenominator) < uint64(c.SampleNumerator)
	t.frames++
}

func (t *triggerBase) limitReachedLocked() bool {
	return t.limit > 0 && t.fired >= t.limit
}

// canFireLocked is the frame-level subset of the criteria: enabled, below
// the limit and on a sampled frame.
func (t *triggerBase) canFireLocked() bool {
	return t.enabled && !t.limitReachedLocked() && t.sampled
}

// checkLocked applies the common criteria with classID as the target class.
func (t *triggerBase) checkLocked(frame *detection.Frame, obj *detection.Object, classID int) bool {
	c := &t.criteria
	if !t.canFireLocked() {
		return false
	}
	if classID != detection.ClassAny && obj.ClassID != classID {
		return false
	}
	if c.SourceID != 0 && frame.SourceID != c.SourceID {
		return false
	}
	if obj.Confidence < c.MinConfidence {
		return false
	}
	b := obj.BBox
	if (c.MinWidth > 0 && b.Width < c.MinWidth) || (c.MinHeight > 0 && b.Height < c.MinHeight) {
		return false
	}
	if (c.MaxWidth > 0 && b.Width > c.MaxWidth) || (c.MaxHeight > 0 && b.Height > c.MaxHeight) {
		return false
	}
	return t.areasAdmitLocked(b)
}

func (t *triggerBase) areasAdmitLocked(b detection.BBox) bool {
	if len(t.areas) == 0 {
		return true
	}
	if t.policy == AreaPolicyAll {
		for _, a := range t.areas {
			if !a.Test(b) {
				return false
			}
		}
		return true
	}
	for _, a := range t.areas {
		if a.Test(b) {
			return true
		}
	}
	return false
}

// firing is an occurrence plus the actions to run for it, captured under
// the trigger lock and dispatched after it is released.
type firing struct {
	occ     *Occurrence
	actions []Action
}

// fireOpts carries the optional parts of an occurrence.
type fireOpts struct {
	obj   *detection.Object
	peer  *detection.Object
	count uint64
	track *tracking.TrackedObject
}

// prepareLocked records one fire. The caller must have checked the limit.
func (t *triggerBase) prepareLocked(buf detection.Buffer, frame *detection.Frame, o fireOpts) firing {
	t.fired++
	t.armResetLocked()
	env := t.env
	occ := &Occurrence{
		ID:        uuid.New(),
		EventID:   env.counter.Next(),
		Trigger:   t.self,
		Kind:      t.kind,
		Buffer:    buf,
		Frame:     frame,
		Object:    o.obj,
		Peer:      o.peer,
		Count:     o.count,
		Track:     o.track,
		Timestamp: env.now(),
		env:       env,
	}
	return firing{occ: occ, actions: slices.Clone(t.actions)}
}

// dispatch runs the actions of each firing in order. Must be called without
// the trigger lock so actions may mutate the firing trigger.
func (t *triggerBase) dispatch(fs ...firing) {
	for _, f := range fs {
		f.occ.env.metrics.TriggerFired(t.name, string(t.kind))
		for _, a := range f.actions {
			invokeAction(a, f.occ)
		}
	}
}

func (t *triggerBase) armResetLocked() {
	if t.resetTimeout <= 0 || t.resetTimer != nil || !t.limitReachedLocked() {
		return
	}
	t.resetTimer = time.AfterFunc(t.resetTimeout, t.Reset)
}

func (t *triggerBase) stopResetTimerLocked() {
	if t.resetTimer != nil {
		t.resetTimer.Stop()
		t.resetTimer = nil
	}
}

func (t *triggerBase) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopResetTimerLocked()
}
