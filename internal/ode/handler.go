package ode

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/odeflow/internal/area"
	"github.com/tphakala/odeflow/internal/detection"
	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/logger"
	"github.com/tphakala/odeflow/internal/observability/metrics"
)

// Handler owns the trigger, action and area registries of one pipeline and
// evaluates every trigger against each batch the pipeline delivers.
//
// ProcessBatch runs on the host's streaming goroutine. Registry mutators and
// Enable/Disable may be called concurrently from control goroutines; a batch
// works on a snapshot of the trigger list taken when it starts.
type Handler struct {
	name    string
	enabled atomic.Bool

	mu       sync.RWMutex
	triggers []Trigger
	byName   map[string]Trigger
	actions  map[string]Action
	areas    map[string]area.Area

	counter   EventCounter
	env       *environment
	log       logger.Logger
	metrics   *metrics.Metrics
	queue     *DeliveryQueue
	ownsQueue bool
	now       func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the handler logger. Triggers and actions without their own
// logger use it too.
func WithLogger(log logger.Logger) HandlerOption {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithMetrics records engine metrics. A nil value disables them.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithDeliveryQueue shares an existing queue. The caller keeps ownership and
// must stop it. Without this option the handler creates and owns a queue.
func WithDeliveryQueue(q *DeliveryQueue) HandlerOption {
	return func(h *Handler) { h.queue = q }
}

// WithClock sets the time source used for occurrence timestamps.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler creates an enabled handler with empty registries.
func NewHandler(name string, opts ...HandlerOption) (*Handler, error) {
	if name == "" {
		return nil, invalidParam("handler name must not be empty")
	}
	h := &Handler{
		name:    name,
		byName:  make(map[string]Trigger),
		actions: make(map[string]Action),
		areas:   make(map[string]area.Area),
		log:     logger.Global().Module(componentName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With(logger.String("handler", name))
	if h.queue == nil {
		h.queue = NewDeliveryQueue(WithQueueLogger(h.log), WithQueueMetrics(h.metrics))
		h.ownsQueue = true
	}
	h.env = &environment{
		handler:  h,
		counter:  &h.counter,
		log:      h.log,
		metrics:  h.metrics,
		queue:    h.queue,
		now:      h.now,
		reported: newReportCache(),
	}
	h.enabled.Store(true)
	return h, nil
}

// Name returns the handler name.
func (h *Handler) Name() string { return h.name }

// Enable resumes evaluation from the next batch.
func (h *Handler) Enable() { h.enabled.Store(true) }

// Disable stops evaluation from the next batch. A batch already in progress
// completes.
func (h *Handler) Disable() { h.enabled.Store(false) }

// Enabled reports whether batches are evaluated.
func (h *Handler) Enabled() bool { return h.enabled.Load() }

// EventCount returns the number of occurrences fired through this handler.
func (h *Handler) EventCount() uint64 { return h.counter.Value() }

// Queue returns the delivery queue asynchronous actions submit to.
func (h *Handler) Queue() *DeliveryQueue { return h.queue }

// ProcessBatch evaluates every trigger against every frame of batch. It
// returns immediately when the handler is disabled. A panic inside one
// trigger is logged and does not stop the remaining triggers or frames.
func (h *Handler) ProcessBatch(buf detection.Buffer, batch *detection.Batch) {
	if !h.enabled.Load() || batch == nil {
		return
	}
	start := time.Now()

	h.mu.RLock()
	triggers := slices.Clone(h.triggers)
	h.mu.RUnlock()

	objects := 0
	for _, frame := range batch.Frames {
		if frame == nil {
			continue
		}
		objects += len(frame.Objects)
		for _, t := range triggers {
			h.guard(t, "pre-process", func() { t.PreProcess(buf, frame) })
		}
		for _, obj := range frame.Objects {
			if obj == nil {
				continue
			}
			if obj.Frame == nil {
				obj.Frame = frame
			}
			for _, t := range triggers {
				h.guard(t, "check", func() { t.CheckForOccurrence(buf, frame, obj) })
			}
		}
		for _, t := range triggers {
			h.guard(t, "post-process", func() { t.PostProcess(buf, frame) })
		}
	}
	h.metrics.BatchProcessed(len(batch.Frames), objects, time.Since(start))
}

func (h *Handler) guard(t Trigger, phase string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.metrics.TriggerPanicked(t.Name())
			h.log.Error("trigger panicked",
				logger.String("trigger", t.Name()),
				logger.String("phase", phase),
				logger.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}

// AddTrigger registers t and binds it to this handler.
func (h *Handler) AddTrigger(t Trigger) error {
	if t == nil {
		return invalidParam("nil trigger")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.byName[t.Name()]; ok {
		return duplicateName("trigger", t.Name())
	}
	b := t.base()
	b.mu.Lock()
	owner := b.env.handler
	b.mu.Unlock()
	if owner != nil && owner != h {
		return newError(ErrInUse, errors.CategoryConflict, "trigger %q belongs to handler %q", t.Name(), owner.name)
	}
	b.bind(h.env)
	h.triggers = append(h.triggers, t)
	h.byName[t.Name()] = t
	h.metrics.SetTriggers(len(h.triggers))
	return nil
}

// RemoveTrigger unregisters the named trigger and cancels its reset timer.
func (h *Handler) RemoveTrigger(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.byName[name]
	if !ok {
		return notFound("trigger", name)
	}
	delete(h.byName, name)
	h.triggers = slices.DeleteFunc(h.triggers, func(x Trigger) bool { return x == t })
	b := t.base()
	b.stop()
	b.bind(standaloneEnvironment())
	h.metrics.SetTriggers(len(h.triggers))
	return nil
}

// Trigger returns the named trigger.
func (h *Handler) Trigger(name string) (Trigger, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.byName[name]
	if !ok {
		return nil, notFound("trigger", name)
	}
	return t, nil
}

// Triggers returns the registered triggers in registration order.
func (h *Handler) Triggers() []Trigger {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.triggers)
}

// AddAction registers a so triggers and control actions can refer to it by
// name.
func (h *Handler) AddAction(a Action) error {
	if a == nil {
		return invalidParam("nil action")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.actions[a.Name()]; ok {
		return duplicateName("action", a.Name())
	}
	h.actions[a.Name()] = a
	return nil
}

// RemoveAction unregisters the named action. It fails with ErrInUse while any
// trigger still has it attached.
func (h *Handler) RemoveAction(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.actions[name]; !ok {
		return notFound("action", name)
	}
	for _, t := range h.triggers {
		if t.HasAction(name) {
			return newError(ErrInUse, errors.CategoryConflict, "action %q used by trigger %q", name, t.Name())
		}
	}
	delete(h.actions, name)
	return nil
}

// Action returns the named action.
func (h *Handler) Action(name string) (Action, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.actions[name]
	if !ok {
		return nil, notFound("action", name)
	}
	return a, nil
}

// Actions returns the registered actions sorted by name.
func (h *Handler) Actions() []Action {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Action, 0, len(h.actions))
	for _, k := range slices.Sorted(maps.Keys(h.actions)) {
		out = append(out, h.actions[k])
	}
	return out
}

// AddArea registers a.
func (h *Handler) AddArea(a area.Area) error {
	if a == nil {
		return invalidParam("nil area")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.areas[a.Name()]; ok {
		return duplicateName("area", a.Name())
	}
	h.areas[a.Name()] = a
	return nil
}

// RemoveArea unregisters the named area. It fails with ErrInUse while any
// trigger still has it attached.
func (h *Handler) RemoveArea(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.areas[name]; !ok {
		return notFound("area", name)
	}
	for _, t := range h.triggers {
		if t.HasArea(name) {
			return newError(ErrInUse, errors.CategoryConflict, "area %q used by trigger %q", name, t.Name())
		}
	}
	delete(h.areas, name)
	return nil
}

// Area returns the named area.
func (h *Handler) Area(name string) (area.Area, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.areas[name]
	if !ok {
		return nil, notFound("area", name)
	}
	return a, nil
}

// Areas returns the registered areas sorted by name.
func (h *Handler) Areas() []area.Area {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]area.Area, 0, len(h.areas))
	for _, k := range slices.Sorted(maps.Keys(h.areas)) {
		out = append(out, h.areas[k])
	}
	return out
}

// AttachAction appends a registered action to a registered trigger. The
// registry stays locked until the action is attached so a concurrent
// RemoveAction sees the new reference.
func (h *Handler) AttachAction(trigger, action string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.byName[trigger]
	if !ok {
		return notFound("trigger", trigger)
	}
	a, ok := h.actions[action]
	if !ok {
		return notFound("action", action)
	}
	return t.AddAction(a)
}

// DetachAction removes an action from a trigger.
func (h *Handler) DetachAction(trigger, action string) error {
	t, err := h.Trigger(trigger)
	if err != nil {
		return err
	}
	return t.RemoveAction(action)
}

// AttachArea adds a registered area to a registered trigger under the
// registry lock.
func (h *Handler) AttachArea(trigger, areaName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.byName[trigger]
	if !ok {
		return notFound("trigger", trigger)
	}
	a, ok := h.areas[areaName]
	if !ok {
		return notFound("area", areaName)
	}
	return t.AddArea(a)
}

// DetachArea removes an area from a trigger.
func (h *Handler) DetachArea(trigger, areaName string) error {
	t, err := h.Trigger(trigger)
	if err != nil {
		return err
	}
	return t.RemoveArea(areaName)
}

// Validate checks that every name an action refers to is registered. Actions
// attached to triggers but not registered are checked too.
func (h *Handler) Validate() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]Action, len(h.actions))
	maps.Copy(seen, h.actions)
	for _, t := range h.triggers {
		for _, a := range t.Actions() {
			seen[a.Name()] = a
		}
	}

	var errs []error
	for _, name := range slices.Sorted(maps.Keys(seen)) {
		r, ok := seen[name].(Referencer)
		if !ok {
			continue
		}
		for _, ref := range r.References() {
			if h.resolvesLocked(ref) {
				continue
			}
			errs = append(errs, errors.Newf("action %q refers to unknown %s %q: %w", name, ref.Kind, ref.Name, ErrNotFound).
				Component(componentName).
				Category(errors.CategoryConfiguration).
				Context("action", name).
				Context("reference", ref.Name).
				Build())
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) resolvesLocked(ref Reference) bool {
	var ok bool
	switch ref.Kind {
	case "trigger":
		_, ok = h.byName[ref.Name]
	case "action":
		_, ok = h.actions[ref.Name]
	case "area":
		_, ok = h.areas[ref.Name]
	}
	return ok
}

// ClearReported forgets which unresolved references were already reported,
// so the next skip of each is logged again.
func (h *Handler) ClearReported() { h.env.reported.Flush() }

// Close cancels reset timers and, when the handler owns its delivery queue,
// drains and stops it.
func (h *Handler) Close(ctx context.Context) error {
	h.Disable()
	for _, t := range h.Triggers() {
		t.base().stop()
	}
	if h.ownsQueue {
		return h.queue.Stop(ctx)
	}
	return nil
}

// HandlerInfo is a point-in-time view of a handler for the control API.
type HandlerInfo struct {
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	EventCount uint64 `json:"event_count"`
	Triggers   int    `json:"triggers"`
	Actions    int    `json:"actions"`
	Areas      int    `json:"areas"`
	QueueDepth int    `json:"queue_depth"`
}

// Info returns a snapshot of the handler state.
func (h *Handler) Info() HandlerInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HandlerInfo{
		Name:       h.name,
		Enabled:    h.enabled.Load(),
		EventCount: h.counter.Value(),
		Triggers:   len(h.triggers),
		Actions:    len(h.actions),
		Areas:      len(h.areas),
		QueueDepth: h.queue.Len(),
	}
}

// ActionInfo describes an action for the control API.
type ActionInfo struct {
	Name       string      `json:"name"`
	Kind       ActionKind  `json:"kind"`
	Enabled    bool        `json:"enabled"`
	References []Reference `json:"references,omitempty"`
}

// DescribeAction returns the API view of a.
func DescribeAction(a Action) ActionInfo {
	info := ActionInfo{Name: a.Name(), Kind: a.Kind(), Enabled: a.Enabled()}
	if r, ok := a.(Referencer); ok {
		info.References = r.References()
	}
	return info
}
