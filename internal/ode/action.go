package ode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tphakala/odeflow/internal/detection"
	"github.com/tphakala/odeflow/internal/logger"
)

// Action is a named operation run when a trigger fires. HandleOccurrence is
// called on the streaming goroutine and must not block; actions that need
// I/O submit a job to the delivery queue.
type Action interface {
	Name() string
	Kind() ActionKind
	Enabled() bool
	SetEnabled(enabled bool)
	HandleOccurrence(occ *Occurrence)
}

// Reference names something an action resolves by name when it fires.
type Reference struct {
	Kind string `json:"kind"` // "trigger", "action" or "area"
	Name string `json:"name"`
}

// Referencer is implemented by actions that resolve other registry entries
// by name. Handler.Validate checks every reference.
type Referencer interface {
	References() []Reference
}

// PipelineController mutates the topology of a named pipeline.
type PipelineController interface {
	AddSink(ctx context.Context, pipeline, sink string) error
	RemoveSink(ctx context.Context, pipeline, sink string) error
	AddSource(ctx context.Context, pipeline, source string) error
	RemoveSource(ctx context.Context, pipeline, source string) error
}

// Recorder starts and stops recording sessions on a named component. start
// is how far back from the occurrence the session begins; duration is how
// long it runs.
type Recorder interface {
	StartSession(ctx context.Context, component string, p Payload, start, duration time.Duration) error
	StopSession(ctx context.Context, component string) error
}

// Capturer writes images of frames or objects. The buffer handle is the one
// the occurrence was fired with; the capturer keeps its own reference if it
// outlives the call.
type Capturer interface {
	CaptureFrame(ctx context.Context, buf detection.Buffer, p Payload, annotate bool) error
	CaptureObject(ctx context.Context, buf detection.Buffer, p Payload, annotate bool) error
}

// Sink receives occurrence payloads: message brokers, notifiers, webhooks,
// persistent logs.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, p Payload) error
}

// actionBase is the state shared by all built-in actions.
type actionBase struct {
	mu      sync.Mutex
	name    string
	kind    ActionKind
	enabled bool
}

func (a *actionBase) init(kind ActionKind, name string) error {
	if name == "" {
		return invalidParam("action name must not be empty")
	}
	a.name = name
	a.kind = kind
	a.enabled = true
	return nil
}

func (a *actionBase) Name() string     { return a.name }
func (a *actionBase) Kind() ActionKind { return a.kind }

func (a *actionBase) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

func (a *actionBase) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// invokeAction runs one action with panic recovery so a faulty action cannot
// stop the stream or the remaining actions.
func invokeAction(a Action, occ *Occurrence) {
	if !a.Enabled() {
		return
	}
	occ.env.metrics.ActionInvoked(a.Name(), string(a.Kind()))
	defer func() {
		if r := recover(); r != nil {
			occ.logger().Error("action panicked",
				logger.String("action", a.Name()),
				logger.String("trigger", occ.TriggerName()),
				logger.String("panic", fmt.Sprint(r)))
			occ.env.metrics.ActionSkipped(a.Name(), "panic")
		}
	}()
	a.HandleOccurrence(occ)
}

// submit hands job to the occurrence's delivery queue. Without a queue the
// job is skipped and reported.
func submit(a Action, occ *Occurrence, job Job) {
	q := occ.env.queue
	if q == nil {
		reportSkip(occ, a, "no delivery queue", "queue")
		return
	}
	q.Submit(a.Name(), job)
}
