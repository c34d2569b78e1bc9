package ode

import (
	"context"
	"time"
)

// The actions in this file talk to collaborators outside the engine. They
// take a payload snapshot on the streaming goroutine and hand the I/O to the
// delivery queue.

// CaptureAction writes an image of the frame or of the fired object.
type CaptureAction struct {
	actionBase
	capturer Capturer
	annotate bool
}

// NewCaptureFrameAction captures the whole frame on every occurrence.
// annotate asks the capturer to draw boxes and labels.
func NewCaptureFrameAction(name string, c Capturer, annotate bool) (*CaptureAction, error) {
	return newCapture(ActionCaptureFrame, name, c, annotate)
}

// NewCaptureObjectAction crops the fired object on every occurrence.
// Frame-level occurrences are ignored.
func NewCaptureObjectAction(name string, c Capturer, annotate bool) (*CaptureAction, error) {
	return newCapture(ActionCaptureObject, name, c, annotate)
}

func newCapture(kind ActionKind, name string, c Capturer, annotate bool) (*CaptureAction, error) {
	if c == nil {
		return nil, invalidParam("%s action %q needs a capturer", kind, name)
	}
	a := &CaptureAction{capturer: c, annotate: annotate}
	if err := a.init(kind, name); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *CaptureAction) HandleOccurrence(occ *Occurrence) {
	if a.kind == ActionCaptureObject && occ.Object == nil {
		return
	}
	buf, p := occ.Buffer, occ.Payload()
	submit(a, occ, func(ctx context.Context) error {
		if a.kind == ActionCaptureObject {
			return a.capturer.CaptureObject(ctx, buf, p, a.annotate)
		}
		return a.capturer.CaptureFrame(ctx, buf, p, a.annotate)
	})
}

// RecordAction starts or stops a recording session on a named component.
type RecordAction struct {
	actionBase
	recorder  Recorder
	component string
	start     time.Duration
	duration  time.Duration
}

// NewRecordStartAction starts a session of the given duration beginning
// start before the occurrence.
func NewRecordStartAction(name string, r Recorder, component string, start, duration time.Duration) (*RecordAction, error) {
	if start < 0 || duration <= 0 {
		return nil, invalidParam("record action %q: start %s duration %s", name, start, duration)
	}
	return newRecord(ActionRecordStart, name, r, component, start, duration)
}

// NewRecordStopAction stops the component's current session.
func NewRecordStopAction(name string, r Recorder, component string) (*RecordAction, error) {
	return newRecord(ActionRecordStop, name, r, component, 0, 0)
}

func newRecord(kind ActionKind, name string, r Recorder, component string, start, duration time.Duration) (*RecordAction, error) {
	if r == nil || component == "" {
		return nil, invalidParam("%s action %q needs a recorder and a component", kind, name)
	}
	a := &RecordAction{recorder: r, component: component, start: start, duration: duration}
	if err := a.init(kind, name); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *RecordAction) HandleOccurrence(occ *Occurrence) {
	p := occ.Payload()
	submit(a, occ, func(ctx context.Context) error {
		if a.kind == ActionRecordStop {
			return a.recorder.StopSession(ctx, a.component)
		}
		return a.recorder.StartSession(ctx, a.component, p, a.start, a.duration)
	})
}

// PipelineAction adds or removes a named sink or source on a pipeline.
type PipelineAction struct {
	actionBase
	controller PipelineController
	pipeline   string
	component  string
}

// NewSinkAddAction adds the sink to the pipeline when fired.
func NewSinkAddAction(name string, pc PipelineController, pipeline, sink string) (*PipelineAction, error) {
	return newPipeline(ActionSinkAdd, name, pc, pipeline, sink)
}

// NewSinkRemoveAction removes the sink from the pipeline when fired.
func NewSinkRemoveAction(name string, pc PipelineController, pipeline, sink string) (*PipelineAction, error) {
	return newPipeline(ActionSinkRemove, name, pc, pipeline, sink)
}

// NewSourceAddAction adds the source to the pipeline when fired.
func NewSourceAddAction(name string, pc PipelineController, pipeline, source string) (*PipelineAction, error) {
	return newPipeline(ActionSourceAdd, name, pc, pipeline, source)
}

// NewSourceRemoveAction removes the source from the pipeline when fired.
func NewSourceRemoveAction(name string, pc PipelineController, pipeline, source string) (*PipelineAction, error) {
	return newPipeline(ActionSourceRemove, name, pc, pipeline, source)
}

func newPipeline(kind ActionKind, name string, pc PipelineController, pipeline, component string) (*PipelineAction, error) {
	if pc == nil || pipeline == "" || component == "" {
		return nil, invalidParam("%s action %q needs a controller, a pipeline and a component", kind, name)
	}
	a := &PipelineAction{controller: pc, pipeline: pipeline, component: component}
	if err := a.init(kind, name); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *PipelineAction) HandleOccurrence(occ *Occurrence) {
	submit(a, occ, func(ctx context.Context) error {
		switch a.kind {
		case ActionSinkAdd:
			return a.controller.AddSink(ctx, a.pipeline, a.component)
		case ActionSinkRemove:
			return a.controller.RemoveSink(ctx, a.pipeline, a.component)
		case ActionSourceAdd:
			return a.controller.AddSource(ctx, a.pipeline, a.component)
		default:
			return a.controller.RemoveSource(ctx, a.pipeline, a.component)
		}
	})
}

// DeliverAction sends the occurrence payload to a Sink.
type DeliverAction struct {
	actionBase
	sink Sink
}

// NewDeliverAction creates a deliver action for sink.
func NewDeliverAction(name string, sink Sink) (*DeliverAction, error) {
	if sink == nil {
		return nil, invalidParam("deliver action %q needs a sink", name)
	}
	a := &DeliverAction{sink: sink}
	if err := a.init(ActionDeliver, name); err != nil {
		return nil, err
	}
	return a, nil
}

// Sink returns the destination sink.
func (a *DeliverAction) Sink() Sink { return a.sink }

func (a *DeliverAction) HandleOccurrence(occ *Occurrence) {
	p := occ.Payload()
	m := occ.env.metrics
	submit(a, occ, func(ctx context.Context) error {
		start := time.Now()
		err := a.sink.Deliver(ctx, p)
		m.SinkDelivered(a.sink.Name(), err, time.Since(start))
		return err
	})
}
