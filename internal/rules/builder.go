// Package rules builds an ode.Handler from declarative settings.
package rules

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tphakala/odeflow/internal/area"
	"github.com/tphakala/odeflow/internal/conf"
	"github.com/tphakala/odeflow/internal/detection"
	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/logger"
	"github.com/tphakala/odeflow/internal/ode"
	"github.com/tphakala/odeflow/internal/tracking"
)

const componentName = "rules"

var (
	// ErrUnknownType is returned for an area, action or trigger type the
	// builder does not know.
	ErrUnknownType = errors.NewStd("unknown type")
	// ErrMissingCollaborator is returned when an action needs a sink,
	// recorder, capturer, pipeline controller or callback that was not
	// supplied.
	ErrMissingCollaborator = errors.NewStd("missing collaborator")
)

// CustomCheck holds the predicates of a custom trigger.
type CustomCheck struct {
	Check ode.CheckFunc
	Post  ode.PostFunc
}

type builder struct {
	log        logger.Logger
	handlerOps []ode.HandlerOption
	trackOpts  []tracking.Option
	sinks      map[string]ode.Sink
	callbacks  map[string]ode.CallbackFunc
	customs    map[string]CustomCheck
	recorder   ode.Recorder
	capturer   ode.Capturer
	pipelines  ode.PipelineController
	stdout     io.Writer
	stderr     io.Writer
}

// Option supplies a collaborator to the builder.
type Option func(*builder)

// WithLogger sets the logger passed to the handler and log actions.
func WithLogger(log logger.Logger) Option {
	return func(b *builder) { b.log = log }
}

// WithHandlerOptions forwards options to ode.NewHandler.
func WithHandlerOptions(opts ...ode.HandlerOption) Option {
	return func(b *builder) { b.handlerOps = append(b.handlerOps, opts...) }
}

// WithTrackingOptions forwards options to the tracking stores of instance,
// persistence and cross triggers.
func WithTrackingOptions(opts ...tracking.Option) Option {
	return func(b *builder) { b.trackOpts = append(b.trackOpts, opts...) }
}

// WithSink makes s available to deliver actions under s.Name().
func WithSink(s ode.Sink) Option {
	return func(b *builder) { b.sinks[s.Name()] = s }
}

// WithCallback registers fn for callback actions with the given name.
func WithCallback(action string, fn ode.CallbackFunc) Option {
	return func(b *builder) { b.callbacks[action] = fn }
}

// WithCustomCheck registers the predicates of the custom trigger with the
// given name.
func WithCustomCheck(trigger string, c CustomCheck) Option {
	return func(b *builder) { b.customs[trigger] = c }
}

// WithRecorder sets the recorder used by record actions.
func WithRecorder(r ode.Recorder) Option {
	return func(b *builder) { b.recorder = r }
}

// WithCapturer sets the capturer used by capture actions.
func WithCapturer(c ode.Capturer) Option {
	return func(b *builder) { b.capturer = c }
}

// WithPipelineController sets the controller used by sink and source actions.
func WithPipelineController(pc ode.PipelineController) Option {
	return func(b *builder) { b.pipelines = pc }
}

// WithOutput sets the writers used by print actions.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(b *builder) { b.stdout, b.stderr = stdout, stderr }
}

// Build creates a handler with every area, action and trigger in s, attaches
// them by name and validates the result. On error no handler is returned
// and nothing is left running.
func Build(s conf.RulesSettings, opts ...Option) (*ode.Handler, error) {
	b := &builder{
		sinks:     make(map[string]ode.Sink),
		callbacks: make(map[string]ode.CallbackFunc),
		customs:   make(map[string]CustomCheck),
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logger.Global()
	}

	h, err := ode.NewHandler(s.Handler, append([]ode.HandlerOption{ode.WithLogger(b.log)}, b.handlerOps...)...)
	if err != nil {
		return nil, wrap("handler", s.Handler, err)
	}
	if err := b.populate(h, s); err != nil {
		_ = h.Close(context.Background())
		return nil, err
	}
	b.log.Module(componentName).Info("rules loaded",
		logger.String("handler", h.Name()),
		logger.Int("areas", len(s.Areas)),
		logger.Int("actions", len(s.Actions)),
		logger.Int("triggers", len(s.Triggers)))
	return h, nil
}

func (b *builder) populate(h *ode.Handler, s conf.RulesSettings) error {
	for i := range s.Areas {
		cfg := &s.Areas[i]
		a, err := buildArea(cfg)
		if err != nil {
			return wrap("area", cfg.Name, err)
		}
		if err := h.AddArea(a); err != nil {
			return wrap("area", cfg.Name, err)
		}
	}
	for i := range s.Actions {
		cfg := &s.Actions[i]
		a, err := b.buildAction(cfg)
		if err != nil {
			return wrap("action", cfg.Name, err)
		}
		if err := h.AddAction(a); err != nil {
			return wrap("action", cfg.Name, err)
		}
	}
	for i := range s.Triggers {
		cfg := &s.Triggers[i]
		if err := b.addTrigger(h, cfg); err != nil {
			return wrap("trigger", cfg.Name, err)
		}
	}
	if err := h.Validate(); err != nil {
		return wrap("handler", h.Name(), err)
	}
	return nil
}

func buildArea(cfg *conf.AreaConfig) (area.Area, error) {
	polarity, err := area.ParsePolarity(cfg.Polarity)
	if err != nil {
		return nil, err
	}
	opts := []area.Option{area.WithStyle(area.Style{Color: cfg.Color, LineWidth: cfg.LineWidth})}
	if cfg.TestPoint != "" {
		tp, err := detection.ParseTestPoint(cfg.TestPoint)
		if err != nil {
			return nil, err
		}
		opts = append(opts, area.WithTestPoint(tp))
	}
	if cfg.Direction != "" {
		d, err := area.ParseDirection(cfg.Direction)
		if err != nil {
			return nil, err
		}
		opts = append(opts, area.WithDirection(d))
	}
	if cfg.Edge != "" {
		e, err := detection.ParseEdge(cfg.Edge)
		if err != nil {
			return nil, err
		}
		opts = append(opts, area.WithEdge(e))
	}

	points := make([]detection.Point, len(cfg.Points))
	for i, p := range cfg.Points {
		points[i] = detection.Point{X: p.X, Y: p.Y}
	}
	switch cfg.Type {
	case "", "polygon":
		return area.NewPolygon(cfg.Name, polarity, points, opts...)
	case "line":
		return area.NewLineFromCoords(cfg.Name, polarity, points, opts...)
	default:
		return nil, fmt.Errorf("area type %q: %w", cfg.Type, ErrUnknownType)
	}
}

func (b *builder) buildAction(cfg *conf.ActionConfig) (ode.Action, error) {
	switch ode.ActionKind(cfg.Type) {
	case ode.ActionCallback:
		fn, ok := b.callbacks[cfg.Name]
		if !ok {
			return nil, fmt.Errorf("no callback registered: %w", ErrMissingCollaborator)
		}
		return ode.NewCallbackAction(cfg.Name, fn)
	case ode.ActionLog:
		return ode.NewLogAction(cfg.Name, b.log)
	case ode.ActionPrint:
		w := b.stdout
		switch cfg.Output {
		case "", "stdout":
		case "stderr":
			w = b.stderr
		default:
			return nil, fmt.Errorf("print output %q: %w", cfg.Output, ErrUnknownType)
		}
		return ode.NewPrintAction(cfg.Name, w)
	case ode.ActionFormatBBox:
		return ode.NewFormatBBoxAction(cfg.Name, cfg.BorderWidth, cfg.BorderColor, cfg.BackgroundColor)
	case ode.ActionFormatLabel:
		return ode.NewFormatLabelAction(cfg.Name, cfg.Template)
	case ode.ActionHide:
		return ode.NewHideAction(cfg.Name)

	case ode.ActionTriggerEnable:
		return ode.NewTriggerEnableAction(cfg.Name, cfg.Target)
	case ode.ActionTriggerDisable:
		return ode.NewTriggerDisableAction(cfg.Name, cfg.Target)
	case ode.ActionTriggerReset:
		return ode.NewTriggerResetAction(cfg.Name, cfg.Target)
	case ode.ActionActionEnable:
		return ode.NewActionEnableAction(cfg.Name, cfg.Target)
	case ode.ActionActionDisable:
		return ode.NewActionDisableAction(cfg.Name, cfg.Target)
	case ode.ActionAreaAdd:
		return ode.NewAreaAddAction(cfg.Name, cfg.Trigger, cfg.Area)
	case ode.ActionAreaRemove:
		return ode.NewAreaRemoveAction(cfg.Name, cfg.Trigger, cfg.Area)
	case ode.ActionHandlerDisable:
		return ode.NewHandlerDisableAction(cfg.Name)

	case ode.ActionCaptureFrame, ode.ActionCaptureObject:
		if b.capturer == nil {
			return nil, fmt.Errorf("no capturer: %w", ErrMissingCollaborator)
		}
		if ode.ActionKind(cfg.Type) == ode.ActionCaptureFrame {
			return ode.NewCaptureFrameAction(cfg.Name, b.capturer, cfg.Annotate)
		}
		return ode.NewCaptureObjectAction(cfg.Name, b.capturer, cfg.Annotate)
	case ode.ActionRecordStart:
		if b.recorder == nil {
			return nil, fmt.Errorf("no recorder: %w", ErrMissingCollaborator)
		}
		return ode.NewRecordStartAction(cfg.Name, b.recorder, cfg.Component, cfg.Start.Std(), cfg.Duration.Std())
	case ode.ActionRecordStop:
		if b.recorder == nil {
			return nil, fmt.Errorf("no recorder: %w", ErrMissingCollaborator)
		}
		return ode.NewRecordStopAction(cfg.Name, b.recorder, cfg.Component)
	case ode.ActionSinkAdd, ode.ActionSinkRemove, ode.ActionSourceAdd, ode.ActionSourceRemove:
		return b.buildPipelineAction(cfg)
	case ode.ActionDeliver:
		sink, ok := b.sinks[cfg.Sink]
		if !ok {
			return nil, fmt.Errorf("sink %q: %w", cfg.Sink, ErrMissingCollaborator)
		}
		return ode.NewDeliverAction(cfg.Name, sink)
	default:
		return nil, fmt.Errorf("action type %q: %w", cfg.Type, ErrUnknownType)
	}
}

func (b *builder) buildPipelineAction(cfg *conf.ActionConfig) (ode.Action, error) {
	if b.pipelines == nil {
		return nil, fmt.Errorf("no pipeline controller: %w", ErrMissingCollaborator)
	}
	switch ode.ActionKind(cfg.Type) {
	case ode.ActionSinkAdd:
		return ode.NewSinkAddAction(cfg.Name, b.pipelines, cfg.Pipeline, cfg.Component)
	case ode.ActionSinkRemove:
		return ode.NewSinkRemoveAction(cfg.Name, b.pipelines, cfg.Pipeline, cfg.Component)
	case ode.ActionSourceAdd:
		return ode.NewSourceAddAction(cfg.Name, b.pipelines, cfg.Pipeline, cfg.Component)
	default:
		return ode.NewSourceRemoveAction(cfg.Name, b.pipelines, cfg.Pipeline, cfg.Component)
	}
}

func criteria(cfg *conf.TriggerConfig) ode.Criteria {
	c := ode.Criteria{
		ClassID:           detection.ClassAny,
		SourceID:          cfg.SourceID,
		MinConfidence:     cfg.MinConfidence,
		MinWidth:          cfg.MinWidth,
		MinHeight:         cfg.MinHeight,
		MaxWidth:          cfg.MaxWidth,
		MaxHeight:         cfg.MaxHeight,
		SampleNumerator:   cfg.SampleNumerator,
		SampleDenominator: cfg.SampleDenominator,
	}
	if cfg.ClassID != nil {
		c.ClassID = *cfg.ClassID
	}
	return c
}

func (b *builder) buildTrigger(h *ode.Handler, cfg *conf.TriggerConfig) (ode.Trigger, error) {
	c := criteria(cfg)
	switch ode.Kind(cfg.Type) {
	case ode.KindOccurrence:
		return ode.NewOccurrenceTrigger(cfg.Name, c)
	case ode.KindAbsence:
		return ode.NewAbsenceTrigger(cfg.Name, c)
	case ode.KindSummation:
		return ode.NewSummationTrigger(cfg.Name, c)
	case ode.KindAccumulation:
		return ode.NewAccumulationTrigger(cfg.Name, c)
	case ode.KindMinimum:
		return ode.NewMinimumTrigger(cfg.Name, c, cfg.Minimum)
	case ode.KindMaximum:
		return ode.NewMaximumTrigger(cfg.Name, c, cfg.Maximum)
	case ode.KindRange:
		return ode.NewRangeTrigger(cfg.Name, c, cfg.Minimum, cfg.Maximum)
	case ode.KindIntersection:
		peer := ode.NoPeerClass
		if cfg.PeerClassID != nil {
			peer = *cfg.PeerClassID
		}
		return ode.NewIntersectionTrigger(cfg.Name, c, peer)
	case ode.KindCustom:
		cc, ok := b.customs[cfg.Name]
		if !ok {
			return nil, fmt.Errorf("no custom check registered: %w", ErrMissingCollaborator)
		}
		return ode.NewCustomTrigger(cfg.Name, c, cc.Check, cc.Post)
	case ode.KindInstance:
		return ode.NewInstanceTrigger(cfg.Name, c, b.trackOpts...)
	case ode.KindPersistence:
		return ode.NewPersistenceTrigger(cfg.Name, c, cfg.MinDuration.Std(), cfg.MaxDuration.Std(), b.trackOpts...)
	case ode.KindCross:
		a, err := h.Area(cfg.Line)
		if err != nil {
			return nil, err
		}
		line, ok := a.(*area.Line)
		if !ok {
			return nil, fmt.Errorf("area %q is not a line: %w", cfg.Line, ode.ErrInvalidParameter)
		}
		mode, err := ode.ParseCrossMode(cfg.CrossMode)
		if err != nil {
			return nil, err
		}
		return ode.NewCrossTrigger(cfg.Name, c, line, mode, cfg.MinTracePoints, cfg.MaxTracePoints, b.trackOpts...)
	default:
		return nil, fmt.Errorf("trigger type %q: %w", cfg.Type, ErrUnknownType)
	}
}

func (b *builder) addTrigger(h *ode.Handler, cfg *conf.TriggerConfig) error {
	t, err := b.buildTrigger(h, cfg)
	if err != nil {
		return err
	}
	policy, err := ode.ParseAreaPolicy(cfg.AreaPolicy)
	if err != nil {
		return err
	}
	t.SetAreaPolicy(policy)
	if cfg.MaxHistory != 0 {
		// Cross triggers size their trace with max_trace_points.
		tt, ok := t.(ode.TrackingTrigger)
		if !ok || ode.Kind(cfg.Type) == ode.KindCross {
			return fmt.Errorf("max_history does not apply to %s triggers: %w", cfg.Type, ode.ErrInvalidParameter)
		}
		if err := tt.SetMaxHistory(cfg.MaxHistory); err != nil {
			return err
		}
	}
	t.SetLimit(cfg.Limit)
	t.SetResetTimeout(cfg.ResetTimeout.Std())
	t.SetEnabled(!cfg.Disabled)

	if err := h.AddTrigger(t); err != nil {
		return err
	}
	for _, name := range cfg.Areas {
		if err := h.AttachArea(cfg.Name, name); err != nil {
			return err
		}
	}
	for _, name := range cfg.Actions {
		if err := h.AttachAction(cfg.Name, name); err != nil {
			return err
		}
	}
	return nil
}

// wrap adds the failing entry to err, keeping an existing category.
func wrap(what, name string, err error) error {
	category := errors.CategoryOf(err)
	if category == errors.CategoryGeneric {
		category = errors.CategoryConfiguration
	}
	return errors.Newf("%s %q: %w", what, name, err).
		Component(componentName).
		Category(category).
		Context(what, name).
		Build()
}
