package ode

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/tphakala/odeflow/internal/detection"
	"github.com/tphakala/odeflow/internal/logger"
)

// CallbackFunc receives every occurrence of a callback action.
type CallbackFunc func(occ *Occurrence)

// CallbackAction calls a user function. The function runs on the streaming
// goroutine and must return quickly.
type CallbackAction struct {
	actionBase
	fn CallbackFunc
}

// NewCallbackAction creates a callback action.
func NewCallbackAction(name string, fn CallbackFunc) (*CallbackAction, error) {
	if fn == nil {
		return nil, invalidParam("callback action %q needs a function", name)
	}
	a := &CallbackAction{fn: fn}
	if err := a.init(ActionCallback, name); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *CallbackAction) HandleOccurrence(occ *Occurrence) { a.fn(occ) }

// LogAction writes one structured log line per occurrence.
type LogAction struct {
	actionBase
	log logger.Logger
}

// NewLogAction creates a log action. A nil logger uses the owning handler's.
func NewLogAction(name string, log logger.Logger) (*LogAction, error) {
	a := &LogAction{log: log}
	if err := a.init(ActionLog, name); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *LogAction) HandleOccurrence(occ *Occurrence) {
	log := a.log
	if log == nil {
		log = occ.logger()
	}
	p := occ.Payload()
	fields := []logger.Field{
		logger.String("trigger", p.Trigger),
		logger.String("kind", string(p.Kind)),
		logger.Uint64("event_id", p.EventID),
		logger.Uint64("source_id", uint64(p.SourceID)),
		logger.Uint64("frame", p.FrameNumber),
	}
	if p.Object != nil {
		fields = append(fields,
			logger.Int("class_id", p.Object.ClassID),
			logger.Float64("confidence", p.Object.Confidence),
			logger.Any("bbox", p.Object.BBox))
	} else {
		fields = append(fields, logger.Uint64("count", p.Count))
	}
	log.Info("ode occurrence", fields...)
}

// PrintAction writes a human-readable summary of each occurrence to w.
type PrintAction struct {
	actionBase
	wmu sync.Mutex
	w   io.Writer
}

// NewPrintAction creates a print action writing to w.
func NewPrintAction(name string, w io.Writer) (*PrintAction, error) {
	if w == nil {
		return nil, invalidParam("print action %q needs a writer", name)
	}
	a := &PrintAction{w: w}
	if err := a.init(ActionPrint, name); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *PrintAction) HandleOccurrence(occ *Occurrence) {
	p := occ.Payload()
	var b strings.Builder
	fmt.Fprintf(&b, "event %d trigger=%s kind=%s source=%d frame=%d",
		p.EventID, p.Trigger, p.Kind, p.SourceID, p.FrameNumber)
	if o := p.Object; o != nil {
		fmt.Fprintf(&b, " class=%d confidence=%.2f bbox=[%.0f %.0f %.0f %.0f]",
			o.ClassID, o.Confidence, o.BBox.Left, o.BBox.Top, o.BBox.Width, o.BBox.Height)
		if o.TrackingID != nil {
			fmt.Fprintf(&b, " tracking_id=%d", *o.TrackingID)
		}
	} else {
		fmt.Fprintf(&b, " count=%d", p.Count)
	}
	b.WriteByte('\n')

	a.wmu.Lock()
	defer a.wmu.Unlock()
	if _, err := io.WriteString(a.w, b.String()); err != nil {
		occ.logger().Warn("print action write failed",
			logger.String("action", a.name),
			logger.Error(err))
	}
}

// targets returns the fired object and its peer. Frame-level fires have none.
func targets(occ *Occurrence) []*detection.Object {
	if occ.Object != nil {
		if occ.Peer != nil {
			return []*detection.Object{occ.Object, occ.Peer}
		}
		return []*detection.Object{occ.Object}
	}
	return nil
}

// FormatBBoxAction sets the border and fill of the fired object's box.
type FormatBBoxAction struct {
	actionBase
	borderWidth     int
	borderColor     string
	backgroundColor string
}

// NewFormatBBoxAction creates a bounding box format action. An empty color
// leaves the current value.
func NewFormatBBoxAction(name string, borderWidth int, borderColor, backgroundColor string) (*FormatBBoxAction, error) {
	if borderWidth < 0 {
		return nil, invalidParam("border width %d", borderWidth)
	}
	a := &FormatBBoxAction{borderWidth: borderWidth, borderColor: borderColor, backgroundColor: backgroundColor}
	if err := a.init(ActionFormatBBox, name); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *FormatBBoxAction) HandleOccurrence(occ *Occurrence) {
	for _, obj := range targets(occ) {
		obj.Display.BorderWidth = a.borderWidth
		if a.borderColor != "" {
			obj.Display.BorderColor = a.borderColor
		}
		if a.backgroundColor != "" {
			obj.Display.BackgroundColor = a.backgroundColor
		}
	}
}

// FormatLabelAction renders the fired object's label from a template. The
// template uses {{name}} placeholders for payload variables, for example
// "{{label}} #{{tracking_id}} {{confidence}}".
type FormatLabelAction struct {
	actionBase
	template string
}

// NewFormatLabelAction creates a label format action.
func NewFormatLabelAction(name, template string) (*FormatLabelAction, error) {
	if template == "" {
		return nil, invalidParam("format label action %q needs a template", name)
	}
	a := &FormatLabelAction{template: template}
	if err := a.init(ActionFormatLabel, name); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *FormatLabelAction) HandleOccurrence(occ *Occurrence) {
	if occ.Object == nil {
		return
	}
	occ.Object.Display.Text = RenderTemplate(a.template, occ.Payload().Vars())
}

// RenderTemplate replaces every {{key}} in tmpl with vars[key]. Unknown
// placeholders are left as they are.
func RenderTemplate(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// HideAction hides the fired objects from the renderer.
type HideAction struct {
	actionBase
}

// NewHideAction creates a hide action.
func NewHideAction(name string) (*HideAction, error) {
	a := &HideAction{}
	if err := a.init(ActionHide, name); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *HideAction) HandleOccurrence(occ *Occurrence) {
	for _, obj := range targets(occ) {
		obj.Display.Hidden = true
	}
}
