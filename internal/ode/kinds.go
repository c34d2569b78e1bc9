// Package ode implements the Object Detection Event engine: triggers that
// evaluate per-frame detection records, the actions they fire, and the
// Handler that drives evaluation over batches of frames.
package ode

// Kind identifies a trigger kind.
type Kind string

const (
	KindOccurrence   Kind = "occurrence"
	KindAbsence      Kind = "absence"
	KindSummation    Kind = "summation"
	KindAccumulation Kind = "accumulation"
	KindIntersection Kind = "intersection"
	KindMinimum      Kind = "minimum"
	KindMaximum      Kind = "maximum"
	KindRange        Kind = "range"
	KindCustom       Kind = "custom"
	KindInstance     Kind = "instance"
	KindPersistence  Kind = "persistence"
	KindCross        Kind = "cross"
)

// ActionKind identifies an action kind.
type ActionKind string

const (
	ActionCallback       ActionKind = "callback"
	ActionLog            ActionKind = "log"
	ActionPrint          ActionKind = "print"
	ActionFormatBBox     ActionKind = "format-bbox"
	ActionFormatLabel    ActionKind = "format-label"
	ActionHide           ActionKind = "hide"
	ActionTriggerEnable  ActionKind = "trigger-enable"
	ActionTriggerDisable ActionKind = "trigger-disable"
	ActionTriggerReset   ActionKind = "trigger-reset"
	ActionActionEnable   ActionKind = "action-enable"
	ActionActionDisable  ActionKind = "action-disable"
	ActionAreaAdd        ActionKind = "area-add"
	ActionAreaRemove     ActionKind = "area-remove"
	ActionHandlerDisable ActionKind = "handler-disable"
	ActionCaptureFrame   ActionKind = "capture-frame"
	ActionCaptureObject  ActionKind = "capture-object"
	ActionRecordStart    ActionKind = "record-start"
	ActionRecordStop     ActionKind = "record-stop"
	ActionSinkAdd        ActionKind = "sink-add"
	ActionSinkRemove     ActionKind = "sink-remove"
	ActionSourceAdd      ActionKind = "source-add"
	ActionSourceRemove   ActionKind = "source-remove"
	ActionDeliver        ActionKind = "deliver"
)

// KindSchema describes a trigger kind for configuration tooling and the API.
type KindSchema struct {
	Name  Kind   `json:"name"`
	Label string `json:"label"`
	// FrameLevel kinds fire from the post-process phase without object context.
	FrameLevel bool `json:"frameLevel"`
	// Tracking kinds require objects with a tracking id.
	Tracking bool     `json:"tracking"`
	Params   []string `json:"params,omitempty"`
}

// ActionSchema describes an action kind.
type ActionSchema struct {
	Name  ActionKind `json:"name"`
	Label string     `json:"label"`
	// Async actions hand their work to the delivery queue.
	Async  bool     `json:"async"`
	Params []string `json:"params,omitempty"`
}

// Schema is the catalog of trigger and action kinds.
type Schema struct {
	Triggers []KindSchema   `json:"triggers"`
	Actions  []ActionSchema `json:"actions"`
}

// GetSchema returns the catalog of supported kinds.
func GetSchema() Schema {
	return Schema{
		Triggers: []KindSchema{
			{Name: KindOccurrence, Label: "Occurrence"},
			{Name: KindAbsence, Label: "Absence", FrameLevel: true},
			{Name: KindSummation, Label: "Summation", FrameLevel: true},
			{Name: KindAccumulation, Label: "Accumulation", FrameLevel: true},
			{Name: KindIntersection, Label: "Intersection", FrameLevel: true, Params: []string{"peer_class_id"}},
			{Name: KindMinimum, Label: "Minimum count", FrameLevel: true, Params: []string{"minimum"}},
			{Name: KindMaximum, Label: "Maximum count", FrameLevel: true, Params: []string{"maximum"}},
			{Name: KindRange, Label: "Count range", FrameLevel: true, Params: []string{"lower", "upper"}},
			{Name: KindCustom, Label: "Custom predicate"},
			{Name: KindInstance, Label: "New instance", Tracking: true},
			{Name: KindPersistence, Label: "Persistence", Tracking: true, Params: []string{"min_duration", "max_duration"}},
			{Name: KindCross, Label: "Line cross", Tracking: true, Params: []string{"line", "cross_mode", "min_trace_points"}},
		},
		Actions: []ActionSchema{
			{Name: ActionCallback, Label: "Callback"},
			{Name: ActionLog, Label: "Log"},
			{Name: ActionPrint, Label: "Print"},
			{Name: ActionFormatBBox, Label: "Format bounding box", Params: []string{"border_width", "border_color", "background_color"}},
			{Name: ActionFormatLabel, Label: "Format label", Params: []string{"template"}},
			{Name: ActionHide, Label: "Hide object"},
			{Name: ActionTriggerEnable, Label: "Enable trigger", Params: []string{"target"}},
			{Name: ActionTriggerDisable, Label: "Disable trigger", Params: []string{"target"}},
			{Name: ActionTriggerReset, Label: "Reset trigger", Params: []string{"target"}},
			{Name: ActionActionEnable, Label: "Enable action", Params: []string{"target"}},
			{Name: ActionActionDisable, Label: "Disable action", Params: []string{"target"}},
			{Name: ActionAreaAdd, Label: "Add area to trigger", Params: []string{"trigger", "area"}},
			{Name: ActionAreaRemove, Label: "Remove area from trigger", Params: []string{"trigger", "area"}},
			{Name: ActionHandlerDisable, Label: "Disable handler"},
			{Name: ActionCaptureFrame, Label: "Capture frame", Async: true, Params: []string{"annotate"}},
			{Name: ActionCaptureObject, Label: "Capture object", Async: true, Params: []string{"annotate"}},
			{Name: ActionRecordStart, Label: "Start recording", Async: true, Params: []string{"component", "start", "duration"}},
			{Name: ActionRecordStop, Label: "Stop recording", Async: true, Params: []string{"component"}},
			{Name: ActionSinkAdd, Label: "Add sink", Async: true, Params: []string{"pipeline", "component"}},
			{Name: ActionSinkRemove, Label: "Remove sink", Async: true, Params: []string{"pipeline", "component"}},
			{Name: ActionSourceAdd, Label: "Add source", Async: true, Params: []string{"pipeline", "component"}},
			{Name: ActionSourceRemove, Label: "Remove source", Async: true, Params: []string{"pipeline", "component"}},
			{Name: ActionDeliver, Label: "Deliver to sink", Async: true, Params: []string{"sink"}},
		},
	}
}
