package ode

// Control actions change the engine itself: they enable, disable or reset
// other triggers and actions, move areas between triggers, or switch the
// handler off. Targets are resolved by name through the owning Handler when
// the action fires.

// TriggerControlAction enables, disables or resets a named trigger.
type TriggerControlAction struct {
	actionBase
	target string
}

// NewTriggerEnableAction enables the target trigger when fired.
func NewTriggerEnableAction(name, target string) (*TriggerControlAction, error) {
	return newTriggerControl(ActionTriggerEnable, name, target)
}

// NewTriggerDisableAction disables the target trigger when fired.
func NewTriggerDisableAction(name, target string) (*TriggerControlAction, error) {
	return newTriggerControl(ActionTriggerDisable, name, target)
}

// NewTriggerResetAction resets the target trigger when fired.
func NewTriggerResetAction(name, target string) (*TriggerControlAction, error) {
	return newTriggerControl(ActionTriggerReset, name, target)
}

func newTriggerControl(kind ActionKind, name, target string) (*TriggerControlAction, error) {
	if target == "" {
		return nil, invalidParam("%s action %q needs a target trigger", kind, name)
	}
	a := &TriggerControlAction{target: target}
	if err := a.init(kind, name); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *TriggerControlAction) References() []Reference {
	return []Reference{{Kind: "trigger", Name: a.target}}
}

func (a *TriggerControlAction) HandleOccurrence(occ *Occurrence) {
	h := occ.Handler()
	if h == nil {
		reportSkip(occ, a, "no handler", a.target)
		return
	}
	t, err := h.Trigger(a.target)
	if err != nil {
		reportSkip(occ, a, "unknown trigger", a.target)
		return
	}
	switch a.kind {
	case ActionTriggerEnable:
		t.SetEnabled(true)
	case ActionTriggerDisable:
		t.SetEnabled(false)
	case ActionTriggerReset:
		t.Reset()
	}
}

// ActionControlAction enables or disables a named action.
type ActionControlAction struct {
	actionBase
	target string
}

// NewActionEnableAction enables the target action when fired.
func NewActionEnableAction(name, target string) (*ActionControlAction, error) {
	return newActionControl(ActionActionEnable, name, target)
}

// NewActionDisableAction disables the target action when fired.
func NewActionDisableAction(name, target string) (*ActionControlAction, error) {
	return newActionControl(ActionActionDisable, name, target)
}

func newActionControl(kind ActionKind, name, target string) (*ActionControlAction, error) {
	if target == "" {
		return nil, invalidParam("%s action %q needs a target action", kind, name)
	}
	a := &ActionControlAction{target: target}
	if err := a.init(kind, name); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *ActionControlAction) References() []Reference {
	return []Reference{{Kind: "action", Name: a.target}}
}

func (a *ActionControlAction) HandleOccurrence(occ *Occurrence) {
	h := occ.Handler()
	if h == nil {
		reportSkip(occ, a, "no handler", a.target)
		return
	}
	target, err := h.Action(a.target)
	if err != nil {
		reportSkip(occ, a, "unknown action", a.target)
		return
	}
	target.SetEnabled(a.kind == ActionActionEnable)
}

// AreaControlAction attaches a named area to, or detaches it from, a named
// trigger.
type AreaControlAction struct {
	actionBase
	trigger string
	area    string
}

// NewAreaAddAction attaches the area to the trigger when fired.
func NewAreaAddAction(name, trigger, area string) (*AreaControlAction, error) {
	return newAreaControl(ActionAreaAdd, name, trigger, area)
}

// NewAreaRemoveAction detaches the area from the trigger when fired.
func NewAreaRemoveAction(name, trigger, area string) (*AreaControlAction, error) {
	return newAreaControl(ActionAreaRemove, name, trigger, area)
}

func newAreaControl(kind ActionKind, name, trigger, area string) (*AreaControlAction, error) {
	if trigger == "" || area == "" {
		return nil, invalidParam("%s action %q needs a trigger and an area", kind, name)
	}
	a := &AreaControlAction{trigger: trigger, area: area}
	if err := a.init(kind, name); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *AreaControlAction) References() []Reference {
	return []Reference{{Kind: "trigger", Name: a.trigger}, {Kind: "area", Name: a.area}}
}

func (a *AreaControlAction) HandleOccurrence(occ *Occurrence) {
	h := occ.Handler()
	if h == nil {
		reportSkip(occ, a, "no handler", a.trigger)
		return
	}
	t, err := h.Trigger(a.trigger)
	if err != nil {
		reportSkip(occ, a, "unknown trigger", a.trigger)
		return
	}
	ar, err := h.Area(a.area)
	if err != nil {
		reportSkip(occ, a, "unknown area", a.area)
		return
	}
	if a.kind == ActionAreaAdd {
		if !t.HasArea(ar.Name()) {
			_ = t.AddArea(ar)
		}
		return
	}
	if t.HasArea(ar.Name()) {
		_ = t.RemoveArea(ar.Name())
	}
}

// HandlerDisableAction disables the owning handler. It takes effect from
// the next batch.
type HandlerDisableAction struct {
	actionBase
}

// NewHandlerDisableAction creates a handler disable action.
func NewHandlerDisableAction(name string) (*HandlerDisableAction, error) {
	a := &HandlerDisableAction{}
	if err := a.init(ActionHandlerDisable, name); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *HandlerDisableAction) HandleOccurrence(occ *Occurrence) {
	h := occ.Handler()
	if h == nil {
		reportSkip(occ, a, "no handler", "")
		return
	}
	h.Disable()
}
