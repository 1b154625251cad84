package trellis

// Value is a plain input cell: an external writer calls Set, and every rule
// that has read it is rescheduled. Within a single pulse a Value may only
// ever be set to one value — a second Set with a different value this
// pulse is an input conflict, since there is no rule to reconcile the two
// writes.
//
// Grounded on stm.py's Value(AbstractCell).
type Value struct {
	cellBase

	discrete  bool
	setPulse  uint64
	hasSetVal bool
}

// NewValue creates a writable input cell holding initial.
func NewValue(ctrl *Controller, initial any) *Value {
	return &Value{cellBase: newCellBase(ctrl, initial)}
}

// NewDiscreteValue creates an event-style input cell: Set gives it a value
// for the remainder of the current pulse, and it is reset to nil at the
// start of the next pulse, so dependents only observe the event on the
// pulse it fired.
//
// Grounded on stm.py's handling of discrete rule change (c_rule.py's
// Value(discrete=True) in the wider Trellis family; stm.py itself models
// the reset via a plain on-commit hook, while here registerDiscrete records
// the cell and Controller.resetDiscrete clears it at the start of the next
// pulse).
func NewDiscreteValue(ctrl *Controller) *Value {
	v := &Value{cellBase: newCellBase(ctrl, nil), discrete: true}
	ctrl.registerDiscrete(v)
	return v
}

// Get returns the cell's current value, recording a dependency on it if
// called while a rule or observer is running.
func (v *Value) Get() any {
	v.ctrl.Used(&v.Subject)
	return v.value
}

// Set writes val into the cell.
//
// The claim on this pulse (setPulse/hasSetVal) is staked before the
// same-value check, not after: stm.py's Value.set_value assigns _set_by
// unconditionally before comparing the new value against the old one, so a
// same-value Set still claims the pulse for its caller. Checking equality
// first would let a same-value Set slip through unclaimed, and a later
// different-value Set in the same pulse would then wrongly succeed instead
// of reporting a conflict. Otherwise, if this is the first Set this pulse,
// the old value is undo-logged and every listener that has read this cell is
// rescheduled; a second Set to a different value within the same pulse
// returns ErrInputConflict, since Value has no rule to reconcile the two
// writers. A genuine change attempted while the controller is in its
// read-only observer phase returns ErrReadOnlyPhase instead of mutating
// anything — an Observer must route writes through Action/Defer rather than
// calling Set directly.
func (v *Value) Set(val any) error {
	claimed := v.hasSetVal && v.setPulse == v.ctrl.pulseNo
	if !claimed {
		v.setPulse = v.ctrl.pulseNo
		v.hasSetVal = true
		v.ctrl.OnUndo(func() { v.hasSetVal = false })
	}

	if equalValues(v.value, val) {
		return nil
	}
	if claimed {
		return &InputConflictError{Previous: v.value, Attempted: val}
	}
	if v.ctrl.Readonly() {
		return ErrReadOnlyPhase
	}

	ChangeAttr(&v.ctrl.History, v.rawValue, v.setRawValue, val)
	v.state = stateLive
	v.ctrl.Changed(&v.Subject)
	return nil
}

// equalValues compares two cell values for the purpose of same-pulse
// conflict detection. Comparable values use ==; anything else (slices,
// maps, funcs) always compares as not equal, even to itself, since == on
// such values panics and the panic is recovered as false. stm.py's plain
// `!=` check likewise just delegates to the value's own equality.
func equalValues(a, b any) bool {
	defer func() { recover() }() //nolint:errcheck // a panicking == (uncomparable type) means "not equal"
	return a == b
}
