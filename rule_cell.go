package trellis

// Rule computes a cell's next value from its previous one. A rule that
// wants to freeze into a constant calls Stop with the value to freeze on,
// instead of returning normally.
type Rule func(prev any) any

// ReadOnlyCell is a cell whose value comes entirely from a Rule: every
// subject the rule reads during Run becomes a dependency, and any write to
// one of those dependencies reschedules the rule. It cannot be written to
// directly.
//
// Grounded on stm.py's ReadOnlyCell(AbstractCell, AbstractListener), whose
// dynamic __class__ reassignment into ConstantRule once the rule stops
// changing is reproduced here with the explicit stateFrozen transition in
// cellBase.
type ReadOnlyCell struct {
	cellBase
	listenerBase

	rule Rule
}

// NewReadOnlyCell builds a rule cell and performs its first computation
// immediately (outside any pulse, so dependencies recorded during that
// first Run are real: a cell created before its dependencies exist would
// otherwise never link to them).
func NewReadOnlyCell(ctrl *Controller, rule Rule) *ReadOnlyCell {
	rc := &ReadOnlyCell{cellBase: newCellBase(ctrl, nil), rule: rule}
	initListenerBase[ReadOnlyCell](&rc.listenerBase, rc, &rc.Subject.layer)
	rc.ensure()
	return rc
}

// Get returns the cell's current value, computing it first if this is the
// very first read and nothing has scheduled it yet.
func (rc *ReadOnlyCell) Get() any {
	rc.ctrl.Used(&rc.Subject)
	rc.ensure()
	return rc.value
}

// ensure runs the rule once if the cell has never computed a value,
// through the controller so any cells the rule reads during that first
// computation are properly recorded as dependencies (a bare rc.Run() would
// skip dependency tracking, since Used needs an active currentListener).
// Resolves through rc.weakSelf() rather than passing rc directly: when this
// ReadOnlyCell is embedded inside a Cell, every other path that hands a
// Listener to the controller (Schedule, Cancel, Changed) identifies it by
// that weakly-resolved self (dynamic type *Cell), and runListener's
// hasRun/currentListener bookkeeping is keyed on that same identity.
func (rc *ReadOnlyCell) ensure() {
	if rc.uninitialized() {
		rc.ctrl.runListener(rc.weakSelf()())
	}
}

// Dirty always reports true: a ReadOnlyCell has no competing writer, so
// every schedule request is honored (stm.py's ReadOnlyCell.dirty is the
// same unconditional assertion against double-scheduling).
func (rc *ReadOnlyCell) Dirty() bool {
	return true
}

// Run recomputes the cell's value by calling its rule with the previous
// value. If the rule panics with a stopSignal (see Stop), the cell freezes:
// it keeps that value forever and is never scheduled again, matching
// stm.py's ReadOnlyCell -> ConstantRule transition.
func (rc *ReadOnlyCell) Run() {
	if rc.frozen() {
		return
	}
	frozen, next := runRule(rc.rule, rc.value)
	if frozen {
		rc.freeze(next)
		return
	}
	if rc.uninitialized() || !equalValues(rc.value, next) {
		ChangeAttr(&rc.ctrl.History, rc.rawValue, rc.setRawValue, next)
		rc.state = stateLive
		rc.ctrl.Changed(&rc.Subject)
	} else {
		rc.state = stateLive
	}
}

// freeze transitions the cell permanently to stateFrozen holding val,
// cancels any pending re-schedule of it, and notifies dependents if the
// value changed on this final computation.
func (rc *ReadOnlyCell) freeze(val any) {
	changed := rc.uninitialized() || !equalValues(rc.value, val)
	ChangeAttr(&rc.ctrl.History, rc.rawValue, rc.setRawValue, val)
	prevState := rc.state
	rc.state = stateFrozen
	rc.ctrl.OnUndo(func() { rc.state = prevState })
	// Cancel via the weakly-resolved self, not rc directly: when this
	// ReadOnlyCell is embedded inside a Cell, every other scheduling path
	// (Schedule, Changed) identifies the listener as *Cell, and ctrl.Cancel
	// keys its pending-queue lookup on that same identity.
	rc.ctrl.Cancel(rc.weakSelf()())
	if changed {
		rc.ctrl.Changed(&rc.Subject)
	}
}

// stopSignal is the panic payload Stop uses to unwind out of a running
// rule and hand its final value to ReadOnlyCell.Run.
type stopSignal struct{ value any }

// Stop ends a rule with val as its permanently-frozen final value: no
// further recomputation will ever be scheduled for this cell. Call it from
// within a Rule function; it never returns.
//
// Grounded on stm.py's ConstantRule transition, which the original reaches
// by simply never invalidating again; Stop makes that decision explicit
// instead of relying on equal-value detection across every future pulse.
func Stop(val any) {
	panic(stopSignal{value: val})
}

// runRule invokes rule with prev, catching a Stop call and reporting it as
// (true, stopValue) instead of letting the panic escape.
func runRule(rule Rule, prev any) (stopped bool, value any) {
	defer func() {
		if r := recover(); r != nil {
			sig, ok := r.(stopSignal)
			if !ok {
				panic(r)
			}
			stopped = true
			value = sig.value
		}
	}()
	return false, rule(prev)
}

// Cell is a ReadOnlyCell that also accepts direct writes: an external Set
// within a pulse overrides that pulse's rule recomputation, exactly as a
// spreadsheet cell that mixes a formula with manual overrides would.
//
// Grounded on stm.py's Cell(ReadOnlyCell, Value).
type Cell struct {
	ReadOnlyCell

	setPulse  uint64
	hasSetVal bool
}

// NewCell builds a writable rule cell.
func NewCell(ctrl *Controller, rule Rule) *Cell {
	c := &Cell{}
	c.cellBase = newCellBase(ctrl, nil)
	c.rule = rule
	initListenerBase[Cell](&c.listenerBase, c, &c.Subject.layer)
	c.ensure()
	return c
}

// Set writes val directly, pre-empting this pulse's rule recomputation
// (Dirty refuses to reschedule the rule once a direct Set has landed this
// pulse) and rescheduling every dependent as Value.Set would.
//
// The claim on this pulse (setPulse/hasSetVal) is staked before the
// same-value check, not after: stm.py's Value.set_value assigns _set_by
// unconditionally before comparing against the existing value, so a
// same-value Set still claims the pulse for its caller, and Dirty still
// refuses to let the rule overwrite it. Checking equality first would let a
// same-value Set slip through unclaimed, leaving Dirty reporting true and
// the rule free to recompute over it in the same pulse. A genuine change
// attempted during the read-only observer phase returns ErrReadOnlyPhase,
// checked after the claim but before the write, matching Value.Set.
func (c *Cell) Set(val any) error {
	claimed := c.hasSetVal && c.setPulse == c.ctrl.pulseNo
	if !claimed {
		c.setPulse = c.ctrl.pulseNo
		c.hasSetVal = true
		c.ctrl.OnUndo(func() { c.hasSetVal = false })
	}

	if equalValues(c.value, val) {
		return nil
	}
	if claimed {
		return &InputConflictError{Previous: c.value, Attempted: val}
	}
	if c.ctrl.Readonly() {
		return ErrReadOnlyPhase
	}

	ChangeAttr(&c.ctrl.History, c.rawValue, c.setRawValue, val)
	c.state = stateLive
	// c.weakSelf()() resolves to *Cell, the identity ctrl.queued actually
	// keys on; &c.ReadOnlyCell would be a same-address but differently-typed
	// Listener value that never matches a queued entry.
	c.ctrl.Cancel(c.weakSelf()())
	c.ctrl.Changed(&c.Subject)
	return nil
}

// Dirty reports false once a direct Set has already landed for this pulse:
// the explicit write wins over the rule until the next pulse.
//
// Grounded on stm.py's Cell.dirty, which skips recomputation for the same
// reason.
func (c *Cell) Dirty() bool {
	return !(c.hasSetVal && c.setPulse == c.ctrl.pulseNo)
}
