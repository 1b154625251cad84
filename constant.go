package trellis

// Constant is a value that never changes after construction: a plain
// Subject with no rule and no listener side, for values a graph depends on
// but that nothing ever writes (configuration, a process start time, a
// parsed literal).
//
// Grounded on stm.py's Constant(_ConstantMixin, AbstractCell).
type Constant struct {
	Subject
	ctrl  *Controller
	value any
}

// NewConstant wraps val as a Constant cell.
func NewConstant(ctrl *Controller, val any) *Constant {
	return &Constant{ctrl: ctrl, value: val}
}

// Get returns the constant's value. Recording a dependency is harmless but
// pointless here, since a Constant's Subject never calls Changed; Used is
// still called so code that treats every cell uniformly doesn't need a
// type switch.
func (c *Constant) Get() any {
	c.ctrl.Used(&c.Subject)
	return c.value
}

// NewConstantRule builds a rule cell that calls rule exactly once and
// freezes on its result — the
// construction-time equivalent of a ReadOnlyCell whose rule immediately
// calls Stop.
//
// Grounded on stm.py's ReadOnlyCell -> ConstantRule class transition,
// collapsed to a single constructor since Go has no runtime class reassignment.
func NewConstantRule(ctrl *Controller, rule func() any) *ReadOnlyCell {
	return NewReadOnlyCell(ctrl, func(any) any {
		Stop(rule())
		return nil
	})
}
