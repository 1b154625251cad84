package trellis

// Observer is a listener with no Subject side: it reads cells like any
// rule, but nothing can depend on it. Its first run happens when it is
// constructed; after that it runs in the read-only phase at the end of a
// pulse, once every rule cell has settled, so it only ever sees
// fully-consistent state. Cell writes are rejected in every run.
//
// Grounded on stm.py's Observer(AbstractListener).
type Observer struct {
	listenerBase

	ctrl   *Controller
	action func()
}

// NewObserver registers action to run once now and again at the end of
// every future pulse that changes one of the cells action reads.
func NewObserver(ctrl *Controller, action func()) *Observer {
	o := &Observer{ctrl: ctrl, action: action}
	initListenerBase[Observer](&o.listenerBase, o, nil)
	o.SetLayer(readonlyLayer)
	prevReadonly := ctrl.readonly
	ctrl.readonly = true
	ctrl.runListener(o)
	ctrl.readonly = prevReadonly
	return o
}

// Dirty always reports true: an Observer has no competing writer and is
// always eligible to be rescheduled.
func (o *Observer) Dirty() bool { return true }

// Run invokes the observer's action. Any cell writes the action wants to
// make must go through Controller.Defer, since a write attempted directly
// here — during the read-only phase — would be rejected.
func (o *Observer) Run() {
	o.action()
}

// Action is a convenience wrapper for an Observer's side effect that needs
// to write cells: it runs the body during the observer phase to decide
// what to do, then defers the actual writes to their own pulse.
//
// Grounded on the wider Trellis family's Modifier/Action terminology
// (decorator.go in the teacher framework modeled a similar
// decide-then-apply split for lifecycle hooks, though over modules rather
// than cells; this is that same shape applied to Controller.Defer).
func Action(ctrl *Controller, decide func() func() error) func() {
	return func() {
		if apply := decide(); apply != nil {
			ctrl.Defer(apply)
		}
	}
}
