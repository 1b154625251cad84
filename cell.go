package trellis

// cellState distinguishes the handful of states a cell's value can be in,
// standing in for the dynamic __class__ reassignment stm.py uses to move a
// ReadOnlyCell into a frozen ConstantRule once its rule stops changing.
type cellState uint8

const (
	// stateUninitialized: no rule has ever run and no value has ever been
	// set; GetValue triggers the first computation.
	stateUninitialized cellState = iota
	// stateLive: a normal, possibly-changing cell.
	stateLive
	// stateFrozen: the cell's rule called Stop, so it has transitioned to
	// a constant and its rule never runs again.
	stateFrozen
)

// cellBase is embedded by every concrete cell type. It supplies the Subject
// half of the graph (so other listeners can depend on this cell's value)
// plus the bookkeeping the controller needs to read and write it inside a
// pulse.
//
// Grounded on stm.py's AbstractCell / _ReadValue.
type cellBase struct {
	Subject

	ctrl  *Controller
	value any
	state cellState
}

func newCellBase(ctrl *Controller, initial any) cellBase {
	state := stateLive
	if initial == nil {
		state = stateUninitialized
	}
	return cellBase{ctrl: ctrl, value: initial, state: state}
}

// rawValue returns the stored value without recording a dependency;
// ChangeAttr's get/set pair for cells operates on this directly.
func (c *cellBase) rawValue() any      { return c.value }
func (c *cellBase) setRawValue(v any)  { c.value = v }
func (c *cellBase) frozen() bool       { return c.state == stateFrozen }
func (c *cellBase) uninitialized() bool { return c.state == stateUninitialized }
