package trellis

// TaskStep is one resumable unit of a TaskCell's computation. It is called
// again every time the TaskCell is scheduled until it reports done=true;
// result then becomes available to whichever frame pushed it (via
// TaskCell.LastResult), or becomes the TaskCell's own value if it was the
// last frame on the stack.
//
// TaskCell has no single teacher analogue in stm.py (that module models
// only synchronous rules); it follows spec's coroutine-over-cells shape
// using an explicit frame stack instead of goroutines, so no live goroutine
// outlives a rollback. The frame stack and LastResult are plain fields and
// are not undo-logged: a rolled-back pulse restores the task's value and
// completed flag, but not its frames.
type TaskStep func(t *TaskCell) (done bool, result any)

// TaskCell runs a long-lived computation that spans multiple pulses,
// suspending at each step until the cells it reads change, much like a
// generator that yields control back to the scheduler between steps. A
// step can push a sub-step to delegate part of the work; the sub-step's
// result is handed back to its parent through LastResult once it
// completes.
type TaskCell struct {
	cellBase
	listenerBase

	frames    []TaskStep
	lastResult any
	completed bool
}

// NewTaskCell creates a task cell whose first frame is start, and runs it
// once immediately.
func NewTaskCell(ctrl *Controller, start TaskStep) *TaskCell {
	t := &TaskCell{cellBase: newCellBase(ctrl, nil), frames: []TaskStep{start}}
	initListenerBase[TaskCell](&t.listenerBase, t, &t.Subject.layer)
	ctrl.runListener(t)
	return t
}

// Push suspends the currently-running frame behind step: step runs first,
// and once it completes its result becomes visible to the suspended frame
// via LastResult the next time the task cell runs. Returns
// ErrTaskAlreadyCompleted if the task has already finished every frame.
func (t *TaskCell) Push(step TaskStep) error {
	if t.completed {
		return ErrTaskAlreadyCompleted
	}
	t.frames = append(t.frames, step)
	return nil
}

// LastResult returns the result of the most recently completed child
// frame, for a parent frame to consume after Push returns control to it.
func (t *TaskCell) LastResult() any { return t.lastResult }

// Get returns the task's current value: the result of the bottom frame
// once the whole task has completed, or nil while it is still running.
func (t *TaskCell) Get() any {
	t.ctrl.Used(&t.Subject)
	return t.value
}

// Done reports whether every frame has completed.
func (t *TaskCell) Done() bool { return t.completed }

// Dirty always reports true until the task completes, after which it
// reports false so a completed TaskCell is never rescheduled.
func (t *TaskCell) Dirty() bool { return !t.completed }

// Run advances the task by one step: it calls the top frame once. If that
// frame is done, it is popped and its result stored for its parent (or, if
// it was the last frame, becomes the cell's own value and the task
// completes).
func (t *TaskCell) Run() {
	if t.completed || len(t.frames) == 0 {
		return
	}

	top := t.frames[len(t.frames)-1]
	done, result := top(t)
	if !done {
		return
	}

	t.frames = t.frames[:len(t.frames)-1]
	t.lastResult = result

	if len(t.frames) == 0 {
		ChangeAttr(&t.ctrl.History, t.rawValue, t.setRawValue, result)
		t.state = stateLive
		prevCompleted := t.completed
		t.completed = true
		t.ctrl.OnUndo(func() { t.completed = prevCompleted })
		t.ctrl.Changed(&t.Subject)
	}
}
