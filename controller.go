package trellis

import "container/heap"

// layerHeap is a min-heap of distinct pending layer numbers, used to drive
// the controller's topological run order: the lowest layer with queued
// listeners always runs next, so a rule never observes a dependency that
// hasn't settled yet.
//
// Grounded on stm.py's Controller, which keeps the same structure on top of
// Python's heapq; container/heap is Go's direct equivalent.
type layerHeap []uint32

func (h layerHeap) Len() int            { return len(h) }
func (h layerHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h layerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *layerHeap) Push(x any)         { *h = append(*h, x.(uint32)) }
func (h *layerHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// readonlyLayer is the layer observers run at: strictly above any rule
// cell's layer, so every observer sees a fully-settled pulse. Outside the
// read-only phase, Schedule places a listener at sourceLayer+1 or at its
// own current layer, whichever is higher, so only a listener already at
// this layer (an observer) is queued here then (see Controller.Schedule).
const readonlyLayer = ^uint32(0)

// Controller is the reactive scheduler: it runs on top of History's
// transactional substrate, tracks which listener (if any) is currently
// recomputing, records the read-set and write-set of the in-flight pulse,
// and drives listeners to fixpoint in layer order. A whole pulse — the body
// passed to Atomically plus every rule and observer it transitively wakes —
// commits or rolls back as one unit.
//
// Grounded on stm.py's Controller(STMHistory).
type Controller struct {
	History

	reads map[*Subject]struct{}

	hasRun  map[Listener]uint64
	pulseNo uint64

	layers layerHeap
	queues map[uint32][]Listener
	queued map[Listener]struct{}

	currentListener Listener
	lastSave        int

	notifiers map[Listener]map[Listener]struct{}

	discrete []*Value
	deferred []func() error

	readonly bool

	logger Logger
}

// ControllerOption configures a Controller at construction time.
type ControllerOption func(*Controller)

// WithLogger sets the Logger used for scheduling and pulse diagnostics.
func WithLogger(l Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// NewController builds a Controller ready to run atomic blocks. With no
// options, it logs through NewSlogLogger(nil) (slog.Default()).
func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		hasRun:    make(map[Listener]uint64),
		queues:    make(map[uint32][]Listener),
		queued:    make(map[Listener]struct{}),
		notifiers: make(map[Listener]map[Listener]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = NewSlogLogger(nil)
	}
	c.History = newHistory(c.logger)
	return c
}

// Atomically runs fn inside a pulse. On the outermost call, once fn returns
// without error the controller drains every rule cell it scheduled (in
// layer order) to a fixpoint, then runs every observer scheduled at the
// read-only layer; either phase can still fail with ErrCircularity, in
// which case the whole pulse rolls back and its pending schedule is
// discarded. Nested calls (from inside a rule or another atomic block)
// just run fn: only the outermost call drains the schedule and commits.
func (c *Controller) Atomically(fn func() error) error {
	top := !c.History.Active()
	wrapped := fn
	if top {
		wrapped = func() error {
			c.pulseNo++
			c.resetDiscrete()
			if err := fn(); err != nil {
				return err
			}
			return c.drain()
		}
	}
	err := c.History.Atomically(wrapped)
	if top && err != nil {
		c.layers = c.layers[:0]
		c.queues = make(map[uint32][]Listener)
		c.queued = make(map[Listener]struct{})
	}
	if top && err == nil {
		err = c.runDeferred()
	}
	return err
}

// Defer schedules fn to run in its own fresh atomic block once the current
// pulse has committed, the mechanism an Observer's Action uses to write
// cells: writes are forbidden during the read-only observer phase itself,
// so an action that needs to write defers the write instead of performing
// it inline.
//
// Grounded on the wider Trellis family's Modifier/Action pattern described
// alongside stm.py's AbstractListener contract (stm.py enforces the
// no-write-during-commit rule; the deferred-modifier queue is this port's
// concrete mechanism for still letting observers cause writes).
func (c *Controller) Defer(fn func() error) {
	c.deferred = append(c.deferred, fn)
}

// runDeferred drains Defer's queue, running each entry in its own pulse;
// a deferred action that itself defers further work keeps draining until
// the queue is empty.
func (c *Controller) runDeferred() error {
	for len(c.deferred) > 0 {
		batch := c.deferred
		c.deferred = nil
		for _, fn := range batch {
			if err := c.Atomically(fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// registerDiscrete records v as an event cell whose value must be reset to
// nil at the start of the next pulse, once the pulse that set it has
// committed (committing first matters: rolling back a pulse must not also
// forget the event it fired).
func (c *Controller) registerDiscrete(v *Value) {
	c.discrete = append(c.discrete, v)
}

// resetDiscrete clears every registered event cell that was set last pulse.
// Its writes are not undo-logged: by the time it runs, the pulse that set
// the value has already committed, so there is nothing left to roll back
// to.
func (c *Controller) resetDiscrete() {
	for _, v := range c.discrete {
		if v.hasSetVal && v.setPulse < c.pulseNo {
			v.value = nil
			v.hasSetVal = false
			c.Changed(&v.Subject)
		}
	}
}

// drain runs queued rule-cell listeners to a fixpoint, then the read-only
// observer phase. The rule phase stops short of readonlyLayer even if an
// observer already sits in the queue (any Changed during the rule phase
// schedules its dependent observers immediately): readonly only becomes
// true once every rule cell has settled, so observers never see a partial
// pulse and Value/Cell.Set's readonly check is only ever live while an
// observer is actually running. A *CircularityError from either phase
// propagates to History.Atomically unchanged, which rolls the whole pulse
// back to its start; nothing here retries automatically, since the cycle is
// a property of the rules as written and will reproduce identically until
// the caller changes something.
func (c *Controller) drain() error {
	if err := c.processLayers(false); err != nil {
		return err
	}
	c.readonly = true
	defer func() { c.readonly = false }()
	return c.processLayers(true)
}

// processLayers runs every listener reachable from the current queue, in
// ascending layer order, until the queue empties. Running a listener can
// enqueue others at higher layers, and also at a layer already processed
// (a rule that writes an input cell schedules that cell's readers at
// sourceLayer+1); the heap then returns to that layer, and a listener that
// already ran this pulse is reported by runListener as a circularity.
// With includeReadonly false, it stops as soon as
// readonlyLayer is the lowest remaining layer, leaving the observer queue
// untouched for the caller to drain separately once readonly is set.
func (c *Controller) processLayers(includeReadonly bool) error {
	for c.layers.Len() > 0 {
		layer := c.layers[0]
		if !includeReadonly && layer == readonlyLayer {
			return nil
		}
		pending := c.queues[layer]
		delete(c.queues, layer)
		heap.Pop(&c.layers)

		for _, l := range pending {
			delete(c.queued, l)
			if err := c.runListener(l); err != nil {
				return err
			}
		}
	}
	return nil
}

// runListener recomputes one listener: it snapshots a savepoint, clears the
// listener's previously-recorded dependencies, swaps in a fresh read-set,
// and calls Run. Every Used call made by the listener's rule while it is
// current re-links the listener to the subject it read. If the listener's
// own layer rises above every subject it currently depends on, callers
// relying on the old (lower) layer have already been scheduled correctly
// because Schedule always targets sourceLayer+1 at the moment of the call.
func (c *Controller) runListener(l Listener) error {
	if seen, ok := c.hasRun[l]; ok && seen == c.pulseNo {
		return c.circularity(l)
	}
	c.hasRun[l] = c.pulseNo

	prevListener := c.currentListener
	prevReads := c.reads
	prevSave := c.lastSave

	c.currentListener = l
	c.reads = make(map[*Subject]struct{})
	c.lastSave = c.Savepoint()

	c.unlinkDependencies(l)
	l.Run()

	c.currentListener = prevListener
	c.reads = prevReads
	c.lastSave = prevSave
	return nil
}

// unlinkDependencies tears down every Link currently pointing from subjects
// into l, ahead of a fresh run: the run is about to re-establish exactly
// the subset of them the rule actually reads this time, which lets a rule
// with data-dependent reads (an if/else that reads different cells) shrink
// its dependency set as conditions change.
func (c *Controller) unlinkDependencies(l Listener) {
	var links []*Link
	for head := l.linkHead(); head != nil; head = head.nextSubject {
		links = append(links, head)
	}
	for _, lk := range links {
		lk.unlink()
	}
}

// circularity is raised when a listener is asked to run twice in the same
// pulse: proof that its dependency graph closes a cycle back on itself.
// The pulse rolls back to where it started so no partial cycle iteration is
// observable.
func (c *Controller) circularity(l Listener) error {
	routes := map[Listener]map[Listener]struct{}{l: c.notifiers[l]}
	c.logger.Error("circular dependency detected", "listener", l)
	return &CircularityError{Routes: routes}
}

// Used records that the currently-running listener read subject, linking
// them so a future write to subject reschedules this listener, and raises
// the listener's layer above subject's if it isn't already — a rule must
// always run after every cell it reads, not just the ones it reads through
// a chain of other rules. Called by a cell's get_value once it has an
// up-to-date value to hand back.
func (c *Controller) Used(subject *Subject) {
	if c.currentListener == nil {
		return
	}
	if err := c.Lock(subject); err != nil {
		return
	}
	if _, ok := c.reads[subject]; ok {
		return
	}
	c.reads[subject] = struct{}{}
	if subject.Layer() >= c.currentListener.Layer() {
		c.currentListener.SetLayer(subject.Layer() + 1)
	}
	link(subject, c.currentListener)
}

// Lock enters subject's associated Manager (if any) for the current atomic
// block, memoized so repeated reads of the same subject only enter it
// once. Used is its only caller: Value.Set and Cell.Set do not call Lock,
// so a write alone does not enter a subject's Manager.
func (c *Controller) Lock(subject *Subject) error {
	if subject.manager == nil {
		return nil
	}
	return c.Manage(subject.manager)
}

// Changed notifies every listener currently depending on subject that it
// must re-run, scheduling each one at least one layer above subject's own
// layer. Called by a cell's set_value once its new value has been recorded
// (and undo-logged) for this pulse.
func (c *Controller) Changed(subject *Subject) {
	iterListeners(subject, func(l Listener) {
		c.Schedule(l, subject.Layer())
	})
}

// Schedule enqueues listener to run at a layer strictly above sourceLayer,
// raising the listener's own layer if needed. While readonly is set, every
// schedule targets the observer phase's single terminal layer, so nothing
// is queued at a rule layer once the rule phase has closed.
func (c *Controller) Schedule(l Listener, sourceLayer uint32) {
	if !l.Dirty() {
		return
	}
	target := sourceLayer + 1
	if c.readonly {
		target = readonlyLayer
	} else if l.Layer() > target {
		target = l.Layer()
	}
	if l.Layer() != target {
		l.SetLayer(target)
	}

	if prev := c.currentListener; prev != nil && prev != l {
		set := c.notifiers[l]
		if set == nil {
			set = make(map[Listener]struct{})
			c.notifiers[l] = set
		}
		set[prev] = struct{}{}
	}

	if _, ok := c.queued[l]; ok {
		return
	}
	c.queued[l] = struct{}{}
	wasEmpty := len(c.queues[target]) == 0
	c.queues[target] = append(c.queues[target], l)
	if wasEmpty {
		heap.Push(&c.layers, target)
	}
}

// Cancel removes listener from the pending queue, used by cells whose rule
// determines mid-run that an already-scheduled dependent no longer applies
// (the constant-rule transition uses this to drop any stale re-schedule of
// itself once it freezes).
func (c *Controller) Cancel(l Listener) {
	if _, ok := c.queued[l]; !ok {
		return
	}
	delete(c.queued, l)
	layer := l.Layer()
	q := c.queues[layer]
	for i, x := range q {
		if x == l {
			c.queues[layer] = append(q[:i], q[i+1:]...)
			break
		}
	}
}

// CurrentListener returns the listener presently being recomputed, or nil
// outside any rule's Run.
func (c *Controller) CurrentListener() Listener { return c.currentListener }

// Readonly reports whether the controller is in the observer commit phase,
// where cells may be read but not written.
func (c *Controller) Readonly() bool { return c.readonly }
