// Package trellis implements a spreadsheet-like reactive dependency graph of
// cells on top of a software-transactional-memory substrate: reading a cell
// inside a rule records a dependency, writing a cell schedules every rule
// that transitively read it, and a whole round of recalculation (a "pulse")
// either commits in full or rolls back in full.
package trellis

import "weak"

// Subject is an observable datum that listeners can depend on: a cell, a
// timer event, anything with a position in the dependency graph. It owns
// the head of its outgoing Link list; its layer establishes the minimum
// layer any of its listeners must run at.
type Subject struct {
	nextListener *Link
	layer        uint32
	manager      Manager
}

// Listener is a recomputable rule: a rule cell or an observer. It owns the
// head of its incoming Link list and carries its own layer, which is always
// at least one greater than any subject it currently reads.
//
// Grounded on stm.py's AbstractListener.
type Listener interface {
	Layer() uint32
	SetLayer(l uint32)

	// Dirty marks the listener dirty and reports whether it should be
	// scheduled. Idempotent; may have side effects.
	Dirty() bool
	// Run executes one recomputation of the listener's rule.
	Run()

	linkHead() *Link
	setLinkHead(*Link)

	// weakSelf returns a closure that resolves back to this listener as
	// long as it is otherwise reachable, or nil once it is not. Built once
	// at construction time via initListenerBase, since building a weak
	// reference to a type-erased interface value (rather than its
	// concrete pointee) would track the wrong allocation's liveness.
	weakSelf() func() Listener
}

// listenerBase is embedded by every concrete Listener implementation; it
// supplies the bookkeeping fields common to rule cells, observers and task
// cells so each concrete type only has to implement Dirty and Run.
//
// layer is stored through a pointer rather than as a plain field: stm.py's
// AbstractSubject and AbstractListener are mixed into the same object, so
// "subject.layer" and "listener.layer" are one attribute. A cell type here
// embeds both cellBase (whose Subject half other listeners depend on) and
// listenerBase at the same depth, and Go's shallower-embedding promotion
// rule means Layer/SetLayer always resolve to listenerBase's — so unless
// listenerBase's layer pointer actually points at that same cell's
// Subject.layer, the subject-side layer Changed reads and the
// listener-side layer Schedule raises are two different uint32s that never
// agree. initListenerBase wires ownLayer's address in for listeners with
// no Subject of their own (Observer, whose doc comment notes it has "no
// Subject side") and the cell's own Subject.layer address for everything
// else.
type listenerBase struct {
	ownLayer uint32
	layer    *uint32
	head     *Link
	resolver func() Listener
}

func (b *listenerBase) Layer() uint32             { return *b.layer }
func (b *listenerBase) SetLayer(l uint32)         { *b.layer = l }
func (b *listenerBase) linkHead() *Link           { return b.head }
func (b *listenerBase) setLinkHead(l *Link)       { b.head = l }
func (b *listenerBase) weakSelf() func() Listener { return b.resolver }

// initListenerBase wires up self's weak reference and its layer storage. L
// must be a pointer type whose pointee is T and which implements Listener
// (self is normally just `rc` inside `rc := &ReadOnlyCell{...}`, called once
// right after allocation). subjectLayer should be the address of the same
// cell's embedded Subject.layer field for any type that is also a Subject
// (ReadOnlyCell, Cell, TaskCell); pass nil for a listener with no Subject
// side (Observer), which then tracks its own layer in ownLayer.
func initListenerBase[T any, L interface {
	*T
	Listener
}](b *listenerBase, self L, subjectLayer *uint32) {
	wp := weak.Make((*T)(self))
	b.resolver = func() Listener {
		p := wp.Value()
		if p == nil {
			return nil
		}
		return L(p)
	}
	if subjectLayer != nil {
		b.layer = subjectLayer
	} else {
		b.layer = &b.ownLayer
	}
}

// Link is a dependency edge from one Subject to one Listener, threaded into
// both the subject's and the listener's intrusive doubly-linked lists. The
// listener end is held weakly: once the listener is otherwise unreachable,
// resolveListener returns nil and the edge is treated as dead by iteration
// and explicitly unlinked the next time anything walks past it.
//
// Grounded on stm.py's Link(weakref.ref).
type Link struct {
	subject        *Subject
	resolveListener func() Listener

	nextSubject, prevSubject   *Link
	nextListener, prevListener *Link
}

// link creates a Link and inserts it at the head of both lists.
func link(subject *Subject, listener Listener) *Link {
	l := &Link{
		subject:         subject,
		resolveListener: listener.weakSelf(),
	}

	l.nextSubject = listener.linkHead()
	if l.nextSubject != nil {
		l.nextSubject.prevSubject = l
	}
	listener.setLinkHead(l)

	l.nextListener = subject.nextListener
	if l.nextListener != nil {
		l.nextListener.prevListener = l
	}
	subject.nextListener = l

	return l
}

// unlink deactivates the link and removes it from both lists.
func (l *Link) unlink() {
	nxt := l.nextListener
	prev := l.prevListener
	if nxt != nil {
		nxt.prevListener = prev
	}
	if prev != nil {
		if prev.nextListener == l {
			prev.nextListener = nxt
		}
	} else if l.subject != nil && l.subject.nextListener == l {
		l.subject.nextListener = nxt
	}

	prev = l.prevSubject
	nxt = l.nextSubject
	if nxt != nil {
		nxt.prevSubject = prev
	}
	if prev != nil {
		if prev.nextSubject == l {
			prev.nextSubject = nxt
		}
	} else if lst := l.resolveListener(); lst != nil && lst.linkHead() == l {
		lst.setLinkHead(nxt)
	}

	l.subject = nil
	l.nextSubject, l.prevSubject = nil, nil
	l.nextListener, l.prevListener = nil, nil
}

// iterListeners yields the live listeners of subject in list order,
// tolerant of unlinks performed mid-iteration: each step caches next before
// yielding, and skips (and unlinks) edges whose listener's weak reference
// has died.
func iterListeners(subject *Subject, yield func(Listener)) {
	l := subject.nextListener
	for l != nil {
		nxt := l.nextListener
		if ls := l.resolveListener(); ls != nil {
			yield(ls)
		} else {
			l.unlink()
		}
		l = nxt
	}
}

// iterSubjects yields the live subjects of listener in list order, tolerant
// of unlinks performed mid-iteration.
func iterSubjects(listener Listener, yield func(*Subject)) {
	l := listener.linkHead()
	for l != nil {
		nxt := l.nextSubject
		if l.subject != nil {
			yield(l.subject)
		}
		l = nxt
	}
}

// Layer reports the subject's layer (0 for plain values, the rule's layer
// for rule cells).
func (s *Subject) Layer() uint32 { return s.layer }

// SetLayer updates the subject's layer; called when the subject is itself
// a rule cell whose layer has just risen.
func (s *Subject) SetLayer(l uint32) { s.layer = l }

// SetManager attaches the scoped resource manager that lock() enters on
// first use of this subject within an atomic block.
func (s *Subject) SetManager(m Manager) { s.manager = m }

// Manager is a scoped resource acquisition object associated with a
// Subject: entered on first use within an atomic block, exited (in reverse
// insertion order across all managed resources) when the block ends.
type Manager interface {
	Enter() error
	Exit(err error) error
}
