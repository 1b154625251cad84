package trellis

import (
	"container/heap"
	"time"
)

// Timer is a point in time, or the sentinel extreme that compares after
// every concrete instant: NotYet, an event that has never happened, or a
// deadline that will never arrive — the same value serves both readings,
// exactly as activity.py's single NOT_YET sentinel does. Using a sentinel
// instead of a *time.Time lets every comparison run unconditionally, with
// no nil check.
//
// Grounded on activity.py's _ExtremeType / _Timer: NOT_YET is _Timer(Max),
// a value that compares greater than any concrete _Timer.
type Timer struct {
	when time.Time
	kind int8 // 0 = concrete, 1 = NotYet (never / not yet)
}

var (
	// Epoch is the Time service's initial value, before its first tick.
	Epoch = Timer{when: time.Unix(0, 0)}
	// NotYet compares after every concrete Timer: a deadline that has not
	// arrived, or an event that has not (yet) happened.
	NotYet = Timer{kind: 1}
	// Forever is NotYet under another name, for call sites expressing "this
	// deadline should never be reached" rather than "this hasn't happened
	// yet" — the same sentinel value either way.
	Forever = NotYet
)

// At wraps a concrete instant as a Timer.
func At(t time.Time) Timer { return Timer{when: t} }

// Less reports whether t is strictly earlier than other.
func (t Timer) Less(other Timer) bool {
	if t.kind != other.kind {
		return t.kind < other.kind
	}
	return t.when.Before(other.when)
}

// Equal reports whether t and other denote the same instant (or the same
// sentinel extreme).
func (t Timer) Equal(other Timer) bool {
	return t.kind == other.kind && t.when.Equal(other.when)
}

// BeginsWith implements activity.py's Timer.begins_with idiom: call it as
// prev.BeginsWith(flag, now) from inside a rule whose own previous value is
// prev, to track the instant a boolean condition most recently became
// continuously true. While flag is true, it keeps returning the earliest
// now at which this streak started (so now.Sub(idle_for) reports how long
// the condition has held); the moment flag goes false, it resets to
// NotYet. A rule combines the result with Reached to fire once a condition
// has held continuously for long enough — see scenario 5 (idle timer).
//
// Grounded on activity.py's _Timer.begins_with: "if flag: return
// min(self, Time[0])", i.e. keep the earlier of the previously recorded
// start and now; "return NOT_YET" otherwise.
func (prev Timer) BeginsWith(flag bool, now Timer) Timer {
	if !flag {
		return NotYet
	}
	if prev.kind == 0 && prev.Less(now) {
		return prev
	}
	return now
}

// Sub returns t - other as a duration; undefined (zero) if either side is
// a sentinel extreme, since sentinels have no finite distance from a
// concrete instant.
func (t Timer) Sub(other Timer) time.Duration {
	if t.kind != 0 || other.kind != 0 {
		return 0
	}
	return t.when.Sub(other.when)
}

// scheduledEvent is one pending deadline registered with a Time service,
// ordered into a min-heap by When so NextEventTime can report the nearest
// one without scanning the whole set.
type scheduledEvent struct {
	when  Timer
	index int
	fire  func()
}

type eventHeap []*scheduledEvent

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return h[i].when.Less(h[j].when) }
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *eventHeap) Push(x any) {
	e := x.(*scheduledEvent)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Time is the discrete-event clock every timer-driven rule reads through:
// a single Value cell holding the current Timer, advanced explicitly by
// Advance/Tick, plus a registry of pending deadlines an event loop can poll
// via NextEventTime to know how long it may safely sleep.
//
// Grounded on activity.py's Time(trellis.Component, context.Service).
type Time struct {
	ctrl   *Controller
	now    *Value
	events eventHeap
}

// NewTime creates a Time service starting at Epoch.
func NewTime(ctrl *Controller) *Time {
	return &Time{ctrl: ctrl, now: NewValue(ctrl, Epoch)}
}

// Get returns the clock's current value, recording a dependency on it like
// any other cell read.
func (tm *Time) Get() Timer {
	return tm.now.Get().(Timer)
}

// Advance moves the clock forward by d and fires (then drops) every
// registered event whose deadline the new time reaches, all within one
// pulse.
func (tm *Time) Advance(d time.Duration) error {
	return tm.ctrl.Atomically(func() error {
		cur := tm.now.Get().(Timer)
		next := cur
		if cur.kind == 0 {
			next = At(cur.when.Add(d))
		}
		if err := tm.now.Set(next); err != nil {
			return err
		}
		tm.fireDue(next)
		return nil
	})
}

// Tick sets the clock to the wall-clock instant provided by caller (an
// event loop typically supplies time.Now(); Time itself never calls
// time.Now() so that advancing the clock stays deterministic and
// replayable in tests).
func (tm *Time) Tick(now time.Time) error {
	return tm.ctrl.Atomically(func() error {
		next := At(now)
		if err := tm.now.Set(next); err != nil {
			return err
		}
		tm.fireDue(next)
		return nil
	})
}

// Reached reports whether the clock has reached timer yet: true once now
// is equal to or later than timer. NotYet is never reached, since it
// compares after every concrete instant.
func (tm *Time) Reached(timer Timer) bool {
	now := tm.Get()
	return !now.Less(timer)
}

// ScheduleAt registers fire to run the first time the clock reaches
// timer — either the next time Advance/Tick crosses it, or immediately if
// the clock has already passed it. Returns a cancel function.
//
// Grounded on activity.py's Time._schedule / _events.
func (tm *Time) ScheduleAt(timer Timer, fire func()) (cancel func()) {
	e := &scheduledEvent{when: timer, fire: fire}
	heap.Push(&tm.events, e)
	if tm.Reached(timer) {
		tm.fireDue(tm.Get())
	}
	return func() {
		if e.index >= 0 && e.index < len(tm.events) && tm.events[e.index] == e {
			heap.Remove(&tm.events, e.index)
		}
	}
}

func (tm *Time) fireDue(now Timer) {
	for tm.events.Len() > 0 && !now.Less(tm.events[0].when) {
		e := heap.Pop(&tm.events).(*scheduledEvent)
		e.fire()
	}
}

// NextEventTime returns the nearest pending deadline and true, or the zero
// Timer and false if nothing is scheduled. relative, if true, returns the
// duration until that deadline (as a Timer offset from Epoch) instead of
// the absolute instant — the form a polling event loop wants for its
// sleep budget.
//
// Grounded on activity.py's Time.next_event_time(relative).
func (tm *Time) NextEventTime(relative bool) (Timer, bool) {
	if tm.events.Len() == 0 {
		return Timer{}, false
	}
	next := tm.events[0].when
	if !relative {
		return next, true
	}
	d := next.Sub(tm.Get())
	if d < 0 {
		d = 0
	}
	return At(time.Unix(0, 0).Add(d)), true
}
