package trellis

import "sync"



// Reactor is the minimal hook a host's existing I/O multiplexer (its own
// epoll/kqueue loop, an existing net/http server, anything already running
// a select loop) must provide so ReactorLoop can wake it when new work
// arrives. Notify is called from whatever goroutine invoked Call — it must
// be safe to call concurrently and it must not block.
type Reactor interface {
	Notify()
}

// ReactorLoop is an EventLoop that does not run its own goroutine: a host
// reactor calls Poll (or Flush) from within its own tick once Notify
// fires, keeping every cell mutation on the host's existing I/O thread
// instead of spinning up a second one.
//
// Grounded on the same Submit/wakeup split as PollingLoop, with the
// blocking Run loop removed in favor of a caller-driven Poll, matching how
// joeycumines-go-utilpkg/eventloop's RegisterFD integrates external I/O
// notification without owning the poll call itself.
type ReactorLoop struct {
	mu        sync.Mutex
	pending   []task
	reactor   Reactor
	stopped   bool
	stopOnce  sync.Once
	stoppedCh chan struct{}

	logger Logger
}

// NewReactorLoop creates a ReactorLoop that notifies reactor whenever Call
// enqueues new work.
func NewReactorLoop(reactor Reactor, logger Logger) *ReactorLoop {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ReactorLoop{reactor: reactor, logger: logger, stoppedCh: make(chan struct{})}
}

// Call queues fn and notifies the reactor, or logs ErrEventLoopStopped and
// drops it if Stop has already been called (see PollingLoop.Call).
func (l *ReactorLoop) Call(fn func() error) {
	l.mu.Lock()
	stopped := l.stopped
	if !stopped {
		l.pending = append(l.pending, task{fn: fn})
	}
	l.mu.Unlock()
	if stopped {
		l.logger.Error("dropped call", "error", ErrEventLoopStopped)
		return
	}
	if l.reactor != nil {
		l.reactor.Notify()
	}
}

// Run is not supported: a ReactorLoop has no thread of its own. It returns
// ErrNoReactor immediately if reactor is nil, and otherwise blocks only
// until Stop is called, relying entirely on the host calling Poll.
func (l *ReactorLoop) Run() error {
	if l.reactor == nil {
		return ErrNoReactor
	}
	<-l.stoppedCh
	return nil
}

func (l *ReactorLoop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.stopOnce.Do(func() { close(l.stoppedCh) })
	if l.reactor != nil {
		l.reactor.Notify()
	}
}

// Poll runs whatever is queued right now; the host reactor calls this from
// its own tick after Notify fires (or on every tick, defensively).
func (l *ReactorLoop) Poll() bool {
	return l.Flush(0) > 0
}

// Flush runs up to n pending calls (0 = all currently pending).
func (l *ReactorLoop) Flush(n int) int {
	ran := 0
	for n <= 0 || ran < n {
		l.mu.Lock()
		if len(l.pending) == 0 {
			l.mu.Unlock()
			break
		}
		t := l.pending[0]
		l.pending = l.pending[1:]
		l.mu.Unlock()

		if err := t.fn(); err != nil {
			l.logger.Error("event loop call failed", "error", err)
		}
		ran++
	}
	return ran
}
