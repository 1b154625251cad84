package trellis

import "sync"

// PollingLoop is a minimal, dependency-free EventLoop: calls queue up in a
// mutex-guarded slice and a buffered channel signals the runner goroutine
// that there's work, mirroring the ingress-queue-plus-wakeup-channel shape
// used throughout the pack's event loops, trimmed to what a single-pulse
// reactive scheduler actually needs (no I/O multiplexing, no microtask
// ring, no fast-path bypass).
//
// Grounded on joeycumines-go-utilpkg/eventloop's Loop.Submit/runAux queue
// pattern (external mutex + batch drain + channel wakeup), generalized
// down from its epoll-integrated form to plain task scheduling.
type PollingLoop struct {
	mu      sync.Mutex
	pending []task
	wake    chan struct{}
	stopped bool
	done    chan struct{}

	logger Logger
}

// NewPollingLoop creates a PollingLoop ready to Run.
func NewPollingLoop(logger Logger) *PollingLoop {
	if logger == nil {
		logger = noopLogger{}
	}
	return &PollingLoop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Call queues fn, or logs ErrEventLoopStopped and drops it if Stop has
// already been called: Call itself returns nothing (it must never block
// the caller), so a stopped loop has no way to hand the error back except
// through the logger.
func (l *PollingLoop) Call(fn func() error) {
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
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run processes calls until Stop is called, blocking between batches.
func (l *PollingLoop) Run() error {
	for {
		l.drain()
		l.mu.Lock()
		stopped := l.stopped
		empty := len(l.pending) == 0
		l.mu.Unlock()
		if stopped && empty {
			close(l.done)
			return nil
		}
		if empty {
			<-l.wake
		}
	}
}

func (l *PollingLoop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Poll runs whatever is queued right now without blocking for more.
func (l *PollingLoop) Poll() bool {
	return l.drain() > 0
}

// Flush runs up to n pending calls (0 = all currently pending), reporting
// how many actually ran.
func (l *PollingLoop) Flush(n int) int {
	return l.drainN(n)
}

func (l *PollingLoop) drain() int { return l.drainN(0) }

func (l *PollingLoop) drainN(n int) int {
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
