package trellis

import "sync"

// CallbackLoop is an EventLoop for GUI toolkits that own their own main
// thread and expose a "post this closure onto the UI thread" primitive
// (Qt's QMetaObject::invokeMethod, GTK's g_idle_add, and similar). Call
// hands the pulse off to post immediately; there is no queue of its own
// and no background goroutine, since the host toolkit's main loop already
// serializes everything posted to it.
type CallbackLoop struct {
	post func(func())

	mu      sync.Mutex
	stopped bool

	logger Logger
}

// NewCallbackLoop creates a CallbackLoop that hands each Call to post.
func NewCallbackLoop(post func(func()), logger Logger) *CallbackLoop {
	if logger == nil {
		logger = noopLogger{}
	}
	return &CallbackLoop{post: post, logger: logger}
}

// Call posts fn to the host toolkit's main thread via post, unless Stop has
// already been called, in which case it logs ErrEventLoopStopped and drops
// fn (see PollingLoop.Call).
func (l *CallbackLoop) Call(fn func() error) {
	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()
	if stopped {
		l.logger.Error("dropped call", "error", ErrEventLoopStopped)
		return
	}
	l.post(func() {
		if err := fn(); err != nil {
			l.logger.Error("event loop call failed", "error", err)
		}
	})
}

// Run is a no-op: the host toolkit's own main loop is already running and
// already calling post for us. Run returns immediately.
func (l *CallbackLoop) Run() error { return nil }

// Stop marks the loop stopped so future Call invocations are dropped
// instead of posted; it cannot reach into the host's main loop to stop it.
func (l *CallbackLoop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
}

// Poll is a no-op: work only ever runs when the host's main loop invokes
// what was posted, never synchronously from this call.
func (l *CallbackLoop) Poll() bool { return false }

// Flush is a no-op for the same reason Poll is: posted work runs on the
// host's own schedule.
func (l *CallbackLoop) Flush(int) int { return 0 }
