package trellis

// EventLoop is the contract a host integrates to drive the controller: it
// accepts calls (an external event, a timer firing, a completed I/O
// operation) and runs them one at a time, serialized so the reactive graph
// is never touched from two goroutines at once. A loop holds no Controller:
// each fn opens its own pulse (Controller.Atomically, or a Time method that
// does) when it needs one.
//
// Three implementations cover the hosting styles spec calls for: a
// self-contained PollingLoop for tests and standalone programs, a
// ReactorLoop that plugs into a pre-existing epoll/kqueue-style reactor,
// and a CallbackLoop for GUI toolkits that want to post work onto their own
// UI thread.
type EventLoop interface {
	// Call schedules fn to run, in turn, on the loop's single logical
	// thread; fn is run as given. It never blocks the caller.
	Call(fn func() error)
	// Run blocks, processing calls (and, where applicable, timers/I/O)
	// until Stop is called.
	Run() error
	// Stop asks Run to return once any in-flight call finishes.
	Stop()
	// Poll processes whatever work is immediately available without
	// blocking, and reports whether it did anything.
	Poll() bool
	// Flush runs up to n pending calls (0 means unlimited), without
	// blocking for more; it's the synchronous-test entry point that lets
	// a test drive the loop deterministically instead of via Run.
	Flush(n int) int
}

// task is one unit of work submitted to an EventLoop.
type task struct {
	fn func() error
}
