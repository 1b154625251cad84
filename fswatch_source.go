package trellis

import (
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FSWatchEvent is the value a FSWatchSource's discrete cell is set to: one
// filesystem change, normalized from fsnotify's event.
type FSWatchEvent struct {
	Path string
	Op   fsnotify.Op
}

// FSWatchSource watches a set of paths and feeds each change into a
// discrete input cell, so a rule can depend on "did this config file just
// change" the same way it depends on any other cell.
//
// Grounded on fsnotify's documented watcher-plus-goroutine pattern (its
// own README example), wired into a discrete Value instead of a raw
// channel so filesystem changes enter the reactive graph like any other
// external event.
type FSWatchSource struct {
	watcher *fsnotify.Watcher
	loop    EventLoop
	cell    *Value

	mu      sync.Mutex
	stopped bool
	done    chan struct{}

	logger Logger
}

// NewFSWatchSource creates a watcher over paths and starts its background
// read loop. Every change is delivered to loop.Call so it runs serialized
// with the rest of the reactive graph; Stop tears the watcher down.
func NewFSWatchSource(ctrl *Controller, loop EventLoop, logger Logger, paths ...string) (*FSWatchSource, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := w.Add(p); err != nil {
			_ = w.Close()
			return nil, err
		}
	}

	s := &FSWatchSource{
		watcher: w,
		loop:    loop,
		cell:    NewDiscreteValue(ctrl),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go s.pump(ctrl)
	return s, nil
}

// Cell returns the discrete input cell carrying the most recent
// FSWatchEvent, reset to nil at the start of the pulse after it fired.
func (s *FSWatchSource) Cell() *Value { return s.cell }

// AddPath watches an additional path.
func (s *FSWatchSource) AddPath(path string) error {
	return s.watcher.Add(path)
}

func (s *FSWatchSource) pump(ctrl *Controller) {
	defer close(s.done)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			fsEvent := FSWatchEvent{Path: ev.Name, Op: ev.Op}
			s.loop.Call(func() error {
				return ctrl.Atomically(func() error {
					return s.cell.Set(fsEvent)
				})
			})
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("fswatch error", "error", err)
		}
	}
}

// Stop closes the underlying watcher and waits for its read goroutine to
// exit.
func (s *FSWatchSource) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	err := s.watcher.Close()
	<-s.done
	return err
}
