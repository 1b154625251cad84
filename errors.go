package trellis

import "errors"

// Error kinds surfaced to callers, grouped by subsystem. Grounded on the
// teacher framework's flat Err* sentinel block in its root errors.go.
var (
	// Pulse-time errors (§7 taxonomy)
	ErrInputConflict = errors.New("trellis: value already set to a different value this pulse")
	ErrCircularity   = errors.New("trellis: rules form a dependency cycle")
	ErrReadOnlyPhase = errors.New("trellis: cell changed during the observer commit phase")
	ErrNotReentrant  = errors.New("trellis: atomically called during cleanup, or rollback_to during undo")

	// Controller bookkeeping errors (programmer errors, not pulse-time errors)
	ErrNoActiveBlock    = errors.New("trellis: operation requires an active atomic block")
	ErrAlreadyInCleanup = errors.New("trellis: cleanup already in progress")

	// Manager errors
	ErrManagerExit = errors.New("trellis: manager exit failed")

	// Task cell errors
	ErrTaskAlreadyCompleted = errors.New("trellis: task cell has already completed")

	// Event loop / time service errors
	ErrEventLoopStopped = errors.New("trellis: event loop has been stopped")
	ErrNoReactor        = errors.New("trellis: reactor loop has no reactor configured")

	// Config errors
	ErrConfigFeederError = errors.New("trellis: config feeder error")
	ErrConfigNotPointer  = errors.New("trellis: config target must be a non-nil pointer")
)

// CircularityError is raised by the scheduler when a listener is asked to
// run a second time in the same pulse. Routes maps that listener to the set
// of listeners that scheduled it (as recorded by Schedule) — useful for
// diagnosing which edge closed the loop.
//
// Grounded on stm.py's CircularityError(routes).
type CircularityError struct {
	Routes map[Listener]map[Listener]struct{}
}

func (e *CircularityError) Error() string { return ErrCircularity.Error() }
func (e *CircularityError) Unwrap() error { return ErrCircularity }

// InputConflictError carries the two conflicting values for diagnostics.
type InputConflictError struct {
	Previous, Attempted any
}

func (e *InputConflictError) Error() string { return ErrInputConflict.Error() }
func (e *InputConflictError) Unwrap() error { return ErrInputConflict }
