package executor

import "errors"

// Common errors returned by the executor
var (
	// ErrTimeout is returned when an operation's absolute deadline, measured
	// from submission, expires before the operation succeeds.
	ErrTimeout = errors.New("operation timed out")

	// ErrCancelled is returned for operations rejected by ClearQueue before
	// they produced a result.
	ErrCancelled = errors.New("operation cancelled: queue cleared")
)
