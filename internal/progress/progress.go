package progress

import (
	"errors"
	"time"
)

// Common errors returned by the Tracker
var (
	// ErrUnknownOperation is returned when an operation id is not registered.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrUnknownStep is returned when a step id does not exist within an
	// operation.
	ErrUnknownStep = errors.New("unknown step")
)

// StepStatus represents the current state of a single step.
type StepStatus string

// Possible step status values
const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Status represents the overall state of an operation.
type Status string

// Possible operation status values. All but StatusRunning are terminal.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// StepDef describes one step of an operation. Weight is relative: only
// ratios between steps matter, so a heavyweight remote call can contribute
// more to overall progress than a bookkeeping step.
type StepDef struct {
	ID     string  `validate:"required"`
	Name   string  `validate:"required"`
	Weight float64 `validate:"required,gt=0"`
}

// step is the tracker's mutable record of one step.
type step struct {
	def       StepDef
	status    StepStatus
	startedAt time.Time
	endedAt   time.Time
	err       error
}

// operation is the tracker's record of one named operation.
type operation struct {
	id        string
	steps     []*step
	startedAt time.Time
	cancelled bool
	observers map[string]func(Snapshot)
}

// StepView is the snapshot's read-only view of a step.
type StepView struct {
	ID     string
	Name   string
	Status StepStatus
	Err    error
}

// Snapshot is a derived, point-in-time view of an operation. It is
// recomputed on every query and never stored.
type Snapshot struct {
	OperationID    string
	TotalSteps     int
	CompletedSteps int

	// CurrentStep is the step currently running, or the failed step if the
	// operation has failed. Nil when neither applies.
	CurrentStep *StepView

	// Progress is the weight-proportional completion percentage in [0,100].
	Progress float64

	Elapsed time.Duration

	// Remaining is a naive linear extrapolation from elapsed time and
	// progress so far. Zero when no estimate is possible. An estimate, not
	// a guarantee.
	Remaining time.Duration

	Status Status
}
