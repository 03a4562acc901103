package progress

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// defaultCleanupGrace is how long Run keeps a terminal operation's record
// around so final observers can still read the terminal snapshot.
const defaultCleanupGrace = 5 * time.Second

// Tracker maintains, per named operation, an ordered set of weighted steps
// and derives completion percentage, elapsed time and an estimated time
// remaining. It records only what callers tell it; it never runs work
// itself and it never fails an operation on its own.
type Tracker struct {
	mu           sync.Mutex
	ops          map[string]*operation
	validate     *validator.Validate
	logger       *slog.Logger
	cleanupGrace time.Duration
}

// NewTracker creates a Tracker. The handle is meant to be constructed once
// by the process entry point and passed by reference to every consumer.
func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{
		ops:          make(map[string]*operation),
		validate:     validator.New(),
		logger:       logger.With("component", "progress_tracker"),
		cleanupGrace: defaultCleanupGrace,
	}
}

// StartOperation registers a new operation with all steps pending.
// Re-registering an existing id overwrites it, observers included. Step
// definitions are validated here: progress cannot be computed from
// non-positive weights, so they are rejected at registration rather than
// discovered at query time.
func (t *Tracker) StartOperation(id string, steps []StepDef) error {
	if id == "" {
		return fmt.Errorf("operation id cannot be empty")
	}
	if len(steps) == 0 {
		return fmt.Errorf("operation %q needs at least one step", id)
	}

	seen := make(map[string]bool, len(steps))
	recorded := make([]*step, 0, len(steps))
	for _, def := range steps {
		if err := t.validate.Struct(&def); err != nil {
			return fmt.Errorf("invalid step definition %q: %w", def.ID, err)
		}
		if seen[def.ID] {
			return fmt.Errorf("duplicate step id %q in operation %q", def.ID, id)
		}
		seen[def.ID] = true
		recorded = append(recorded, &step{def: def, status: StepPending})
	}

	t.mu.Lock()
	t.ops[id] = &operation{
		id:        id,
		steps:     recorded,
		startedAt: time.Now(),
		observers: make(map[string]func(Snapshot)),
	}
	t.mu.Unlock()

	t.logger.Debug("operation started", "operation_id", id, "steps", len(steps))
	return nil
}

// Subscribe registers an observer invoked synchronously after every
// state-changing call on the operation. The returned handle removes the
// observer when cancelled. Observation state and queried snapshots share
// one record, so a subscriber and a poller always see the same operation.
func (t *Tracker) Subscribe(id string, fn func(Snapshot)) (*Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, id)
	}

	key := uuid.New().String()
	op.observers[key] = fn
	return &Subscription{tracker: t, opID: id, key: key}, nil
}

// StartStep transitions a step from pending to running. A no-op if the
// operation has been cancelled.
func (t *Tracker) StartStep(id, stepID string) error {
	return t.transition(id, stepID, StepPending, StepRunning, nil)
}

// CompleteStep transitions a step from running to completed. A no-op if the
// operation has been cancelled.
func (t *Tracker) CompleteStep(id, stepID string) error {
	return t.transition(id, stepID, StepRunning, StepCompleted, nil)
}

// FailStep transitions a step from running to failed and attaches the
// error. A no-op if the operation has been cancelled.
func (t *Tracker) FailStep(id, stepID string, stepErr error) error {
	return t.transition(id, stepID, StepRunning, StepFailed, stepErr)
}

func (t *Tracker) transition(id, stepID string, from, to StepStatus, stepErr error) error {
	t.mu.Lock()

	op, ok := t.ops[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownOperation, id)
	}
	if op.cancelled {
		// Step states freeze once the operation is cancelled.
		t.mu.Unlock()
		return nil
	}

	s := op.find(stepID)
	if s == nil {
		t.mu.Unlock()
		return fmt.Errorf("%w: %q in operation %q", ErrUnknownStep, stepID, id)
	}
	if s.status != from {
		t.mu.Unlock()
		return fmt.Errorf("step %q in operation %q is %s, cannot transition to %s",
			stepID, id, s.status, to)
	}

	now := time.Now()
	s.status = to
	s.err = stepErr
	if to == StepRunning {
		s.startedAt = now
	} else {
		s.endedAt = now
	}

	snap := t.snapshotLocked(op)
	observers := op.observerList()
	t.mu.Unlock()

	t.logger.Debug("step transition",
		"operation_id", id,
		"step_id", stepID,
		"status", to)

	for _, fn := range observers {
		fn(snap)
	}
	return nil
}

// CancelOperation sets the cancelled flag. Subsequent step transitions
// become no-ops and snapshots report the cancelled status.
func (t *Tracker) CancelOperation(id string) error {
	t.mu.Lock()

	op, ok := t.ops[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownOperation, id)
	}
	if op.cancelled {
		t.mu.Unlock()
		return nil
	}
	op.cancelled = true

	snap := t.snapshotLocked(op)
	observers := op.observerList()
	t.mu.Unlock()

	t.logger.Info("operation cancelled", "operation_id", id)

	for _, fn := range observers {
		fn(snap)
	}
	return nil
}

// CompleteOperation marks the operation done. Any step still pending or
// running is forced to completed: steps the caller never explicitly
// finished are assumed complete rather than left dangling. A no-op if the
// operation has been cancelled.
func (t *Tracker) CompleteOperation(id string) error {
	t.mu.Lock()

	op, ok := t.ops[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownOperation, id)
	}
	if op.cancelled {
		t.mu.Unlock()
		return nil
	}

	now := time.Now()
	for _, s := range op.steps {
		if s.status == StepPending || s.status == StepRunning {
			if s.startedAt.IsZero() {
				s.startedAt = now
			}
			s.status = StepCompleted
			s.endedAt = now
		}
	}

	snap := t.snapshotLocked(op)
	observers := op.observerList()
	t.mu.Unlock()

	t.logger.Info("operation completed", "operation_id", id)

	for _, fn := range observers {
		fn(snap)
	}
	return nil
}

// Snapshot derives the operation's current state. Pure computation: it
// never mutates the record. The second return is false when the operation
// is not registered.
func (t *Tracker) Snapshot(id string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[id]
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshotLocked(op), true
}

// Cleanup removes the operation's record if and only if its status is
// terminal, so a live operation cannot be destroyed by a stray call.
// Reports whether the record was removed.
func (t *Tracker) Cleanup(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[id]
	if !ok {
		return false
	}
	if !t.statusLocked(op).Terminal() {
		return false
	}
	delete(t.ops, id)
	return true
}

// statusLocked derives the overall status. Caller holds t.mu.
func (t *Tracker) statusLocked(op *operation) Status {
	if op.cancelled {
		return StatusCancelled
	}
	completed := 0
	for _, s := range op.steps {
		switch s.status {
		case StepFailed:
			return StatusFailed
		case StepCompleted:
			completed++
		}
	}
	if completed == len(op.steps) {
		return StatusCompleted
	}
	return StatusRunning
}

// snapshotLocked computes the derived view. Caller holds t.mu.
func (t *Tracker) snapshotLocked(op *operation) Snapshot {
	var totalWeight, completedWeight float64
	completed := 0
	var current *StepView
	var failed *StepView

	for _, s := range op.steps {
		totalWeight += s.def.Weight
		switch s.status {
		case StepCompleted:
			completedWeight += s.def.Weight
			completed++
		case StepRunning:
			if current == nil {
				current = &StepView{ID: s.def.ID, Name: s.def.Name, Status: s.status, Err: s.err}
			}
		case StepFailed:
			if failed == nil {
				failed = &StepView{ID: s.def.ID, Name: s.def.Name, Status: s.status, Err: s.err}
			}
		}
	}
	if current == nil {
		current = failed
	}

	// Weights are validated positive at registration, so totalWeight > 0.
	pct := completedWeight / totalWeight * 100

	status := t.statusLocked(op)
	elapsed := time.Since(op.startedAt)

	// Naive linear extrapolation: time-per-percent so far, projected over
	// what is left. Only meaningful while the operation is under way.
	var remaining time.Duration
	if status == StatusRunning && pct > 0 && pct < 100 {
		remaining = time.Duration(float64(elapsed) / pct * (100 - pct))
	}

	return Snapshot{
		OperationID:    op.id,
		TotalSteps:     len(op.steps),
		CompletedSteps: completed,
		CurrentStep:    current,
		Progress:       pct,
		Elapsed:        elapsed,
		Remaining:      remaining,
		Status:         status,
	}
}

// failCurrent marks whichever step is running as failed with the given
// error. Used by Run when the wrapped function returns an error after the
// failing step was started. Does nothing if no step is running or the
// operation is gone or cancelled.
func (t *Tracker) failCurrent(id string, opErr error) {
	t.mu.Lock()

	op, ok := t.ops[id]
	if !ok || op.cancelled {
		t.mu.Unlock()
		return
	}

	var target *step
	for _, s := range op.steps {
		if s.status == StepRunning {
			target = s
			break
		}
	}
	if target == nil {
		// Already marked failed by the caller; nothing to record.
		t.mu.Unlock()
		return
	}

	target.status = StepFailed
	target.err = opErr
	target.endedAt = time.Now()

	snap := t.snapshotLocked(op)
	observers := op.observerList()
	t.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func (op *operation) find(stepID string) *step {
	for _, s := range op.steps {
		if s.def.ID == stepID {
			return s
		}
	}
	return nil
}

// observerList copies the registered observers so they can be invoked
// outside the tracker lock. Caller holds t.mu.
func (op *operation) observerList() []func(Snapshot) {
	observers := make([]func(Snapshot), 0, len(op.observers))
	for _, fn := range op.observers {
		observers = append(observers, fn)
	}
	return observers
}
