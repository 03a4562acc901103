package progress

import (
	"context"
	"time"
)

// Run is the convenience composition around a tracked operation: it starts
// the operation, subscribes any observers, executes fn, and completes the
// operation on success. If fn returns an error, the step currently running
// is marked failed with that error before the error is returned.
//
// Either way the operation's record is cleaned up after a short grace
// delay, so final observers can still read the terminal snapshot before
// the state disappears.
func Run[T any](t *Tracker, ctx context.Context, id string, steps []StepDef, fn func(ctx context.Context) (T, error), observers ...func(Snapshot)) (T, error) {
	var zero T

	if err := t.StartOperation(id, steps); err != nil {
		return zero, err
	}
	for _, observe := range observers {
		if _, err := t.Subscribe(id, observe); err != nil {
			return zero, err
		}
	}

	defer time.AfterFunc(t.cleanupGrace, func() {
		if t.Cleanup(id) {
			t.logger.Debug("operation record cleaned up", "operation_id", id)
		}
	})

	value, err := fn(ctx)
	if err != nil {
		t.failCurrent(id, err)
		return zero, err
	}

	if err := t.CompleteOperation(id); err != nil {
		t.logger.Warn("failed to complete operation", "operation_id", id, "error", err)
	}
	return value, nil
}
