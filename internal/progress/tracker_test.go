package progress

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func twoSteps() []StepDef {
	return []StepDef{
		{ID: "fetch", Name: "Fetch text", Weight: 1},
		{ID: "analyze", Name: "Analyze text", Weight: 3},
	}
}

func TestStartOperation_Validation(t *testing.T) {
	tr := NewTracker(setupTestLogger())

	assert.Error(t, tr.StartOperation("", twoSteps()), "empty id is rejected")
	assert.Error(t, tr.StartOperation("op", nil), "empty step list is rejected")
	assert.Error(t, tr.StartOperation("op", []StepDef{
		{ID: "a", Name: "A", Weight: 0},
	}), "non-positive weight is rejected")
	assert.Error(t, tr.StartOperation("op", []StepDef{
		{ID: "a", Name: "A", Weight: 1},
		{ID: "a", Name: "A again", Weight: 1},
	}), "duplicate step ids are rejected")

	assert.NoError(t, tr.StartOperation("op", twoSteps()))
}

func TestWeightedProgress(t *testing.T) {
	tr := NewTracker(setupTestLogger())
	require.NoError(t, tr.StartOperation("op", twoSteps()))

	snap, ok := tr.Snapshot("op")
	require.True(t, ok)
	assert.Equal(t, StatusRunning, snap.Status)
	assert.Equal(t, float64(0), snap.Progress)
	assert.Equal(t, 2, snap.TotalSteps)
	assert.Equal(t, 0, snap.CompletedSteps)

	// Completing the weight-1 step out of total weight 4 yields 25%
	require.NoError(t, tr.StartStep("op", "fetch"))
	require.NoError(t, tr.CompleteStep("op", "fetch"))

	snap, ok = tr.Snapshot("op")
	require.True(t, ok)
	assert.Equal(t, float64(25), snap.Progress)
	assert.Equal(t, 1, snap.CompletedSteps)
	assert.Equal(t, StatusRunning, snap.Status)

	require.NoError(t, tr.StartStep("op", "analyze"))
	require.NoError(t, tr.CompleteStep("op", "analyze"))

	snap, ok = tr.Snapshot("op")
	require.True(t, ok)
	assert.Equal(t, float64(100), snap.Progress)
	assert.Equal(t, 2, snap.CompletedSteps)
	assert.Equal(t, StatusCompleted, snap.Status)
}

func TestSnapshot_UnknownOperation(t *testing.T) {
	tr := NewTracker(setupTestLogger())

	_, ok := tr.Snapshot("missing")
	assert.False(t, ok)
}

func TestTransition_Errors(t *testing.T) {
	tr := NewTracker(setupTestLogger())
	require.NoError(t, tr.StartOperation("op", twoSteps()))

	err := tr.StartStep("missing", "fetch")
	assert.ErrorIs(t, err, ErrUnknownOperation)

	err = tr.StartStep("op", "missing")
	assert.ErrorIs(t, err, ErrUnknownStep)

	// Completing a step that was never started is an invalid transition
	err = tr.CompleteStep("op", "fetch")
	assert.Error(t, err)
}

func TestCompleteOperation_ForcesUnfinishedSteps(t *testing.T) {
	tr := NewTracker(setupTestLogger())
	require.NoError(t, tr.StartOperation("op", twoSteps()))
	require.NoError(t, tr.StartStep("op", "fetch"))

	// One step running, one still pending: both are assumed complete
	require.NoError(t, tr.CompleteOperation("op"))

	snap, ok := tr.Snapshot("op")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, float64(100), snap.Progress)
	assert.Equal(t, 2, snap.CompletedSteps)
	assert.Nil(t, snap.CurrentStep)
}

func TestCancelOperation_FreezesState(t *testing.T) {
	tr := NewTracker(setupTestLogger())
	require.NoError(t, tr.StartOperation("op", twoSteps()))
	require.NoError(t, tr.StartStep("op", "fetch"))
	require.NoError(t, tr.CompleteStep("op", "fetch"))

	require.NoError(t, tr.CancelOperation("op"))

	// Subsequent transitions are no-ops
	assert.NoError(t, tr.StartStep("op", "analyze"))
	assert.NoError(t, tr.CompleteStep("op", "analyze"))

	snap, ok := tr.Snapshot("op")
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, snap.Status)
	assert.Equal(t, float64(25), snap.Progress, "progress is frozen at cancellation")
	assert.Equal(t, 1, snap.CompletedSteps)

	// Cancelling twice is harmless
	assert.NoError(t, tr.CancelOperation("op"))
}

func TestFailStep(t *testing.T) {
	tr := NewTracker(setupTestLogger())
	require.NoError(t, tr.StartOperation("op", twoSteps()))
	require.NoError(t, tr.StartStep("op", "fetch"))

	stepErr := errors.New("source unreachable")
	require.NoError(t, tr.FailStep("op", "fetch", stepErr))

	snap, ok := tr.Snapshot("op")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, snap.Status)
	require.NotNil(t, snap.CurrentStep)
	assert.Equal(t, "fetch", snap.CurrentStep.ID)
	assert.Equal(t, StepFailed, snap.CurrentStep.Status)
	assert.ErrorIs(t, snap.CurrentStep.Err, stepErr)
}

func TestSubscribe_NotifiesOnEveryTransition(t *testing.T) {
	tr := NewTracker(setupTestLogger())
	require.NoError(t, tr.StartOperation("op", twoSteps()))

	var snaps []Snapshot
	sub, err := tr.Subscribe("op", func(s Snapshot) {
		snaps = append(snaps, s)
	})
	require.NoError(t, err)

	require.NoError(t, tr.StartStep("op", "fetch"))
	require.NoError(t, tr.CompleteStep("op", "fetch"))
	require.Len(t, snaps, 2)
	assert.Equal(t, float64(25), snaps[1].Progress)

	// Progress is non-decreasing while the operation is running
	for i := 1; i < len(snaps); i++ {
		assert.GreaterOrEqual(t, snaps[i].Progress, snaps[i-1].Progress)
	}

	sub.Cancel()
	require.NoError(t, tr.StartStep("op", "analyze"))
	assert.Len(t, snaps, 2, "cancelled subscription receives no further snapshots")

	// Subscribing to an unknown operation fails
	_, err = tr.Subscribe("missing", func(Snapshot) {})
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestCleanup_OnlyRemovesTerminalRecords(t *testing.T) {
	tr := NewTracker(setupTestLogger())
	require.NoError(t, tr.StartOperation("op", twoSteps()))

	assert.False(t, tr.Cleanup("op"), "a live operation is not destroyed")
	_, ok := tr.Snapshot("op")
	assert.True(t, ok)

	require.NoError(t, tr.CompleteOperation("op"))
	assert.True(t, tr.Cleanup("op"))
	_, ok = tr.Snapshot("op")
	assert.False(t, ok)

	assert.False(t, tr.Cleanup("op"), "cleanup of a removed record is a no-op")
}

func TestStartOperation_Overwrites(t *testing.T) {
	tr := NewTracker(setupTestLogger())
	require.NoError(t, tr.StartOperation("op", twoSteps()))
	require.NoError(t, tr.StartStep("op", "fetch"))
	require.NoError(t, tr.CompleteStep("op", "fetch"))

	require.NoError(t, tr.StartOperation("op", twoSteps()))

	snap, ok := tr.Snapshot("op")
	require.True(t, ok)
	assert.Equal(t, float64(0), snap.Progress)
	assert.Equal(t, StatusRunning, snap.Status)
}

func TestSnapshot_Estimate(t *testing.T) {
	tr := NewTracker(setupTestLogger())
	steps := []StepDef{
		{ID: "a", Name: "A", Weight: 1},
		{ID: "b", Name: "B", Weight: 1},
	}
	require.NoError(t, tr.StartOperation("op", steps))
	require.NoError(t, tr.StartStep("op", "a"))

	time.Sleep(40 * time.Millisecond)
	require.NoError(t, tr.CompleteStep("op", "a"))

	snap, ok := tr.Snapshot("op")
	require.True(t, ok)
	assert.Equal(t, float64(50), snap.Progress)

	// At exactly half done, the linear extrapolation projects as much time
	// remaining as has elapsed
	assert.InDelta(t, float64(snap.Elapsed), float64(snap.Remaining),
		float64(time.Millisecond))

	// No estimate before any progress or after completion
	require.NoError(t, tr.StartOperation("fresh", steps))
	snap, _ = tr.Snapshot("fresh")
	assert.Zero(t, snap.Remaining)

	require.NoError(t, tr.CompleteOperation("op"))
	snap, _ = tr.Snapshot("op")
	assert.Zero(t, snap.Remaining)
}
