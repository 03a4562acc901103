package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mhollis/fabula/internal/config"
)

// Operation is a fallible asynchronous unit of work. It must be safely
// re-invocable (idempotent or side-effect-tolerant), since the executor may
// call it multiple times on retry. The context carries the operation's
// absolute deadline and is cancelled when the queue is cleared.
type Operation[T any] func(ctx context.Context) (T, error)

// Hooks are optional caller-supplied callbacks observing an operation's
// passage through the executor.
type Hooks struct {
	// OnQueued is called synchronously at submission with the operation's
	// 1-based position among unsettled operations, counting those already
	// in flight.
	OnQueued func(position int)

	// OnRetry is called before each backoff delay with the 1-based retry
	// attempt number, the error that triggered the retry, and the delay
	// that will be slept before the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Config holds the retry policy and admission ceiling for an Executor.
// It is immutable once the Executor is constructed and shared by all
// operations passing through it.
type Config struct {
	// MaxRetries is the number of retry attempts allowed after the initial
	// attempt.
	MaxRetries int `validate:"min=0"`

	// BaseDelay is the backoff delay before the first retry.
	BaseDelay time.Duration `validate:"gt=0"`

	// MaxDelay caps the backoff delay regardless of attempt number.
	MaxDelay time.Duration `validate:"gtefield=BaseDelay"`

	// BackoffMultiplier is applied to the delay between successive retries.
	BackoffMultiplier float64 `validate:"gte=1"`

	// Timeout is the absolute deadline for an operation, measured from
	// submission rather than from the most recent attempt.
	Timeout time.Duration `validate:"gt=0"`

	// MaxConcurrent bounds how many operations may execute at once.
	MaxConcurrent int `validate:"gt=0"`
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		BaseDelay:         1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Timeout:           60 * time.Second,
		MaxConcurrent:     3,
	}
}

// ConfigFrom converts the application-level executor settings, expressed in
// milliseconds, into an executor Config.
func ConfigFrom(app config.ExecutorConfig) Config {
	return Config{
		MaxRetries:        app.MaxRetries,
		BaseDelay:         time.Duration(app.BaseDelayMs) * time.Millisecond,
		MaxDelay:          time.Duration(app.MaxDelayMs) * time.Millisecond,
		BackoffMultiplier: app.BackoffMultiplier,
		Timeout:           time.Duration(app.TimeoutMs) * time.Millisecond,
		MaxConcurrent:     app.MaxConcurrent,
	}
}

// outcome is a settled operation result.
type outcome struct {
	value any
	err   error
}

// unit is a pending operation. It is owned exclusively by the executor from
// submission until settlement; the caller only ever holds the result channel
// through Execute.
type unit struct {
	id        uuid.UUID
	op        func(ctx context.Context) (any, error)
	hooks     *Hooks
	retries   int
	submitted time.Time
	deadline  time.Time
	result    chan outcome
	ctx       context.Context
	cancel    context.CancelFunc
	settled   bool
}

// Executor routes fallible asynchronous operations through a FIFO admission
// queue with a fixed concurrency ceiling, retrying transient failures with
// exponential backoff under an absolute per-operation deadline.
type Executor struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	pending  []*unit
	inflight map[uuid.UUID]*unit
	active   int
	draining bool
}

// New creates an Executor with the given configuration. The configuration is
// validated here so operations never have to re-check it.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid executor config: %w", err)
	}

	return &Executor{
		cfg:      cfg,
		logger:   logger.With("component", "executor"),
		inflight: make(map[uuid.UUID]*unit),
	}, nil
}

// Execute submits op to the executor and blocks until it settles. The
// operation is admitted in FIFO order once a concurrency slot frees up,
// retried on transient errors per the executor's policy, and bounded by the
// absolute timeout measured from this call. hooks may be nil.
//
// On success the operation's value is returned. On failure the error is the
// original terminal error, ErrTimeout if the deadline expired, ErrCancelled
// if the queue was cleared, or ctx.Err() if the caller's context ended first.
func Execute[T any](e *Executor, ctx context.Context, op Operation[T], hooks *Hooks) (T, error) {
	u := e.enqueue(ctx, func(ctx context.Context) (any, error) {
		return op(ctx)
	}, hooks)

	select {
	case r := <-u.result:
		if r.err != nil {
			var zero T
			return zero, r.err
		}
		v, _ := r.value.(T)
		return v, nil
	case <-ctx.Done():
		// The caller gave up waiting. The unit still settles internally and
		// its result is discarded.
		var zero T
		return zero, ctx.Err()
	}
}

// enqueue appends a unit to the pending queue, fires OnQueued, and kicks the
// drain loop.
func (e *Executor) enqueue(ctx context.Context, op func(ctx context.Context) (any, error), hooks *Hooks) *unit {
	now := time.Now()
	u := &unit{
		id:        uuid.New(),
		op:        op,
		hooks:     hooks,
		submitted: now,
		deadline:  now.Add(e.cfg.Timeout),
		result:    make(chan outcome, 1),
	}
	u.ctx, u.cancel = context.WithDeadline(ctx, u.deadline)

	e.mu.Lock()
	e.pending = append(e.pending, u)
	position := e.active + len(e.pending)
	e.mu.Unlock()

	e.logger.Debug("operation queued",
		"op_id", u.id,
		"position", position)

	if hooks != nil && hooks.OnQueued != nil {
		hooks.OnQueued(position)
	}

	e.drain()
	return u
}

// drain admits pending units into execution while slots are free, preserving
// FIFO submission order. The draining flag keeps concurrent callers (new
// submissions and finishing units) from running duplicate drain loops.
func (e *Executor) drain() {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return
	}
	e.draining = true

	for len(e.pending) > 0 && e.active < e.cfg.MaxConcurrent {
		u := e.pending[0]
		e.pending = e.pending[1:]
		e.inflight[u.id] = u
		e.active++
		e.mu.Unlock()

		e.logger.Debug("operation dispatched", "op_id", u.id)
		go e.run(u)

		e.mu.Lock()
	}

	e.draining = false
	e.mu.Unlock()
}

// run drives a single unit through its attempt/backoff loop until it settles.
func (e *Executor) run(u *unit) {
	defer func() {
		e.mu.Lock()
		delete(e.inflight, u.id)
		e.active--
		e.mu.Unlock()
		e.drain()
	}()

	for {
		// The deadline is absolute, measured from submission. If the budget
		// is already spent, fail without invoking the operation again.
		if time.Until(u.deadline) <= 0 {
			e.settle(u, nil, fmt.Errorf("%w after %s", ErrTimeout, e.cfg.Timeout))
			return
		}

		value, err := e.attempt(u)
		if err == nil {
			e.logger.Debug("operation succeeded",
				"op_id", u.id,
				"attempts", u.retries+1)
			e.settle(u, value, nil)
			return
		}

		// Our own context ending is not the operation's fault: either the
		// absolute deadline expired or the queue was cleared.
		if ctxErr := u.ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				e.logger.Warn("operation deadline exhausted",
					"op_id", u.id,
					"attempts", u.retries+1)
				e.settle(u, nil, fmt.Errorf("%w after %s", ErrTimeout, e.cfg.Timeout))
			} else {
				e.settle(u, nil, ctxErr)
			}
			return
		}

		if !Retryable(err) {
			e.logger.Warn("terminal error, not retrying",
				"op_id", u.id,
				"error", err)
			e.settle(u, nil, err)
			return
		}

		if u.retries >= e.cfg.MaxRetries {
			e.logger.Warn("retry budget exhausted",
				"op_id", u.id,
				"retries", u.retries,
				"error", err)
			// The original triggering error propagates, not a wrapper.
			e.settle(u, nil, err)
			return
		}

		u.retries++
		delay := e.backoff(u.retries)
		if u.hooks != nil && u.hooks.OnRetry != nil {
			u.hooks.OnRetry(u.retries, err, delay)
		}
		e.logger.Info("retrying operation",
			"op_id", u.id,
			"attempt", u.retries,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-u.ctx.Done():
			timer.Stop()
			if errors.Is(u.ctx.Err(), context.DeadlineExceeded) {
				e.settle(u, nil, fmt.Errorf("%w after %s", ErrTimeout, e.cfg.Timeout))
			} else {
				e.settle(u, nil, u.ctx.Err())
			}
			return
		}
	}
}

// attempt races the operation against the unit's context, which carries the
// absolute deadline and the clear-queue cancellation.
func (e *Executor) attempt(u *unit) (any, error) {
	result := make(chan outcome, 1)
	go func() {
		value, err := u.op(u.ctx)
		result <- outcome{value: value, err: err}
	}()

	select {
	case r := <-result:
		return r.value, r.err
	case <-u.ctx.Done():
		// The operation is signalled through its context but not forcibly
		// aborted; whatever result it eventually produces is discarded.
		return nil, u.ctx.Err()
	}
}

// settle delivers the unit's final result exactly once and releases its
// timers via the context.
func (e *Executor) settle(u *unit, value any, err error) {
	e.mu.Lock()
	if u.settled {
		e.mu.Unlock()
		return
	}
	u.settled = true
	e.mu.Unlock()

	u.cancel()
	u.result <- outcome{value: value, err: err}
}

// backoff returns the delay before retry attempt k (k >= 1):
// BaseDelay * BackoffMultiplier^(k-1), clamped to MaxDelay.
func (e *Executor) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(e.cfg.BaseDelay) * math.Pow(e.cfg.BackoffMultiplier, float64(attempt-1)))
	if delay > e.cfg.MaxDelay {
		delay = e.cfg.MaxDelay
	}
	return delay
}

// ClearQueue rejects every queued and in-flight operation with ErrCancelled
// and cancels their contexts so pending backoff and deadline timers stop.
// This is best-effort: an operation already executing is signalled through
// its context but not forcibly aborted, and its eventual result is discarded.
func (e *Executor) ClearQueue() {
	e.mu.Lock()
	units := make([]*unit, 0, len(e.pending)+len(e.inflight))
	units = append(units, e.pending...)
	e.pending = nil
	for _, u := range e.inflight {
		units = append(units, u)
	}
	e.mu.Unlock()

	for _, u := range units {
		e.settle(u, nil, ErrCancelled)
	}

	e.logger.Info("queue cleared", "rejected", len(units))
}

// Stats reports the executor's current queue depth and in-flight count.
func (e *Executor) Stats() (pending, active int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending), e.active
}
