package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"eodmarker/models"
)

// Outcome is the result of one Execute call
type Outcome string

const (
	OutcomeSkipped          Outcome = "skipped"
	OutcomeSucceeded        Outcome = "succeeded"
	OutcomeFailed           Outcome = "failed"
	OutcomeLockStateUnknown Outcome = "lock_state_unknown"
)

// Lock attempt results reported to Metrics
const (
	AttemptAcquired    = "acquired"
	AttemptUnavailable = "unavailable"
	AttemptUnknown     = "unknown"
)

// Task is the work protected by a lock. The summary is stored with the run.
type Task func(ctx context.Context) (summary map[string]interface{}, err error)

// Result describes what Execute did
type Result struct {
	Outcome    Outcome
	LockName   string
	Owner      string
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    map[string]interface{}
	Err        error
}

// RunRecorder receives every run that obtained the lock
type RunRecorder interface {
	RecordRun(ctx context.Context, run *models.JobRun) error
}

// Metrics receives lock attempts and job run outcomes
type Metrics interface {
	RecordLockAttempt(lockName, result string)
	RecordJobRun(lockName, outcome string, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordLockAttempt(string, string) {}

func (noopMetrics) RecordJobRun(string, string, time.Duration) {}

// Executor runs tasks under a named lock
type Executor struct {
	provider       Provider
	recorders      []RunRecorder
	metrics        Metrics
	acquireTimeout time.Duration
	releaseTimeout time.Duration
	now            func() time.Time
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithRecorder adds a recorder for executed runs
func WithRecorder(r RunRecorder) ExecutorOption {
	return func(e *Executor) {
		e.recorders = append(e.recorders, r)
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithAcquireTimeout bounds how long a single acquisition may take
func WithAcquireTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.acquireTimeout = d
	}
}

// WithExecutorClock replaces the time source used for run timestamps
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor creates an executor over the given provider
func NewExecutor(provider Provider, opts ...ExecutorOption) *Executor {
	e := &Executor{
		provider:       provider,
		metrics:        noopMetrics{},
		acquireTimeout: 10 * time.Second,
		releaseTimeout: 10 * time.Second,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute acquires the lock, runs the task, records the run and releases
// the lock. The returned error is nil when the lock was held elsewhere,
// the task's error when it failed, and an ErrLockStateUnknown error when
// the lock medium failed. The task runs with a deadline of LockAtMostFor
// since the claim is not guaranteed past it.
func (e *Executor) Execute(ctx context.Context, cfg Config, task Task) (Result, error) {
	result := Result{LockName: cfg.Name}
	logger := log.WithField("lock", cfg.Name)

	acquireCtx, cancel := context.WithTimeout(ctx, e.acquireTimeout)
	handle, err := e.provider.TryAcquire(acquireCtx, cfg)
	cancel()

	switch {
	case errors.Is(err, ErrLockUnavailable):
		e.metrics.RecordLockAttempt(cfg.Name, AttemptUnavailable)
		logger.Debug("Lock held by another instance, skipping")
		result.Outcome = OutcomeSkipped
		return result, nil
	case err != nil:
		if !errors.Is(err, ErrLockStateUnknown) {
			err = fmt.Errorf("%w: %w", ErrLockStateUnknown, err)
		}
		e.metrics.RecordLockAttempt(cfg.Name, AttemptUnknown)
		logger.WithError(err).Error("Cannot determine lock state, not running job")
		result.Outcome = OutcomeLockStateUnknown
		result.Err = err
		return result, err
	}

	e.metrics.RecordLockAttempt(cfg.Name, AttemptAcquired)
	result.Owner = handle.Owner
	logger = logger.WithField("owner", handle.Owner)
	logger.Info("Lock acquired, running job")

	result.StartedAt = e.now()
	taskCtx, cancelTask := context.WithTimeout(ctx, cfg.LockAtMostFor)
	summary, taskErr := e.runTask(taskCtx, task)
	cancelTask()
	result.FinishedAt = e.now()
	result.Summary = summary

	if taskErr != nil {
		result.Outcome = OutcomeFailed
		result.Err = taskErr
		logger.WithError(taskErr).Error("Job failed")
	} else {
		result.Outcome = OutcomeSucceeded
		logger.WithField("duration", result.FinishedAt.Sub(result.StartedAt)).Info("Job succeeded")
	}
	e.metrics.RecordJobRun(cfg.Name, string(result.Outcome), result.FinishedAt.Sub(result.StartedAt))

	// Recording and release must outlive a cancelled job context
	cleanupCtx, cancelCleanup := context.WithTimeout(context.WithoutCancel(ctx), e.releaseTimeout)
	defer cancelCleanup()

	e.record(cleanupCtx, result)

	if err := handle.Release(cleanupCtx); err != nil {
		// The claim still expires at LockAtMostFor
		logger.WithError(err).Warn("Failed to release lock")
	}

	return result, taskErr
}

// runTask converts a panic in the task into a failure
func (e *Executor) runTask(ctx context.Context, task Task) (summary map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return task(ctx)
}

func (e *Executor) record(ctx context.Context, result Result) {
	if len(e.recorders) == 0 {
		return
	}

	run := &models.JobRun{
		LockName:         result.LockName,
		LockedBy:         result.Owner,
		StartedAt:        result.StartedAt,
		FinishedAt:       result.FinishedAt,
		Outcome:          models.JobRunSucceeded,
		ExecutionSummary: result.Summary,
	}
	if result.Err != nil {
		run.Outcome = models.JobRunFailed
		msg := result.Err.Error()
		run.ErrorMessage = &msg
	}

	for _, r := range e.recorders {
		if err := r.RecordRun(ctx, run); err != nil {
			log.WithError(err).WithField("lock", result.LockName).Warn("Failed to record job run")
		}
	}
}
