package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eodmarker/models"
)

// MockProvider is a mock implementation of Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) TryAcquire(ctx context.Context, cfg Config) (*Handle, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Handle), args.Error(1)
}

// MockRunRecorder is a mock implementation of RunRecorder
type MockRunRecorder struct {
	mock.Mock
}

func (m *MockRunRecorder) RecordRun(ctx context.Context, run *models.JobRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

// recordingMetrics keeps what the executor reported
type recordingMetrics struct {
	mu       sync.Mutex
	attempts []string
	runs     []string
}

func (m *recordingMetrics) RecordLockAttempt(lockName, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, result)
}

func (m *recordingMetrics) RecordJobRun(lockName, outcome string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, outcome)
}

func TestExecutor_Execute(t *testing.T) {
	taskErr := errors.New("marking failed")

	tests := []struct {
		name            string
		preHeld         bool
		task            Task
		expectedOutcome Outcome
		expectTaskRun   bool
		expectErr       error
		expectRecord    models.JobRunOutcome
		expectAttempt   string
	}{
		{
			name: "success",
			task: func(ctx context.Context) (map[string]interface{}, error) {
				return map[string]interface{}{"outcome": "created"}, nil
			},
			expectedOutcome: OutcomeSucceeded,
			expectTaskRun:   true,
			expectRecord:    models.JobRunSucceeded,
			expectAttempt:   AttemptAcquired,
		},
		{
			name: "task failure is returned and recorded",
			task: func(ctx context.Context) (map[string]interface{}, error) {
				return nil, taskErr
			},
			expectedOutcome: OutcomeFailed,
			expectTaskRun:   true,
			expectErr:       taskErr,
			expectRecord:    models.JobRunFailed,
			expectAttempt:   AttemptAcquired,
		},
		{
			name:    "held elsewhere is skipped silently",
			preHeld: true,
			task: func(ctx context.Context) (map[string]interface{}, error) {
				return nil, nil
			},
			expectedOutcome: OutcomeSkipped,
			expectAttempt:   AttemptUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			provider := NewMemoryProvider("node", WithMemoryClock(clock.Now))
			if tt.preHeld {
				_, err := provider.TryAcquire(ctx, eodLock)
				require.NoError(t, err)
			}

			recorder := new(MockRunRecorder)
			if tt.expectTaskRun {
				recorder.On("RecordRun", mock.Anything, mock.MatchedBy(func(run *models.JobRun) bool {
					return run.LockName == eodLock.Name && run.Outcome == tt.expectRecord
				})).Return(nil)
			}
			metrics := &recordingMetrics{}

			ran := false
			task := func(ctx context.Context) (map[string]interface{}, error) {
				ran = true
				return tt.task(ctx)
			}

			executor := NewExecutor(provider, WithRecorder(recorder), WithMetrics(metrics))
			result, err := executor.Execute(ctx, eodLock, task)

			assert.Equal(t, tt.expectedOutcome, result.Outcome)
			assert.Equal(t, tt.expectTaskRun, ran)
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
				assert.ErrorIs(t, result.Err, tt.expectErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, []string{tt.expectAttempt}, metrics.attempts)
			if tt.expectTaskRun {
				assert.Equal(t, []string{string(tt.expectedOutcome)}, metrics.runs)
				assert.NotEmpty(t, result.Owner)
			} else {
				assert.Empty(t, metrics.runs)
				recorder.AssertNotCalled(t, "RecordRun", mock.Anything, mock.Anything)
			}
			recorder.AssertExpectations(t)
		})
	}
}

func TestExecutor_ReleasesRespectingMinHold(t *testing.T) {
	ctx := context.Background()

	for _, failing := range []bool{false, true} {
		clock := newFakeClock()
		provider := NewMemoryProvider("node", WithMemoryClock(clock.Now))
		executor := NewExecutor(provider)

		_, _ = executor.Execute(ctx, eodLock, func(ctx context.Context) (map[string]interface{}, error) {
			if failing {
				return nil, errors.New("boom")
			}
			return nil, nil
		})

		record, ok := provider.Record(eodLock.Name)
		require.True(t, ok)
		assert.Equal(t, record.LockedAt.Add(eodLock.LockAtLeastFor), record.LockUntil, "failing=%v", failing)

		_, err := provider.TryAcquire(ctx, eodLock)
		assert.ErrorIs(t, err, ErrLockUnavailable)

		clock.Advance(eodLock.LockAtLeastFor)
		_, err = provider.TryAcquire(ctx, eodLock)
		assert.NoError(t, err)
	}
}

func TestExecutor_LockStateUnknown(t *testing.T) {
	ctx := context.Background()
	provider := new(MockProvider)
	provider.On("TryAcquire", mock.Anything, eodLock).Return(nil, errors.New("connection refused"))
	metrics := &recordingMetrics{}

	ran := false
	executor := NewExecutor(provider, WithMetrics(metrics))
	result, err := executor.Execute(ctx, eodLock, func(ctx context.Context) (map[string]interface{}, error) {
		ran = true
		return nil, nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockStateUnknown)
	assert.NotErrorIs(t, err, ErrLockUnavailable)
	assert.Equal(t, OutcomeLockStateUnknown, result.Outcome)
	assert.False(t, ran)
	assert.Equal(t, []string{AttemptUnknown}, metrics.attempts)
	provider.AssertExpectations(t)
}

func TestExecutor_PanicIsFailure(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider("node")
	executor := NewExecutor(provider)

	result, err := executor.Execute(ctx, eodLock, func(ctx context.Context) (map[string]interface{}, error) {
		panic("nil map")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil map")
	assert.Equal(t, OutcomeFailed, result.Outcome)
}

func TestExecutor_RecorderFailureDoesNotFailRun(t *testing.T) {
	ctx := context.Background()
	recorder := new(MockRunRecorder)
	recorder.On("RecordRun", mock.Anything, mock.Anything).Return(errors.New("db down"))

	executor := NewExecutor(NewMemoryProvider("node"), WithRecorder(recorder))
	result, err := executor.Execute(ctx, eodLock, func(ctx context.Context) (map[string]interface{}, error) {
		return nil, nil
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, result.Outcome)
	recorder.AssertExpectations(t)
}

func TestExecutor_TaskDeadlineIsMaxHold(t *testing.T) {
	ctx := context.Background()
	executor := NewExecutor(NewMemoryProvider("node"))

	var deadline time.Time
	var hasDeadline bool
	before := time.Now()
	_, err := executor.Execute(ctx, eodLock, func(ctx context.Context) (map[string]interface{}, error) {
		deadline, hasDeadline = ctx.Deadline()
		return nil, nil
	})

	require.NoError(t, err)
	require.True(t, hasDeadline)
	assert.WithinDuration(t, before.Add(eodLock.LockAtMostFor), deadline, 5*time.Second)
}
