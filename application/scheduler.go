package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"eodmarker/events"
	"eodmarker/lock"
	"eodmarker/models"
	"eodmarker/service"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// MarkMetrics receives the outcome of each mark attempt
type MarkMetrics interface {
	RecordMark(outcome string)
}

// SchedulerConfig holds the schedule and lock settings for the EOD job
type SchedulerConfig struct {
	Spec       string         // 5-field cron expression evaluated in Location
	Location   *time.Location // business timezone
	Lock       lock.Config
	InstanceID string
}

// Scheduler fires the EOD job on its cron schedule. Each firing runs under
// the cluster-wide lock; instances that lose the race skip the firing.
type Scheduler struct {
	cfg       SchedulerConfig
	schedule  cron.Schedule
	executor  *lock.Executor
	marker    service.EODMarker
	publisher service.EventPublisher
	metrics   MarkMetrics

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewScheduler creates a scheduler. The schedule is validated here.
func NewScheduler(
	cfg SchedulerConfig,
	executor *lock.Executor,
	marker service.EODMarker,
	publisher service.EventPublisher,
	metrics MarkMetrics,
) (*Scheduler, error) {
	if cfg.Location == nil {
		return nil, fmt.Errorf("scheduler location is required")
	}
	if err := cfg.Lock.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lock config: %w", err)
	}

	schedule, err := cronParser.Parse(cfg.Spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Spec, err)
	}

	return &Scheduler{
		cfg:       cfg,
		schedule:  schedule,
		executor:  executor,
		marker:    marker,
		publisher: publisher,
		metrics:   metrics,
	}, nil
}

// Start begins firing on schedule. Jobs inherit ctx's values but not its
// cancellation; only Stop cancels a running job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	logger := newCronLogger()
	c := cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		// Errors are logged and counted inside RunOnce
		_, _ = s.RunOnce(jobCtx)
	}))
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.running = true

	log.WithFields(log.Fields{
		"schedule": s.cfg.Spec,
		"timezone": s.cfg.Location.String(),
		"lock":     s.cfg.Lock.Name,
		"nextRun":  s.schedule.Next(time.Now().In(s.cfg.Location)).Format(time.RFC3339),
	}).Info("EOD scheduler started")
	return nil
}

// Stop stops firing and waits for a running job to finish, or for ctx to
// end, whichever comes first. A job still running when ctx ends is cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c, cancel := s.cron, s.cancel
	s.running = false
	s.mu.Unlock()

	done := c.Stop()
	defer cancel()

	select {
	case <-done.Done():
		log.Info("EOD scheduler stopped")
		return nil
	case <-ctx.Done():
		log.Warn("EOD scheduler stop timed out, cancelling running job")
		return ctx.Err()
	}
}

// RunOnce performs one firing: acquire the lock, mark today's business
// date, release. A skipped firing returns a nil error.
func (s *Scheduler) RunOnce(ctx context.Context) (lock.Result, error) {
	return s.run(ctx, s.marker.MarkCurrentBusinessDate)
}

// RunForDate is RunOnce for an explicit business date, used for backfills
func (s *Scheduler) RunForDate(ctx context.Context, date models.BusinessDate) (lock.Result, error) {
	return s.run(ctx, func(ctx context.Context) (models.BusinessDate, models.MarkOutcome, error) {
		outcome, err := s.marker.MarkBusinessDate(ctx, date)
		return date, outcome, err
	})
}

type markFunc func(ctx context.Context) (models.BusinessDate, models.MarkOutcome, error)

func (s *Scheduler) run(ctx context.Context, mark markFunc) (lock.Result, error) {
	var markOutcome models.MarkOutcome
	result, err := s.executor.Execute(ctx, s.cfg.Lock, func(ctx context.Context) (map[string]interface{}, error) {
		date, outcome, err := mark(ctx)
		markOutcome = outcome
		summary := map[string]interface{}{
			"businessDate": date.String(),
		}
		if outcome != "" {
			summary["outcome"] = string(outcome)
		}
		return summary, err
	})

	logger := log.WithFields(log.Fields{
		"lock":    s.cfg.Lock.Name,
		"outcome": result.Outcome,
	})

	switch result.Outcome {
	case lock.OutcomeSkipped:
		return result, nil
	case lock.OutcomeLockStateUnknown:
		logger.WithError(err).Error("EOD job not run: lock state unknown")
		s.publishCompletion(result)
		return result, err
	}

	if s.metrics != nil {
		if markOutcome != "" {
			s.metrics.RecordMark(string(markOutcome))
		} else {
			s.metrics.RecordMark("error")
		}
	}
	s.publishCompletion(result)

	if err != nil {
		logger.WithError(err).Error("EOD job failed")
		return result, err
	}

	logger.WithField("markOutcome", markOutcome).Info("EOD job completed")
	return result, nil
}

func (s *Scheduler) publishCompletion(result lock.Result) {
	if s.publisher == nil {
		return
	}

	event := events.EODJobCompletedEvent{
		LockName:   result.LockName,
		InstanceID: s.cfg.InstanceID,
		Outcome:    string(result.Outcome),
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}
	if result.Err != nil {
		event.Error = result.Err.Error()
	}

	if err := s.publisher.Publish(event); err != nil {
		log.WithError(err).Warn("Failed to publish job completion event")
	}
}

// NextRuns returns the next n firing instants after from, in the business timezone
func (s *Scheduler) NextRuns(from time.Time, n int) []time.Time {
	runs := make([]time.Time, 0, n)
	t := from.In(s.cfg.Location)
	for i := 0; i < n; i++ {
		t = s.schedule.Next(t)
		if t.IsZero() {
			break
		}
		runs = append(runs, t)
	}
	return runs
}

// IsRunning reports whether Start has been called without a matching Stop
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
