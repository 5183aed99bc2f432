package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/manru/manru-be/internal/metrics"
	"github.com/manru/manru-be/internal/services"
)

// JobFunc is the work of one scheduled job.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	schedule cron.Schedule
	run      JobFunc
	nextRun  time.Time
}

// Scheduler runs maintenance jobs on cron schedules.
type Scheduler struct {
	mu       sync.Mutex
	jobs     []*job
	interval time.Duration
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a new scheduler that checks for due jobs every
// interval. A non-positive interval means one minute.
func NewScheduler(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Add registers a job under a standard five-field cron expression.
func (s *Scheduler) Add(name, spec string, run JobFunc) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid cron expression for job %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{
		name:     name,
		schedule: schedule,
		run:      run,
		nextRun:  schedule.Next(s.now()),
	})
	log.Debug().Str("job", name).Str("schedule", spec).Msg("Scheduler: job registered")
	return nil
}

// Run starts the scheduler's ticking loop. It returns when ctx is cancelled
// or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()
	log.Info().Int("jobs", n).Msg("Starting background scheduler...")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping background scheduler.")
			return nil
		case <-s.done:
			log.Info().Msg("Stopping background scheduler.")
			return nil
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// Stop halts the scheduler. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// runDue executes every job whose next run time has passed and advances its
// schedule.
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if !now.Before(j.nextRun) {
			due = append(due, j)
			j.nextRun = j.schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		start := time.Now()
		if err := j.run(ctx); err != nil {
			log.Error().Err(err).Str("job", j.name).Msg("Scheduler: job failed")
			continue
		}
		log.Debug().Str("job", j.name).Dur("took", time.Since(start)).Msg("Scheduler: job finished")
	}
}

// PruneEventsJob deletes account events older than retention.
func PruneEventsJob(events services.EventServiceProvider, retention time.Duration) JobFunc {
	return func(ctx context.Context) error {
		removed, err := events.PruneEvents(ctx, retention)
		if err != nil {
			return err
		}
		metrics.EventsPruned.Add(float64(removed))
		if removed > 0 {
			log.Info().Int64("removed", removed).Dur("retention", retention).Msg("Pruned old account events")
		}
		return nil
	}
}
