// Package scheduling runs background maintenance jobs on cron or interval
// schedules.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

// Job identifies a maintenance job.
type Job string

const (
	JobSearchCachePurge Job = "search_cache_purge"
	JobStageCheck       Job = "stage_check"
)

// jobTimeout bounds a single run.
const jobTimeout = time.Minute

// Task binds a job to a schedule: a cron expression ("*/5 * * * *",
// "@hourly") or a duration ("10m").
type Task struct {
	Name     string
	Schedule string
	Job      Job
}

// Scheduler runs registered jobs on their schedules.
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[Job]func(ctx context.Context) error
	logger  *slog.Logger
	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		jobs:   make(map[Job]func(ctx context.Context) error),
		logger: logger,
	}
}

// Register sets the handler of job.
func (s *Scheduler) Register(job Job, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job] = fn
}

// AddTask schedules a registered job.
func (s *Scheduler) AddTask(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, ok := s.jobs[task.Job]
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q for task %q", task.Job, task.Name)
	}
	schedule, err := parseSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for task %q: %w", task.Schedule, task.Name, err)
	}

	s.cron.Schedule(schedule, cron.FuncJob(func() { s.run(task.Name, fn) }))
	s.logger.Info("task scheduled", "name", task.Name, "schedule", task.Schedule, "job", string(task.Job))
	return nil
}

func (s *Scheduler) run(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Warn("scheduled task failed", "task", name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("scheduled task completed", "task", name, "duration", time.Since(start))
}

// Start begins running tasks until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
}

// Stop halts the scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

// parseSchedule accepts a cron expression, then a positive duration.
func parseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return constantDelay(dur), nil
}

// constantDelay fires at a fixed interval; unlike cron.Every it keeps
// sub-second precision.
type constantDelay time.Duration

func (d constantDelay) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

// Purger drops expired cache entries and reports how many it removed.
type Purger interface {
	PurgeExpired() int
}

// PurgeCache returns a job that purges c.
func PurgeCache(c Purger, logger *slog.Logger) func(ctx context.Context) error {
	return func(context.Context) error {
		if n := c.PurgeExpired(); n > 0 {
			logger.Debug("search cache purged", "entries", n)
		}
		return nil
	}
}

// CheckStages returns a job that fails when a deal classification has no
// configured stages.
func CheckStages(v domain.StageVocabulary) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		vocab := v.Vocabulary(ctx)
		var empty []domain.DealKind
		for _, kind := range domain.DealKinds {
			if len(vocab[kind]) == 0 {
				empty = append(empty, kind)
			}
		}
		if len(empty) > 0 {
			return fmt.Errorf("no stages configured for %v", empty)
		}
		return nil
	}
}
