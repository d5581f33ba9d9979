// Package scheduler runs periodic housekeeping jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultTickInterval = 60 * time.Second

// Job statuses recorded after each run.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Job is a named unit of periodic work.
type Job struct {
	Name string
	// Spec is a five-field cron expression or a descriptor such as
	// "@every 30s" or "@hourly".
	Spec string
	Run  func(ctx context.Context, now time.Time) error
}

// JobStatus reports the schedule and last outcome of a job.
type JobStatus struct {
	Name          string     `json:"name"`
	Spec          string     `json:"spec"`
	NextRunAt     time.Time  `json:"next_run_at"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

type entry struct {
	job      Job
	schedule cron.Schedule
	status   JobStatus
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval sets how often due jobs are checked.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithNow overrides the wall clock.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler checks registered jobs on a ticker and runs those that are due.
type Scheduler struct {
	parser cron.Parser
	logger *slog.Logger
	tick   time.Duration
	now    func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	jobsMu sync.Mutex
	jobs   map[string]*entry

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job names currently executing (dedup)
}

// NewScheduler creates a new Scheduler.
func NewScheduler(logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:   logger,
		tick:     defaultTickInterval,
		now:      time.Now,
		jobs:     make(map[string]*entry),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers job. Its first run is the next schedule time after now.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler job needs a name and a run function")
	}
	schedule, err := s.parser.Parse(job.Spec)
	if err != nil {
		return fmt.Errorf("parse cron expression %q: %w", job.Spec, err)
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("scheduler job %q already registered", job.Name)
	}
	s.jobs[job.Name] = &entry{
		job:      job,
		schedule: schedule,
		status: JobStatus{
			Name:      job.Name,
			Spec:      job.Spec,
			NextRunAt: schedule.Next(s.now().UTC()),
		},
	}
	return nil
}

// Jobs returns the status of every registered job, sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.loop(schedCtx, done)
	s.logger.Info("scheduler started", slog.Duration("tick", s.tick))
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunDue(ctx, s.now().UTC())
		}
	}
}

// RunDue runs every job whose next run time is at or before now and returns
// how many ran.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) int {
	s.jobsMu.Lock()
	var due []*entry
	for _, e := range s.jobs {
		if !e.status.NextRunAt.After(now) {
			due = append(due, e)
		}
	}
	s.jobsMu.Unlock()

	ran := 0
	for _, e := range due {
		if !s.tryAcquire(e.job.Name) {
			continue // already running (dedup)
		}
		s.runJob(ctx, e, now)
		s.releaseJob(e.job.Name)
		ran++
	}
	return ran
}

// runJob executes a job and updates its timestamps.
func (s *Scheduler) runJob(ctx context.Context, e *entry, now time.Time) {
	s.logger.Debug("running scheduled job", slog.String("job", e.job.Name))

	status := StatusSuccess
	if err := e.job.Run(ctx, now); err != nil {
		status = StatusError
		s.logger.Error("scheduled job failed",
			slog.String("job", e.job.Name),
			slog.String("error", err.Error()),
		)
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	e.status.LastRunAt = &now
	e.status.LastRunStatus = status
	e.status.NextRunAt = e.schedule.Next(now)
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

// releaseJob removes the job from the in-flight set.
func (s *Scheduler) releaseJob(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
