package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexuscore/agentrt/internal/diagnostics"
)

// Sink delivers a fired job or reminder's payload back into the ingress
// path as a synthesized inbound message. The scheduler never talks to a
// channel adapter or the turn driver directly.
type Sink func(ctx context.Context, payload Payload) error

const maxRunsPerJob = 100

// Scheduler runs Jobs and Reminders on a tick and reports execution history.
type Scheduler struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	reminders map[string]*Reminder
	runs      map[string][]Run
	sink      Sink
	bus       *diagnostics.Bus
	store     *Store
	now       func() time.Time
	tick      time.Duration

	stopCh  chan struct{}
	stopped chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source; intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides the poll interval (default 1s).
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithStore persists every fired job's run history to a SQLite-backed Store
// in addition to the in-process ring kept for GetJobRuns.
func WithStore(store *Store) Option {
	return func(s *Scheduler) {
		s.store = store
	}
}

// NewScheduler builds a Scheduler that delivers fired payloads through sink.
func NewScheduler(sink Sink, bus *diagnostics.Bus, opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:      make(map[string]*Job),
		reminders: make(map[string]*Reminder),
		runs:      make(map[string][]Run),
		sink:      sink,
		bus:       bus,
		now:       time.Now,
		tick:      time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob registers a new job and computes its first NextRunAt.
func (s *Scheduler) CreateJob(name string, schedule Schedule, payload Payload) (*Job, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	next, ok, err := schedule.Next(now.Add(-time.Nanosecond))
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:        uuid.NewString(),
		Name:      name,
		Enabled:   true,
		Schedule:  schedule,
		Payload:   payload,
		CreatedAt: now,
	}
	if ok {
		job.NextRunAt = next
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job, nil
}

// UpdateJob mutates an existing job's schedule/payload/enabled state and
// recomputes NextRunAt.
func (s *Scheduler) UpdateJob(id string, mutate func(j *Job)) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("cron: job %s not found", id)
	}
	mutate(job)
	if err := job.Schedule.Validate(); err != nil {
		return nil, err
	}
	next, ok2, err := job.Schedule.Next(s.now().Add(-time.Nanosecond))
	if err != nil {
		return nil, err
	}
	if ok2 {
		job.NextRunAt = next
	} else {
		job.NextRunAt = time.Time{}
	}
	return job, nil
}

// RemoveJob deletes a job by id.
func (s *Scheduler) RemoveJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	delete(s.runs, id)
	return true
}

// GetJob returns a job by id.
func (s *Scheduler) GetJob(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

// ListJobs returns every registered job.
func (s *Scheduler) ListJobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// RunJob fires a job immediately, out of band from its schedule, and
// records the execution.
func (s *Scheduler) RunJob(ctx context.Context, id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cron: job %s not found", id)
	}
	return s.fireJob(ctx, job)
}

// GetJobRuns returns up to limit most recent executions of a job, newest
// last.
func (s *Scheduler) GetJobRuns(id string, limit int) []Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := s.runs[id]
	if limit > 0 && len(runs) > limit {
		runs = runs[len(runs)-limit:]
	}
	return append([]Run(nil), runs...)
}

// SetReminder creates a one-shot reminder firing at fireAt.
func (s *Scheduler) SetReminder(channel, chatID, text string, fireAt time.Time) (*Reminder, error) {
	if !fireAt.After(s.now()) {
		return nil, fmt.Errorf("cron: reminder fireAt must be in the future")
	}
	r := &Reminder{
		ID:        uuid.NewString(),
		Channel:   channel,
		ChatID:    chatID,
		Text:      text,
		FireAt:    fireAt,
		CreatedAt: s.now(),
	}
	s.mu.Lock()
	s.reminders[r.ID] = r
	s.mu.Unlock()
	return r, nil
}

// ListReminders returns every tracked reminder, fired or not.
func (s *Scheduler) ListReminders() []*Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		out = append(out, r)
	}
	return out
}

// CancelReminder marks a pending reminder cancelled so it will not fire.
func (s *Scheduler) CancelReminder(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok || r.Fired || r.Cancelled {
		return false
	}
	r.Cancelled = true
	return true
}

// Stats summarizes scheduler state for diagnostics.
type Stats struct {
	JobCount      int
	EnabledJobs   int
	ReminderCount int
	PendingReminders int
}

// GetStats returns current counts.
func (s *Scheduler) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := Stats{JobCount: len(s.jobs), ReminderCount: len(s.reminders)}
	for _, j := range s.jobs {
		if j.Enabled {
			stats.EnabledJobs++
		}
	}
	for _, r := range s.reminders {
		if !r.Fired && !r.Cancelled {
			stats.PendingReminders++
		}
	}
	return stats
}

// Start begins the tick loop in the background until Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.stopped = make(chan struct{})
	stopCh := s.stopCh
	stopped := s.stopped
	s.mu.Unlock()

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				s.RunDue(ctx)
			}
		}
	}()
}

// Stop halts the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	stopped := s.stopped
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-stopped
}

// RunDue fires every job and reminder whose scheduled time has passed,
// ordered by (time, createdAt ascending) so simultaneous firings are
// deterministic. It returns how many fired.
func (s *Scheduler) RunDue(ctx context.Context) int {
	now := s.now()

	type due struct {
		at      time.Time
		created time.Time
		job     *Job
		rem     *Reminder
	}
	var items []due

	s.mu.Lock()
	for _, j := range s.jobs {
		if j.Enabled && !j.NextRunAt.IsZero() && !j.NextRunAt.After(now) {
			items = append(items, due{at: j.NextRunAt, created: j.CreatedAt, job: j})
		}
	}
	for _, r := range s.reminders {
		if !r.Fired && !r.Cancelled && !r.FireAt.After(now) {
			items = append(items, due{at: r.FireAt, created: r.CreatedAt, rem: r})
		}
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].at.Equal(items[j].at) {
			return items[i].at.Before(items[j].at)
		}
		return items[i].created.Before(items[j].created)
	})

	for _, it := range items {
		if it.job != nil {
			_ = s.fireJob(ctx, it.job)
		} else {
			s.fireReminder(ctx, it.rem)
		}
	}
	return len(items)
}

func (s *Scheduler) fireJob(ctx context.Context, job *Job) error {
	runErr := s.sink(ctx, job.Payload)

	now := s.now()
	run := Run{JobID: job.ID, RanAt: now, Succeeded: runErr == nil}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	s.mu.Lock()
	job.LastRunAt = now
	if runErr != nil {
		job.LastError = runErr.Error()
	} else {
		job.LastError = ""
	}
	// Monotonic advance: the next run is always strictly after this firing,
	// even if Next(now) would otherwise return the same instant again.
	next, ok, nextErr := job.Schedule.Next(now)
	if nextErr == nil && ok {
		job.NextRunAt = next
	} else {
		job.NextRunAt = time.Time{}
	}
	runs := append(s.runs[job.ID], run)
	if len(runs) > maxRunsPerJob {
		runs = runs[len(runs)-maxRunsPerJob:]
	}
	s.runs[job.ID] = runs
	store := s.store
	s.mu.Unlock()

	if store != nil {
		if err := store.RecordRun(run); err != nil {
			s.emit(diagnostics.EventError, job.ID, err)
		}
	}

	s.emit(diagnostics.EventRunAttempt, job.ID, runErr)
	return runErr
}

func (s *Scheduler) fireReminder(ctx context.Context, r *Reminder) {
	err := s.sink(ctx, Payload{Channel: r.Channel, ChatID: r.ChatID, Text: r.Text})
	s.mu.Lock()
	r.Fired = true
	s.mu.Unlock()
	s.emit(diagnostics.EventRunAttempt, r.ID, err)
}

func (s *Scheduler) emit(t diagnostics.EventType, id string, err error) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(diagnostics.EventInput{
		Type:    t,
		IsError: err != nil,
		Message: func() string {
			if err != nil {
				return err.Error()
			}
			return "ok"
		}(),
		Fields: map[string]any{"id": id},
	})
}
