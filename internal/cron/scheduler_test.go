package cron

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu       sync.Mutex
	payloads []Payload
	fail     bool
}

func (r *recordingSink) sink(ctx context.Context, p Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
	if r.fail {
		return fmt.Errorf("sink failure")
	}
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func TestReminderFiresExactlyOnce(t *testing.T) {
	rs := &recordingSink{}
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sched := NewScheduler(rs.sink, nil, WithClock(func() time.Time { return clock }))

	r, err := sched.SetReminder("console", "chat-1", "wake up", clock.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Not due yet.
	fired := sched.RunDue(context.Background())
	if fired != 0 {
		t.Fatalf("expected no reminders due yet, got %d", fired)
	}

	clock = clock.Add(2 * time.Minute)
	fired = sched.RunDue(context.Background())
	if fired != 1 {
		t.Fatalf("expected exactly one reminder to fire, got %d", fired)
	}
	if rs.count() != 1 {
		t.Fatalf("expected sink invoked exactly once, got %d", rs.count())
	}

	// Running due again must not refire it.
	fired = sched.RunDue(context.Background())
	if fired != 0 {
		t.Fatalf("expected reminder not to refire, got %d additional fires", fired)
	}
	if rs.count() != 1 {
		t.Fatalf("expected sink still invoked exactly once after second RunDue, got %d", rs.count())
	}

	got, ok := findReminder(sched, r.ID)
	if !ok || !got.Fired {
		t.Fatalf("expected reminder marked fired, got %+v", got)
	}
}

func findReminder(s *Scheduler, id string) (*Reminder, bool) {
	for _, r := range s.ListReminders() {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

func TestCancelledReminderNeverFires(t *testing.T) {
	rs := &recordingSink{}
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sched := NewScheduler(rs.sink, nil, WithClock(func() time.Time { return clock }))

	r, _ := sched.SetReminder("console", "chat-1", "wake up", clock.Add(time.Minute))
	if !sched.CancelReminder(r.ID) {
		t.Fatalf("expected cancellation to succeed")
	}

	clock = clock.Add(2 * time.Minute)
	fired := sched.RunDue(context.Background())
	if fired != 0 {
		t.Fatalf("expected cancelled reminder not to fire, got %d", fired)
	}
}

func TestJobNextRunAtAdvancesMonotonicallyAfterFiring(t *testing.T) {
	rs := &recordingSink{}
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sched := NewScheduler(rs.sink, nil, WithClock(func() time.Time { return clock }))

	job, err := sched.CreateJob("heartbeat", Every(time.Minute, clock), Payload{Channel: "console", ChatID: "c", Text: "tick"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firstNext := job.NextRunAt

	clock = clock.Add(time.Minute)
	sched.RunDue(context.Background())

	updated, ok := sched.GetJob(job.ID)
	if !ok {
		t.Fatalf("expected job to still exist")
	}
	if !updated.NextRunAt.After(firstNext) {
		t.Fatalf("expected NextRunAt to advance past %v, got %v", firstNext, updated.NextRunAt)
	}
	if !updated.NextRunAt.After(clock) {
		t.Fatalf("expected NextRunAt strictly after the firing instant %v, got %v", clock, updated.NextRunAt)
	}
}

func TestSimultaneousDueFireInCreationOrder(t *testing.T) {
	rs := &recordingSink{}
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sched := NewScheduler(rs.sink, nil, WithClock(func() time.Time { return clock }))

	first, _ := sched.CreateJob("first", At(clock.Add(time.Minute)), Payload{Text: "one"})
	time.Sleep(time.Millisecond) // ensure distinct CreatedAt ordering is still respected via explicit field below
	second, _ := sched.CreateJob("second", At(clock.Add(time.Minute)), Payload{Text: "two"})

	// Both jobs come due at the same instant; pin distinct CreatedAt values
	// so the creation-order tie-break is deterministic.
	first.CreatedAt = clock
	second.CreatedAt = clock.Add(time.Second)

	clock = clock.Add(2 * time.Minute)
	sched.RunDue(context.Background())

	if rs.count() != 2 {
		t.Fatalf("expected both jobs to fire, got %d", rs.count())
	}
	if rs.payloads[0].Text != "one" || rs.payloads[1].Text != "two" {
		t.Fatalf("expected firing order by ascending CreatedAt, got %v", rs.payloads)
	}
}

func TestRunJobRecordsExecutionHistory(t *testing.T) {
	rs := &recordingSink{}
	sched := NewScheduler(rs.sink, nil)

	job, err := sched.CreateJob("manual", Cron("*/5 * * * *", ""), Payload{Text: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sched.RunJob(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	runs := sched.GetJobRuns(job.ID, 10)
	if len(runs) != 1 || !runs[0].Succeeded {
		t.Fatalf("expected one successful run recorded, got %+v", runs)
	}
}

func TestRunJobRecordsFailureWithoutStoppingSchedule(t *testing.T) {
	rs := &recordingSink{fail: true}
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sched := NewScheduler(rs.sink, nil, WithClock(func() time.Time { return clock }))

	job, _ := sched.CreateJob("flaky", Every(time.Minute, clock), Payload{Text: "x"})

	clock = clock.Add(time.Minute)
	sched.RunDue(context.Background())

	updated, _ := sched.GetJob(job.ID)
	if updated.LastError == "" {
		t.Fatalf("expected LastError to be recorded")
	}
	if updated.NextRunAt.IsZero() {
		t.Fatalf("expected schedule to keep advancing despite sink failure")
	}

	runs := sched.GetJobRuns(job.ID, 10)
	if len(runs) != 1 || runs[0].Succeeded {
		t.Fatalf("expected one failed run recorded, got %+v", runs)
	}
}

func TestRemoveJobStopsFutureFirings(t *testing.T) {
	rs := &recordingSink{}
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sched := NewScheduler(rs.sink, nil, WithClock(func() time.Time { return clock }))

	job, _ := sched.CreateJob("temp", Every(time.Minute, clock), Payload{Text: "x"})
	if !sched.RemoveJob(job.ID) {
		t.Fatalf("expected removal to succeed")
	}

	clock = clock.Add(2 * time.Minute)
	fired := sched.RunDue(context.Background())
	if fired != 0 {
		t.Fatalf("expected no jobs to fire after removal, got %d", fired)
	}
}

func TestGetStatsReflectsEnabledAndPendingCounts(t *testing.T) {
	rs := &recordingSink{}
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sched := NewScheduler(rs.sink, nil, WithClock(func() time.Time { return clock }))

	job, _ := sched.CreateJob("j", Every(time.Minute, clock), Payload{Text: "x"})
	sched.UpdateJob(job.ID, func(j *Job) { j.Enabled = false })
	sched.SetReminder("console", "c", "hi", clock.Add(time.Hour))

	stats := sched.GetStats()
	if stats.JobCount != 1 || stats.EnabledJobs != 0 {
		t.Fatalf("expected 1 job, 0 enabled, got %+v", stats)
	}
	if stats.ReminderCount != 1 || stats.PendingReminders != 1 {
		t.Fatalf("expected 1 pending reminder, got %+v", stats)
	}
}

func TestSetReminderRejectsPastTime(t *testing.T) {
	rs := &recordingSink{}
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sched := NewScheduler(rs.sink, nil, WithClock(func() time.Time { return clock }))

	if _, err := sched.SetReminder("console", "c", "late", clock.Add(-time.Minute)); err == nil {
		t.Fatalf("expected error for a reminder scheduled in the past")
	}
}

func TestStartStopDrivesTicksInBackground(t *testing.T) {
	rs := &recordingSink{}
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	sched := NewScheduler(rs.sink, nil,
		WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return clock
		}),
		WithTickInterval(10*time.Millisecond),
	)

	sched.SetReminder("console", "c", "go", clock.Add(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	defer sched.Stop()

	mu.Lock()
	clock = clock.Add(time.Minute)
	mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rs.count() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if rs.count() == 0 {
		t.Fatalf("expected background tick loop to fire the due reminder")
	}
}
