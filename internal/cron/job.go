package cron

import "time"

// Payload is what a fired job or reminder synthesizes into a MessageContext.
type Payload struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Text    string `json:"text"`
}

// Job is a recurring or one-shot scheduled task.
type Job struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	Schedule  Schedule  `json:"schedule"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	NextRunAt time.Time `json:"next_run_at,omitempty"`
	LastRunAt time.Time `json:"last_run_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Run is one recorded execution of a Job.
type Run struct {
	JobID     string    `json:"job_id"`
	RanAt     time.Time `json:"ran_at"`
	Succeeded bool      `json:"succeeded"`
	Error     string    `json:"error,omitempty"`
}

// Reminder is a first-class one-shot notification, distinct from a Job so
// the common "remind me at X" case doesn't need a caller to hand-build a
// KindAt schedule.
type Reminder struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	ChatID    string    `json:"chat_id"`
	Text      string    `json:"text"`
	FireAt    time.Time `json:"fire_at"`
	CreatedAt time.Time `json:"created_at"`
	Fired     bool      `json:"fired"`
	Cancelled bool      `json:"cancelled"`
}
