// Package scheduler converts time specs into recurring or one-shot
// reminder jobs, keeps at most one live timer per job, and persists
// jobs so they survive daemon restarts.
package scheduler

import "time"

// Job is one scheduled reminder.
type Job struct {
	// ID uniquely identifies the job (generated at creation).
	ID string `json:"id"`

	// Name is the human-readable spec the job was created from.
	Name string `json:"name"`

	// CronExpr is the standing schedule for recurring jobs. Empty for
	// one-shot jobs, whose single firing instant lives in NextRunAt.
	CronExpr string `json:"cronExpr,omitempty"`

	// Message is the reminder text delivered when the job fires.
	Message string `json:"message"`

	// Channel and Sender identify the session the firing routes to.
	Channel string `json:"channel"`
	Sender  string `json:"sender"`

	// OneShot jobs fire exactly once and are then discarded.
	OneShot bool `json:"oneShot"`

	CreatedAt time.Time  `json:"createdAt"`
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
}

// JobStorage is the persistence contract for jobs. Implementations
// rewrite the whole store on every mutation; there is no streaming
// writer.
type JobStorage interface {
	Save(job *Job) error
	Delete(id string) error
	LoadAll() ([]*Job, error)
}

// FireFunc is invoked when a job fires. It runs on the scheduler's
// goroutine; panics are recovered and logged.
type FireFunc func(job *Job)
