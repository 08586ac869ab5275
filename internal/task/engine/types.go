package engine

import (
	"context"
	"time"
)

// Config sizes the pool that runs fired timers and cron jobs.
type Config struct {
	Workers   int
	QueueSize int

	// DefaultTimeout applies when Task.Timeout is 0.
	DefaultTimeout time.Duration

	HistorySize int
}

// Task is one fired timer or cron run. Tasks run at most once: a signal
// broadcast is never replayed.
type Task struct {
	Name    string
	Timeout time.Duration

	// Exclusive tasks with the same Name never overlap. Enqueueing one while
	// another is queued or running returns ErrBusy.
	Exclusive bool

	// Deadline, when set, drops the task if no worker picks it up in time.
	Deadline time.Time

	Run func(ctx context.Context) error
}

type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomePanic   Outcome = "panic"
	OutcomeExpired Outcome = "expired"
	OutcomeDropped Outcome = "dropped"
	OutcomeBusy    Outcome = "busy"
)

// Run records one task execution. It is also the payload of the task.*
// bus events.
type Run struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Queued   time.Time     `json:"queued"`
	Wait     time.Duration `json:"wait"`
	Duration time.Duration `json:"duration"`
	Outcome  Outcome       `json:"outcome"`
	Error    string        `json:"error,omitempty"`
}

// Stats is a point-in-time view used by the health endpoint.
type Stats struct {
	Workers   int    `json:"workers"`
	Queued    int    `json:"queued"`
	Running   int    `json:"running"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Recent    []Run  `json:"-"`
}
