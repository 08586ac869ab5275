package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"signalbot/internal/task/engine"
	logx "signalbot/pkg/logx"
)

// Config controls trigger calculation.
type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Kyiv"
}

// Executor runs fired tasks. *engine.Service satisfies it.
type Executor interface {
	Enqueue(t engine.Task) error
}

type scheduleDef struct {
	id      string
	name    string
	spec    string
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID
}

type onceDef struct {
	at      time.Time
	timeout time.Duration
	job     func(ctx context.Context) error
	ver     uint64
	timer   *time.Timer
}

type Service struct {
	mu sync.Mutex

	log  logx.Logger
	cfg  Config
	loc  *time.Location
	exec Executor

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// Enqueue failure warnings, throttled per schedule name.
	enqMu   sync.Mutex
	enqWarn map[string]*rate.Sometimes

	// One-time timers. Definitions survive Stop so Start can re-arm them.
	tmu     sync.Mutex
	once    map[string]*onceDef
	onceSeq uint64
}

type ScheduleInfo struct {
	ID      string
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type OnceInfo struct {
	Name string
	At   time.Time
}

type Snapshot struct {
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
	Once      []OnceInfo
}
