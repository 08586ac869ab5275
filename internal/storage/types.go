package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

// Config configures storage.
//
// Driver values: "sqlite" (Path), "postgres" (DSN), "memory".
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

const (
	StageStarted   = "started"
	StageCompleted = "completed"
	StageRejected  = "rejected"
)

// Setting keys and their first-run values.
const (
	KeySignalsEnabled = "signals_enabled"
	KeyWorkingHours   = "working_hours"
	KeySignalsRange   = "signals_range"

	DefaultWorkingHours = "09:00-12:00"
	DefaultSignalsRange = "6-10"
)

const defaultLanguage = "ru"

// Application is a user's request to receive signals.
type Application struct {
	UserID    int64
	PocketID  string
	Status    string
	Language  string
	FirstName string
	LastName  string
	Username  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Defaults are the values EnsureDefaults inserts when a key is absent.
type Defaults struct {
	SignalsEnabled bool
	WorkingHours   string
	SignalsRange   string
}

func StandardDefaults() Defaults {
	return Defaults{SignalsEnabled: true, WorkingHours: DefaultWorkingHours, SignalsRange: DefaultSignalsRange}
}

type Store interface {
	// EnsureDefaults inserts missing settings and never overwrites existing ones.
	EnsureDefaults(ctx context.Context, d Defaults) error

	GlobalSignals(ctx context.Context) (bool, error)
	SetGlobalSignals(ctx context.Context, enabled bool) error
	WorkingHours(ctx context.Context) (string, error)
	SetWorkingHours(ctx context.Context, hours string) error
	SignalRange(ctx context.Context) (string, error)
	SetSignalRange(ctx context.Context, value string) error

	// ListApplications returns applications ordered by user id; an empty
	// status lists all of them.
	ListApplications(ctx context.Context, status string) ([]Application, error)
	GetApplication(ctx context.Context, userID int64) (Application, error)
	// UpsertApplication keeps CreatedAt of an existing row and returns the stored record.
	UpsertApplication(ctx context.Context, app Application) (Application, error)
	SetApplicationStatus(ctx context.Context, userID int64, status string) error
	DeleteApplication(ctx context.Context, userID int64) error

	SetUserStage(ctx context.Context, userID int64, stage string) error
	GetUserStage(ctx context.Context, userID int64) (string, error)
	ListUserStages(ctx context.Context) (map[int64]string, error)

	// PersonalSignals reports the stored preference and whether one exists.
	PersonalSignals(ctx context.Context, userID int64) (enabled bool, found bool, err error)
	SetPersonalSignals(ctx context.Context, userID int64, enabled bool) error
	ListPersonalSignals(ctx context.Context) (map[int64]bool, error)

	// ListSignalRecipientIDs returns users that are approved or in
	// completedStage and have not switched personal signals off.
	ListSignalRecipientIDs(ctx context.Context, completedStage string) ([]int64, error)

	Close() error
}

func boolToSetting(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func normalizeApplication(app Application, existing *Application, now time.Time) Application {
	if app.Status == "" {
		app.Status = StatusPending
	}
	if app.Language == "" {
		app.Language = defaultLanguage
	}
	app.CreatedAt = now
	if existing != nil {
		app.CreatedAt = existing.CreatedAt
	}
	app.UpdatedAt = now
	return app
}
