package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is a process-local Store. Safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	settings map[string]string
	apps     map[int64]Application
	stages   map[int64]string
	personal map[int64]bool
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		settings: map[string]string{},
		apps:     map[int64]Application{},
		stages:   map[int64]string{},
		personal: map[int64]bool{},
		now:      time.Now,
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) EnsureDefaults(_ context.Context, d Defaults) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range map[string]string{
		KeySignalsEnabled: boolToSetting(d.SignalsEnabled),
		KeyWorkingHours:   d.WorkingHours,
		KeySignalsRange:   d.SignalsRange,
	} {
		if _, ok := m.settings[k]; !ok {
			m.settings[k] = v
		}
	}
	return nil
}

func (m *Memory) setting(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings[key]
}

func (m *Memory) setSetting(key, value string) {
	m.mu.Lock()
	m.settings[key] = value
	m.mu.Unlock()
}

func (m *Memory) GlobalSignals(context.Context) (bool, error) {
	return strings.TrimSpace(m.setting(KeySignalsEnabled)) == "1", nil
}

func (m *Memory) SetGlobalSignals(_ context.Context, enabled bool) error {
	m.setSetting(KeySignalsEnabled, boolToSetting(enabled))
	return nil
}

func (m *Memory) WorkingHours(context.Context) (string, error) {
	return m.setting(KeyWorkingHours), nil
}

func (m *Memory) SetWorkingHours(_ context.Context, hours string) error {
	m.setSetting(KeyWorkingHours, hours)
	return nil
}

func (m *Memory) SignalRange(context.Context) (string, error) {
	return m.setting(KeySignalsRange), nil
}

func (m *Memory) SetSignalRange(_ context.Context, value string) error {
	m.setSetting(KeySignalsRange, value)
	return nil
}

func (m *Memory) ListApplications(_ context.Context, status string) ([]Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Application
	for _, app := range m.apps {
		if status == "" || app.Status == status {
			out = append(out, app)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *Memory) GetApplication(_ context.Context, userID int64) (Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[userID]
	if !ok {
		return Application{}, ErrNotFound
	}
	return app, nil
}

func (m *Memory) UpsertApplication(_ context.Context, app Application) (Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var existing *Application
	if cur, ok := m.apps[app.UserID]; ok {
		existing = &cur
	}
	app = normalizeApplication(app, existing, m.now().UTC().Truncate(time.Second))
	m.apps[app.UserID] = app
	return app, nil
}

func (m *Memory) SetApplicationStatus(_ context.Context, userID int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[userID]
	if !ok {
		return ErrNotFound
	}
	app.Status = status
	app.UpdatedAt = m.now().UTC().Truncate(time.Second)
	m.apps[userID] = app
	return nil
}

func (m *Memory) DeleteApplication(_ context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.apps, userID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) SetUserStage(_ context.Context, userID int64, stage string) error {
	m.mu.Lock()
	m.stages[userID] = stage
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetUserStage(_ context.Context, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stage, ok := m.stages[userID]
	if !ok {
		return "", ErrNotFound
	}
	return stage, nil
}

func (m *Memory) ListUserStages(context.Context) (map[int64]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]string, len(m.stages))
	for k, v := range m.stages {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) PersonalSignals(_ context.Context, userID int64) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.personal[userID]
	return v, ok, nil
}

func (m *Memory) SetPersonalSignals(_ context.Context, userID int64, enabled bool) error {
	m.mu.Lock()
	m.personal[userID] = enabled
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListPersonalSignals(context.Context) (map[int64]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]bool, len(m.personal))
	for k, v := range m.personal {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) ListSignalRecipientIDs(_ context.Context, completedStage string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eligible := map[int64]struct{}{}
	for id, app := range m.apps {
		if app.Status == StatusApproved {
			eligible[id] = struct{}{}
		}
	}
	for id, stage := range m.stages {
		if stage == completedStage {
			eligible[id] = struct{}{}
		}
	}
	out := make([]int64, 0, len(eligible))
	for id := range eligible {
		if enabled, ok := m.personal[id]; ok && !enabled {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
