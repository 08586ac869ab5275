package signal

import (
	"context"
	"fmt"
	"sort"

	"signalbot/internal/storage"
	logx "signalbot/pkg/logx"
)

// Resolver computes who receives a broadcast.
type Resolver struct {
	store  storage.Store
	admins func() []int64
	log    logx.Logger
}

// NewResolver reads the admin list through admins on every call so config
// reloads apply without a restart.
func NewResolver(store storage.Store, admins func() []int64, log logx.Logger) *Resolver {
	if admins == nil {
		admins = func() []int64 { return nil }
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{store: store, admins: admins, log: log}
}

// Resolve returns the sorted recipient ids: eligible users with signals on,
// plus every admin whose own preference is on. Empty when the global toggle
// is off.
func (r *Resolver) Resolve(ctx context.Context) ([]int64, error) {
	enabled, err := r.store.GlobalSignals(ctx)
	if err != nil {
		return nil, fmt.Errorf("read global toggle: %w", err)
	}
	if !enabled {
		return []int64{}, nil
	}

	ids, err := r.store.ListSignalRecipientIDs(ctx, storage.StageCompleted)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	admins := map[int64]bool{}
	for _, id := range r.admins() {
		admins[id] = true
	}

	seen := map[int64]bool{}
	out := make([]int64, 0, len(ids)+len(admins))
	add := func(id int64) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range ids {
		if admins[id] {
			continue
		}
		on, err := r.Preference(ctx, id)
		if err != nil {
			return nil, err
		}
		if on {
			add(id)
		}
	}
	for id := range admins {
		on, err := r.Preference(ctx, id)
		if err != nil {
			return nil, err
		}
		if on {
			add(id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Preference returns the user's personal signal setting. An unset
// preference is stored as on.
func (r *Resolver) Preference(ctx context.Context, userID int64) (bool, error) {
	on, found, err := r.store.PersonalSignals(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("read preference %d: %w", userID, err)
	}
	if found {
		return on, nil
	}
	if err := r.store.SetPersonalSignals(ctx, userID, true); err != nil {
		return false, fmt.Errorf("store preference %d: %w", userID, err)
	}
	r.log.Debug("personal signals defaulted on", logx.Int64("user_id", userID))
	return true, nil
}
