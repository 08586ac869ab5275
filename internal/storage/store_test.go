package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "signalbot/pkg/logx"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	sq, err := Open(ctx, Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	require.NoError(t, err)
	mem, err := Open(ctx, Config{Driver: "memory"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sq.Close()
		_ = mem.Close()
	})
	return map[string]Store{"sqlite": sq, "memory": mem}
}

func TestDefaultsAreInsertedOnce(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			on, err := st.GlobalSignals(ctx)
			require.NoError(t, err)
			assert.True(t, on)

			hours, err := st.WorkingHours(ctx)
			require.NoError(t, err)
			assert.Equal(t, DefaultWorkingHours, hours)

			require.NoError(t, st.SetSignalRange(ctx, "1-2"))
			require.NoError(t, st.SetGlobalSignals(ctx, false))
			require.NoError(t, st.EnsureDefaults(ctx, StandardDefaults()))

			rng, err := st.SignalRange(ctx)
			require.NoError(t, err)
			assert.Equal(t, "1-2", rng)
			on, err = st.GlobalSignals(ctx)
			require.NoError(t, err)
			assert.False(t, on)
		})
	}
}

func TestApplicationLifecycle(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := st.GetApplication(ctx, 1)
			assert.True(t, errors.Is(err, ErrNotFound))

			first, err := st.UpsertApplication(ctx, Application{UserID: 1, PocketID: "abc123", Username: "trader"})
			require.NoError(t, err)
			assert.Equal(t, StatusPending, first.Status)
			assert.Equal(t, "ru", first.Language)
			assert.False(t, first.CreatedAt.IsZero())

			second, err := st.UpsertApplication(ctx, Application{UserID: 1, PocketID: "zzz999", Status: StatusPending})
			require.NoError(t, err)
			assert.Equal(t, first.CreatedAt, second.CreatedAt)
			assert.Equal(t, "zzz999", second.PocketID)
			assert.Equal(t, "", second.Username)

			require.NoError(t, st.SetApplicationStatus(ctx, 1, StatusApproved))
			assert.True(t, errors.Is(st.SetApplicationStatus(ctx, 2, StatusApproved), ErrNotFound))

			approved, err := st.ListApplications(ctx, StatusApproved)
			require.NoError(t, err)
			require.Len(t, approved, 1)
			assert.Equal(t, int64(1), approved[0].UserID)

			require.NoError(t, st.DeleteApplication(ctx, 1))
			all, err := st.ListApplications(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestStagesAndPersonalSignals(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := st.GetUserStage(ctx, 5)
			assert.True(t, errors.Is(err, ErrNotFound))

			require.NoError(t, st.SetUserStage(ctx, 5, StageStarted))
			require.NoError(t, st.SetUserStage(ctx, 5, StageCompleted))
			stage, err := st.GetUserStage(ctx, 5)
			require.NoError(t, err)
			assert.Equal(t, StageCompleted, stage)

			_, found, err := st.PersonalSignals(ctx, 5)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, st.SetPersonalSignals(ctx, 5, false))
			enabled, found, err := st.PersonalSignals(ctx, 5)
			require.NoError(t, err)
			assert.True(t, found)
			assert.False(t, enabled)

			prefs, err := st.ListPersonalSignals(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[int64]bool{5: false}, prefs)

			stages, err := st.ListUserStages(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[int64]string{5: StageCompleted}, stages)
		})
	}
}

func TestListSignalRecipientIDs(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			// 1 approved, 2 completed stage, 3 both, 4 approved but opted out, 5 pending only.
			for _, id := range []int64{1, 3, 4} {
				_, err := st.UpsertApplication(ctx, Application{UserID: id, PocketID: "p", Status: StatusApproved})
				require.NoError(t, err)
			}
			_, err := st.UpsertApplication(ctx, Application{UserID: 5, PocketID: "p"})
			require.NoError(t, err)
			require.NoError(t, st.SetUserStage(ctx, 2, StageCompleted))
			require.NoError(t, st.SetUserStage(ctx, 3, StageCompleted))
			require.NoError(t, st.SetUserStage(ctx, 5, StageStarted))
			require.NoError(t, st.SetPersonalSignals(ctx, 4, false))
			require.NoError(t, st.SetPersonalSignals(ctx, 1, true))

			ids, err := st.ListSignalRecipientIDs(ctx, StageCompleted)
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 2, 3}, ids)
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), Config{Driver: "mongo"}, logx.Nop())
	assert.Error(t, err)
}
