package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func TestDecodeFillsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := decode("c.yaml", []byte("telegram:\n  token: abc\n"), noEnv)
	require.NoError(t, err)

	assert.Equal(t, "10s", cfg.Telegram.PollTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 20, cfg.Broadcast.RatePerSec)
	assert.Equal(t, "127.0.0.1:9090", cfg.Ops.Addr)
	assert.Equal(t, "memory", cfg.Market.Cache.Driver)
	assert.True(t, cfg.Market.YahooEnabled())
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := decode("c.json", []byte(`{"telegram":{"token":"x"},"plugins":{}}`), noEnv)
	require.Error(t, err)
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	t.Parallel()
	_, err := decode("c.json", []byte(`{"telegram":{"token":"x"}}{}`), noEnv)
	require.Error(t, err)
}

func TestValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{"missing token", "logging:\n  level: info\n"},
		{"bad driver", "telegram: {token: x}\nstorage: {driver: mongo}\n"},
		{"postgres without dsn", "telegram: {token: x}\nstorage: {driver: postgres}\n"},
		{"kafka without brokers", "telegram: {token: x}\nevents: {kafka: {enabled: true}}\n"},
		{"bad duration", "telegram: {token: x, poll_timeout: soon}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := decode("c.yaml", []byte(tt.body), noEnv)
			assert.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"TELEGRAM_BOT_TOKEN":     "from-env",
		"POCKET_BOT_ADMIN_IDS":   "5; 7,x,5",
		"SIGNALBOT_DATABASE_URL": "postgres://u@h/db",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	body := "telegram: {admin_ids: [1, 5]}\nstorage: {driver: postgres}\n"
	cfg, err := decode("c.yaml", []byte(body), lookup)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, []int64{1, 5, 7}, cfg.Telegram.AdminIDs)
	assert.Equal(t, "postgres://u@h/db", cfg.Storage.DSN)
}

func TestParseIDList(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []int64{1, 2, 3}, ParseIDList(" 1,2 ;3;; "))
	assert.Empty(t, ParseIDList(""))
}

func TestDurationOr(t *testing.T) {
	t.Parallel()
	d, err := DurationOr("x", "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	d, err = DurationOr("x", "250ms", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = DurationOr("x", "-1s", time.Second)
	assert.Error(t, err)
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	a := &Config{Broadcast: BroadcastConfig{RatePerSec: 20}}
	b := &Config{Broadcast: BroadcastConfig{RatePerSec: 5}, Logging: LoggingConfig{Level: "debug"}}
	changed, attrs := SummarizeChange(a, b)
	assert.Equal(t, []string{"broadcast", "logging"}, changed)
	assert.NotEmpty(t, attrs)
}

func TestManagerReloadPublishes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("telegram: {token: a}\n"), 0o600))

	m := NewManager(path)
	m.lookup = noEnv
	_, err := m.Load()
	require.NoError(t, err)

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	m.reload(context.Background())
	select {
	case <-sub:
		t.Fatal("unchanged file should not publish")
	default:
	}

	require.NoError(t, os.WriteFile(path, []byte("telegram: {token: a}\nbroadcast: {rate_per_sec: 3}\n"), 0o600))
	m.reload(context.Background())
	select {
	case cfg := <-sub:
		assert.Equal(t, 3, cfg.Broadcast.RatePerSec)
	default:
		t.Fatal("changed file should publish")
	}
	assert.Equal(t, 3, m.Get().Broadcast.RatePerSec)
}
