package signal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "signalbot/pkg/logx"
)

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("png"), 0o644))
	return p
}

func TestParseImageName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		pair string
		dir  Direction
		ok   bool
	}{
		{"EURUSD BUY.png", "EURUSD", Buy, true},
		{"gbpjpy sell.png", "GBPJPY", Sell, true},
		{"signal EURUSD v2 SELL.png", "EURUSD", Sell, true},
		{"EURUSD.png", "EURUSD", "", false},
		{"EUR USD BUY.png", "", Buy, false},
	}
	for _, tt := range tests {
		pair, dir, ok := parseImageName(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.pair, pair, tt.name)
		assert.Equal(t, tt.dir, dir, tt.name)
	}
}

func TestCatalogLookup(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	buy := writeFile(t, dir, "EURUSD BUY.png")
	writeFile(t, dir, "EURUSD SELL.png")
	writeFile(t, dir, "notes.txt")

	c := LoadCatalog(dir, logx.Nop())
	assert.Equal(t, 2, c.Len())

	p, ok := c.Lookup("eurusd", Buy)
	require.True(t, ok)
	assert.Equal(t, buy, p)

	_, ok = c.Lookup("GBPJPY", Buy)
	assert.False(t, ok)

	require.NoError(t, os.Remove(buy))
	_, ok = c.Lookup("EURUSD", Buy)
	assert.False(t, ok)

	assert.Equal(t, 0, LoadCatalog(filepath.Join(dir, "missing"), logx.Nop()).Len())
}
