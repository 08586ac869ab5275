package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"nope", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWithCarriesFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewJSON(&buf, "debug").With(String("comp", "signal.engine"))
	log.Info("plan built", Int("target", 7), Err(errors.New("boom")))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["comp"] != "signal.engine" {
		t.Fatalf("comp = %v, want signal.engine", line["comp"])
	}
	if line["target"] != float64(7) {
		t.Fatalf("target = %v, want 7", line["target"])
	}
	if line["message"] != "plan built" {
		t.Fatalf("message = %v", line["message"])
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewJSON(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info line written at warn level: %s", buf.String())
	}
	if log.Enabled(LevelDebug) {
		t.Fatal("debug should be disabled")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	log.Error("nothing happens")
}

func TestFormatChatLine(t *testing.T) {
	t.Parallel()
	got := formatChatLine([]byte(`{"level":"warn","message":"send failed","user":42,"comp":"signal","time":"x"}`))
	want := "[WARN] send failed\n- comp=signal\n- user=42"
	if got != want {
		t.Fatalf("formatChatLine = %q, want %q", got, want)
	}
	if raw := formatChatLine([]byte("plain text\n")); raw != "plain text" {
		t.Fatalf("raw line = %q", raw)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 50)
	if got := truncate(s, 20); len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 20); got != "short" {
		t.Fatalf("truncate short = %q", got)
	}
}
