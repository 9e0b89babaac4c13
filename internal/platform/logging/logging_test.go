package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWritesStructuredEntries(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug")
	logger.Debug().Str("subscription", "tagindex").Msg("caught up")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["subscription"] != "tagindex" {
		t.Fatalf("subscription = %v, want tagindex", entry["subscription"])
	}
	if entry["level"] != "debug" {
		t.Fatalf("level = %v, want debug", entry["level"])
	}
	if _, ok := entry["time"]; !ok {
		t.Fatal("expected timestamp field")
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")
	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info entry to be filtered, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":       zerolog.InfoLevel,
		"DEBUG":  zerolog.DebugLevel,
		" warn ": zerolog.WarnLevel,
		"bogus":  zerolog.InfoLevel,
		"error":  zerolog.ErrorLevel,
	}
	for input, want := range tests {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}
