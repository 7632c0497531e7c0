package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("Expected info level, got %v", log.GetLevel())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithOptions_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithOptions(buf, Options{Level: "warn", Format: "json"})

	log.Info().Msg("dropped")
	log.Warn().Str("owner_id", "u1").Msg("Catch-up limit reached")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected one log line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", lines[0], err)
	}
	if entry["owner_id"] != "u1" || entry["level"] != "warn" {
		t.Errorf("Unexpected entry: %v", entry)
	}
}

func TestNewWithOptions_Console(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithOptions(buf, Options{})
	log.Info().Msg("Transaction posted")

	out := buf.String()
	if !strings.Contains(out, "Transaction posted") || strings.HasPrefix(out, "{") {
		t.Errorf("Expected console output, got: %s", out)
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	retrieved := FromContext(ctx)
	retrieved.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"draft_id": "d1",
		"source":   "text",
	})
	log.Info().Msg("Draft created")

	out := buf.String()
	if !strings.Contains(out, `"draft_id":"d1"`) || !strings.Contains(out, `"source":"text"`) {
		t.Errorf("Expected fields in output, got: %s", out)
	}
}
