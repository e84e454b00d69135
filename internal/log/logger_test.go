package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Output: &buf, Component: ComponentBot})
	logger.With(FieldUserID, int64(42)).Info("Expense recorded")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json output, got %q: %v", buf.String(), err)
	}
	if entry[FieldComponent] != ComponentBot {
		t.Errorf("component = %v, want %s", entry[FieldComponent], ComponentBot)
	}
	if entry[FieldUserID] != float64(42) {
		t.Errorf("user_id = %v, want 42", entry[FieldUserID])
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Output: &buf, Component: ComponentApp})
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	logger := Discard().WithComponent(ComponentWorker)
	ctx := NewContext(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Fatal("expected the stored logger back")
	}
	if got := FromContext(context.Background()); got.Component() != "unknown" {
		t.Fatalf("expected fallback logger, got component %q", got.Component())
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().WithOperation(OpHandle).WithUser(7, 7).WithExpense("500", "Такси")
	if _, ok := f[FieldChatID]; ok {
		t.Error("chat_id should be omitted when equal to user_id")
	}
	if len(f.ToSlice()) != 2*len(f) {
		t.Errorf("unexpected slice length %d", len(f.ToSlice()))
	}
}
