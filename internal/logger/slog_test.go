package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInfoContextCarriesCorrelationFields(t *testing.T) {
	dir := t.TempDir()
	if err := InitSlog(dir, true); err != nil {
		t.Fatalf("InitSlog: %v", err)
	}
	defer CloseSlog()

	ctx := context.WithValue(context.Background(), ContextKeyRequestID, "req-1")
	ctx = context.WithValue(ctx, ContextKeyChannelID, "chan-9")
	ctx = context.WithValue(ctx, ContextKeyCommandID, "cmd-7")
	InfoContext(ctx, "command resolved", "command", "create_rectangle")
	ErrorContext(ctx, "command failed", "command", "delete_node")

	name := "canvasbridge-" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		`"request_id":"req-1"`,
		`"channel_id":"chan-9"`,
		`"command_id":"cmd-7"`,
		"create_rectangle",
		"command failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}

func TestWithContextIgnoresMissingKeys(t *testing.T) {
	logger := WithContext(context.Background())
	if logger == nil {
		t.Fatal("WithContext returned nil for a bare context")
	}
}
