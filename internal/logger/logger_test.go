package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestFromConfig(t *testing.T) {
	t.Setenv("APP_ENV", "")

	cfg := FromConfig("warn", "")
	if cfg.Level != slog.LevelWarn {
		t.Errorf("expected warn level, got %v", cfg.Level)
	}
	if cfg.Format != "text" {
		t.Errorf("expected text format, got %s", cfg.Format)
	}

	t.Setenv("APP_ENV", "production")
	cfg = FromConfig("info", "text")
	if cfg.Format != "json" {
		t.Errorf("expected production to force json, got %s", cfg.Format)
	}
}

func TestWithContextAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf})

	ctx := WithDeviceID(context.Background(), "abc123")
	ctx = WithMessageID(ctx, "msg-1")
	log.WithContext(ctx).WithComponent("test").Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v (%q)", err, buf.String())
	}
	if entry["device_id"] != "abc123" {
		t.Errorf("expected device_id attribute, got %v", entry["device_id"])
	}
	if entry["message_id"] != "msg-1" {
		t.Errorf("expected message_id attribute, got %v", entry["message_id"])
	}
	if entry["component"] != "test" {
		t.Errorf("expected component attribute, got %v", entry["component"])
	}
	if entry["instance_id"] != GetInstanceID() {
		t.Errorf("expected instance_id %s, got %v", GetInstanceID(), entry["instance_id"])
	}
}
