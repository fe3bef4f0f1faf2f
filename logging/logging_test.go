package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, nil))

	logger.Info("game finished", "worker", 3, "steps", 21)

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if payload["msg"] != "game finished" {
		t.Errorf("msg = %v", payload["msg"])
	}
	if payload["level"] != "INFO" {
		t.Errorf("level = %v", payload["level"])
	}
	if payload["worker"] != float64(3) {
		t.Errorf("worker = %v", payload["worker"])
	}
}

func TestHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})

	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, nil)).WithGroup("search").With("sims", 600)

	logger.Info("done")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	group, ok := payload["search"].(map[string]any)
	if !ok {
		t.Fatalf("missing search group in %v", payload)
	}
	if group["sims"] != float64(600) {
		t.Errorf("sims = %v", group["sims"])
	}
}
