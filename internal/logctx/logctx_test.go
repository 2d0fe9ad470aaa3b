package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandler_AddsOperationGroup(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)}).With("component", "test")

	ctx := WithOperation(context.Background(), &Operation{Kind: "create", Session: "GameSession", Player: "p-1"})
	ctx = WithBackend(ctx, &Backend{Name: "redis", SessionID: "s-1"})
	log.InfoContext(ctx, "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	op, ok := rec["op"].(map[string]any)
	if !ok {
		t.Fatalf("missing op group in %s", buf.String())
	}
	if op["kind"] != "create" || op["session"] != "GameSession" || op["player"] != "p-1" {
		t.Fatalf("unexpected op group: %v", op)
	}
	be, ok := rec["backend"].(map[string]any)
	if !ok || be["session_id"] != "s-1" {
		t.Fatalf("unexpected backend group: %v", rec["backend"])
	}
	if rec["component"] != "test" {
		t.Fatalf("WithAttrs lost the wrapper: %v", rec)
	}
}

func TestHandler_NoContextValues(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)})
	log.Info("plain")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if _, ok := rec["op"]; ok {
		t.Fatalf("unexpected op group: %v", rec)
	}
}
