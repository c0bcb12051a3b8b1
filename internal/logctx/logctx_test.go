package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerAddsContextGroups(t *testing.T) {
	var buf bytes.Buffer
	log := Wrap(slog.New(slog.NewJSONHandler(&buf, nil))).With(slog.String("component", "hub"))

	ctx := WithRequestData(context.Background(), &RequestData{RequestID: "r1", Method: "GET", Path: "/ws"})
	ctx = WithConnData(ctx, &ConnData{ConnID: "c1", UserID: "u1", SessionID: "s1"})
	ctx = WithRPCMessage(ctx, &RPCMessage{Method: "requestSessionData", ID: "7", Type: "request"})
	log.InfoContext(ctx, "rpc.handle")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	if rec["component"] != "hub" {
		t.Fatalf("With attrs lost: %v", rec)
	}
	conn, _ := rec["conn"].(map[string]any)
	if conn["session_id"] != "s1" || conn["user_id"] != "u1" {
		t.Fatalf("unexpected conn group: %v", rec["conn"])
	}
	req, _ := rec["req"].(map[string]any)
	if req["path"] != "/ws" {
		t.Fatalf("unexpected req group: %v", rec["req"])
	}
	rpc, _ := rec["rpc"].(map[string]any)
	if rpc["method"] != "requestSessionData" {
		t.Fatalf("unexpected rpc group: %v", rec["rpc"])
	}
}

func TestWrapIsIdempotent(t *testing.T) {
	l := Wrap(slog.Default())
	if Wrap(l) != l {
		t.Fatalf("expected wrapped logger to be returned as-is")
	}
	if Wrap(nil) != nil {
		t.Fatalf("expected nil")
	}
}
