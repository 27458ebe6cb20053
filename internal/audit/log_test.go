package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"authcore.org/internal/auth"
	"authcore.org/internal/obs"
)

func TestLogEventRecordsActor(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = auth.ContextWithPrincipal(ctx, auth.Principal{
		User:   auth.User{ID: 42, Email: "root@example.com"},
		Groups: []auth.Group{{ID: 3, Name: "Administrator", Alias: auth.AliasAdmin}},
	})

	if err := LogEvent(ctx, GroupUsersSet, map[string]any{"group_id": 7}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	var got Entry
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if got.TS == "" {
		t.Fatal("expected timestamp")
	}
	got.TS = ""
	want := Entry{
		Type:       "audit",
		Event:      GroupUsersSet,
		RequestID:  "req-123",
		ActorID:    42,
		ActorEmail: "root@example.com",
		Admin:      true,
		Fields:     map[string]any{"group_id": float64(7)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}
}

func TestNewEntryWithoutPrincipal(t *testing.T) {
	e := NewEntry(context.Background(), LoginFailed, nil)
	if e.ActorID != 0 || e.Admin || e.RequestID != "" {
		t.Fatalf("anonymous entry carries an actor: %+v", e)
	}
	if e.Fields == nil {
		t.Fatal("fields must never be null")
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), " abc ")
	if got := RequestIDFromContext(ctx); got != "abc" {
		t.Fatalf("unexpected request id %q", got)
	}
	if got := RequestIDFromContext(WithRequestID(context.Background(), "")); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}
