// Package audit records who changed credentials, memberships and
// permissions. Entries are JSON lines on the shared obs logger.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"authcore.org/internal/auth"
	"authcore.org/internal/obs"
)

// Event names an audited action.
type Event string

const (
	Register            Event = "auth.register"
	LoginFailed         Event = "auth.login.failed"
	PasswordChanged     Event = "auth.password.changed"
	UserEdited          Event = "user.edit"
	UserDeleted         Event = "user.delete"
	UserRestored        Event = "user.restore"
	UserGroupsSet       Event = "user.groups.set"
	GroupCreated        Event = "group.create"
	GroupRenamed        Event = "group.rename"
	GroupDeleted        Event = "group.delete"
	GroupUsersSet       Event = "group.users.set"
	GroupPermissionsSet Event = "group.permissions.set"
)

// Entry is one audit line.
type Entry struct {
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	Event      Event          `json:"event"`
	RequestID  string         `json:"request_id,omitempty"`
	ActorID    int64          `json:"actor_id,omitempty"`
	ActorEmail string         `json:"actor_email,omitempty"`
	Admin      bool           `json:"admin,omitempty"`
	Fields     map[string]any `json:"fields"`
}

type requestIDKey struct{}

// WithRequestID attaches the request identifier recorded on entries.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// NewEntry builds the entry for event. The actor comes from the principal
// stored in ctx, when there is one.
func NewEntry(ctx context.Context, event Event, fields map[string]any) Entry {
	e := Entry{
		TS:        time.Now().UTC().Format(time.RFC3339Nano),
		Type:      "audit",
		Event:     event,
		RequestID: RequestIDFromContext(ctx),
		Fields:    make(map[string]any, len(fields)),
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		e.ActorID = p.User.ID
		e.ActorEmail = p.User.Email
		e.Admin = p.IsAdmin()
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

// LogEvent writes one entry for event.
func LogEvent(ctx context.Context, event Event, fields map[string]any) error {
	if strings.TrimSpace(string(event)) == "" {
		return errors.New("event name is required")
	}
	data, err := json.Marshal(NewEntry(ctx, event, fields))
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
