package httpapi

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"authcore.org/internal/auth"
	"authcore.org/internal/obs"
)

// Code names one entry of the response catalog.
type Code string

const (
	CodeRunning         Code = "RUNNING"
	CodeOK              Code = "OK"
	CodeNoChange        Code = "NO_CHANGE"
	CodeCreated         Code = "CREATED"
	CodeModified        Code = "MODIFIED"
	CodeDeleted         Code = "DELETED"
	CodeBadRequest      Code = "BAD_REQUEST"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeNotAcceptable   Code = "NOT_ACCEPTABLE"
	CodeConflict        Code = "CONFLICT"
	CodeEmptyRequest    Code = "EMPTY_REQUEST"
	CodeDafuq           Code = "DAFUQ"
	CodeBusy            Code = "BUSY"
	CodeTooManyRequests Code = "TOO_MANY_REQUESTS"
	CodeFatal           Code = "FATAL"
)

type status struct {
	Error   int
	State   string
	Message string
	HTTP    int
}

var catalog = map[Code]status{
	CodeRunning:         {0, "ok", "API is running", http.StatusOK},
	CodeOK:              {0, "ok", "Accepted", http.StatusOK},
	CodeNoChange:        {0, "ok", "No change", http.StatusOK},
	CodeCreated:         {0, "ok", "Item created as requested", http.StatusCreated},
	CodeModified:        {0, "ok", "Item updated as requested", http.StatusAccepted},
	CodeDeleted:         {0, "ok", "Item deleted as requested", http.StatusAccepted},
	CodeBadRequest:      {1, "error", "Request does not meet the expectations", http.StatusBadRequest},
	CodeUnauthorized:    {1, "error", "Unauthorized Access", http.StatusUnauthorized},
	CodeForbidden:       {1, "error", "Forbidden Access", http.StatusForbidden},
	CodeNotFound:        {1, "error", "Requested item does not exist", http.StatusNotFound},
	CodeNotAcceptable:   {1, "error", "Not acceptable", http.StatusNotAcceptable},
	CodeConflict:        {1, "error", "Item already exists", http.StatusConflict},
	CodeEmptyRequest:    {-1, "unknown", "You are what my status is...", http.StatusTeapot},
	CodeDafuq:           {1, "error", "Dafuq!", 420},
	CodeBusy:            {1, "error", "It looks like somebody is repeatingly repeating", http.StatusTooEarly},
	CodeTooManyRequests: {1, "error", "Too many requests", http.StatusTooManyRequests},
	CodeFatal:           {1, "error", "Fatal error.", http.StatusInternalServerError},
}

const dbConnectionMessage = "Database connection problem"

// Envelope is the body of every API response.
type Envelope struct {
	V       string `json:"v"`
	Error   int    `json:"error"`
	State   string `json:"state"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// lookup falls back to DAFUQ for codes outside the catalog.
func lookup(code Code) (Code, status) {
	if st, ok := catalog[Code(strings.ToUpper(string(code)))]; ok {
		return Code(strings.ToUpper(string(code))), st
	}
	return CodeDafuq, catalog[CodeDafuq]
}

func (a *API) send(w http.ResponseWriter, code Code, data any, message string) {
	_, st := lookup(code)
	if message == "" {
		message = st.Message
	}
	writeJSON(w, st.HTTP, Envelope{
		V:       a.version,
		Error:   st.Error,
		State:   st.State,
		Message: message,
		Data:    data,
	})
}

// fail translates err into an envelope. Only auth errors carry their own
// message; anything else is logged and reported with the catalog text.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	if isDBConnectionError(err) {
		a.logError(r, err)
		a.send(w, CodeFatal, nil, dbConnectionMessage)
		return
	}
	kind := auth.KindOf(err)
	code := codeForKind(kind)
	if kind == auth.KindUnknown || kind == auth.KindFatal {
		a.logError(r, err)
		a.send(w, code, nil, "")
		return
	}
	a.send(w, code, auth.DataOf(err), auth.MessageOf(err))
}

func (a *API) logError(r *http.Request, err error) {
	fields := map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"error":  err.Error(),
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		fields["request_id"] = rid
	}
	obs.Log("error", "request_failed", fields)
}

func codeForKind(k auth.Kind) Code {
	switch k {
	case auth.KindInvalid:
		return CodeNotAcceptable
	case auth.KindBadRequest:
		return CodeBadRequest
	case auth.KindNotFound:
		return CodeNotFound
	case auth.KindUnauthorized:
		return CodeUnauthorized
	case auth.KindForbidden:
		return CodeForbidden
	case auth.KindConflict:
		return CodeConflict
	case auth.KindNoChange:
		return CodeNoChange
	case auth.KindRateLimited:
		return CodeTooManyRequests
	default:
		return CodeFatal
	}
}

func isDBConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := err.Error()
	for _, needle := range []string{"ECONNREFUSED", "connection refused", "Access denied"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
