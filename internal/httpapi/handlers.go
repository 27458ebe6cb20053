package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"authcore.org/internal/auth"
	"authcore.org/internal/limiter"
	"authcore.org/internal/obs"
)

const defaultMaxBody = 1 << 20

// ReadyProbe reports whether backing services are reachable.
type ReadyProbe interface {
	Ping(ctx context.Context) error
}

// Options wires the HTTP layer.
type Options struct {
	Service *auth.Service
	Ready   ReadyProbe
	Version string

	// Requests throttles every request per client IP.
	Requests limiter.Throttle
	// Register and Login throttle the public credential endpoints per IP.
	Register       limiter.Throttle
	RegisterWindow time.Duration
	Login          limiter.Throttle
	LoginWindow    time.Duration

	CORSOrigins  []string
	MaxBodyBytes int64
}

// API is the HTTP surface of the auth core.
type API struct {
	mux      *http.ServeMux
	svc      *auth.Service
	ready    ReadyProbe
	version  string
	opts     Options
	maxBytes int64
}

// New builds the router.
func New(opts Options) (*API, error) {
	if opts.Service == nil {
		return nil, errors.New("httpapi: service is required")
	}
	a := &API{
		mux:      http.NewServeMux(),
		svc:      opts.Service,
		ready:    opts.Ready,
		version:  opts.Version,
		opts:     opts,
		maxBytes: opts.MaxBodyBytes,
	}
	if a.maxBytes <= 0 {
		a.maxBytes = defaultMaxBody
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /{$}", a.root)
	a.mux.HandleFunc("GET /healthz", a.healthz)
	a.mux.HandleFunc("GET /readyz", a.readyz)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /auth/register", a.register)
	a.mux.HandleFunc("POST /auth/login", a.login)
	a.mux.HandleFunc("POST /auth/renew", a.renew)
	a.mux.Handle("POST /auth/password", a.authed(a.changePassword))
	a.mux.Handle("GET /whoami", a.authed(a.whoami))

	a.mux.Handle("GET /user", a.authed(a.userList, requireAll(userRead)))
	a.mux.Handle("GET /user/{id}", a.authed(a.userShow, selfOrAll(userRead)))
	a.mux.Handle("POST /user/{id}", a.authed(a.userEdit, selfOrAll(userUpdate)))
	a.mux.Handle("DELETE /user/{id}", a.authed(a.userDelete, requireAll(userDelete)))
	a.mux.Handle("POST /user/{id}/restore", a.authed(a.userRestore, requireAll(userDelete)))
	a.mux.Handle("GET /user/{id}/activity", a.authed(a.userActivity, requireAll(activityRead)))
	a.mux.Handle("GET /user/{id}/permission", a.authed(a.userPermission, requireAll(userPermissionRead)))
	a.mux.Handle("GET /user/{id}/group", a.authed(a.userGroups, requireAll(userGroupRead)))
	a.mux.Handle("POST /user/{id}/group", a.authed(a.userSetGroups, requireAll(userGroupUpdate)))

	a.mux.Handle("GET /group", a.authed(a.groupList, requireAll(groupRead)))
	a.mux.Handle("GET /group/permission", a.authed(a.groupPermissionSnapshot, requireAll(groupPermissionRead)))
	a.mux.Handle("POST /group", a.authed(a.groupCreate, requireAll(groupCreate)))
	a.mux.Handle("GET /group/{id}", a.authed(a.groupShow, requireAll(groupRead)))
	a.mux.Handle("POST /group/{id}", a.authed(a.groupRename, requireAll(groupUpdate)))
	a.mux.Handle("DELETE /group/{id}", a.authed(a.groupDelete, requireAll(groupDelete)))
	a.mux.Handle("GET /group/{id}/user", a.authed(a.groupUsers, requireAll(groupRead, userGroupRead)))
	a.mux.Handle("POST /group/{id}/user", a.authed(a.groupSetUsers, requireAll(userGroupUpdate)))
	a.mux.Handle("GET /group/{id}/permission", a.authed(a.groupPermission, requireAll(groupPermissionRead)))
	a.mux.Handle("POST /group/{id}/permission", a.authed(a.groupSetPermission, requireAll(groupPermissionUpdate)))

	a.mux.Handle("GET /permission", a.authed(a.permissionList, requireAll(permissionRead)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		a.send(w, CodeDafuq, nil, "")
	})
}

// Handler returns the router wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	if a.opts.Requests != nil {
		h = a.rateLimit(h, a.opts.Requests, time.Second)
	}
	h = MaxBodyBytes(h, a.maxBytes)
	h = CORS(h, a.opts.CORSOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) root(w http.ResponseWriter, r *http.Request) {
	a.send(w, CodeRunning, nil, "")
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	a.send(w, CodeOK, map[string]any{
		"status":  "ok",
		"service": "authcore",
		"version": a.version,
	}, "")
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.ready.Ping(ctx); err != nil {
			a.logError(r, err)
			a.send(w, CodeFatal, map[string]any{"status": "not_ready"}, dbConnectionMessage)
			return
		}
	}
	a.send(w, CodeOK, map[string]any{"status": "ready"}, "")
}

// --- helpers ---

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return &auth.Error{Kind: auth.KindBadRequest, Message: "request body is required"}
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &auth.Error{Kind: auth.KindBadRequest, Message: "request body is required"}
		}
		return &auth.Error{Kind: auth.KindBadRequest, Message: "malformed JSON body", Err: err}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &auth.Error{Kind: auth.KindBadRequest, Message: "unexpected data after JSON body"}
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("id")), 10, 64)
	if err != nil || id <= 0 {
		return 0, &auth.Error{Kind: auth.KindBadRequest, Message: "invalid id"}
	}
	return id, nil
}

// listQuery reads page, limit, sort_by, sort_order and search. Every
// parameter named in filters that is present narrows the listing further.
func listQuery(r *http.Request, allowed []string, filters ...string) auth.ListQuery {
	v := r.URL.Query()
	q := auth.NewListQuery(v.Get("page"), v.Get("limit"), v.Get("sort_by"), v.Get("sort_order"), allowed)
	q.Search = strings.TrimSpace(v.Get("search"))
	for _, name := range filters {
		q.Filter(name, v.Get(name))
	}
	return q
}

// queryID parses an optional positive id query parameter; 0 means absent.
func queryID(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &auth.Error{Kind: auth.KindBadRequest, Message: "invalid " + name}
	}
	return id, nil
}
