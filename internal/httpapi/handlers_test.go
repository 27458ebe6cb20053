package httpapi

import (
	"errors"
	"net/http"
	"testing"

	"authcore.org/internal/auth"
)

func TestRootAndFallback(t *testing.T) {
	api := newTestAPI(t, nil)

	env := api.expect(http.StatusOK, http.MethodGet, "/", "", nil)
	if env.Message != "API is running" || env.State != "ok" || env.V != "test" {
		t.Fatalf("unexpected root envelope %+v", env)
	}

	env = api.expect(420, http.MethodGet, "/nowhere", "", nil)
	if env.Message != "Dafuq!" || env.Error != 1 {
		t.Fatalf("unexpected fallback envelope %+v", env)
	}
}

func TestReadyz(t *testing.T) {
	api := newTestAPI(t, nil)
	api.expect(http.StatusOK, http.MethodGet, "/readyz", "", nil)

	down := newTestAPI(t, func(o *Options) {
		o.Ready = stubProbe{err: errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")}
	})
	env := down.expect(http.StatusInternalServerError, http.MethodGet, "/readyz", "", nil)
	if env.Message != dbConnectionMessage {
		t.Fatalf("unexpected message %q", env.Message)
	}
}

func TestMissingTokenIsNotAcceptable(t *testing.T) {
	api := newTestAPI(t, nil)
	env := api.expect(http.StatusNotAcceptable, http.MethodGet, "/whoami", "", nil)
	if env.Message != "No token provided" {
		t.Fatalf("unexpected message %q", env.Message)
	}
	api.expect(http.StatusForbidden, http.MethodGet, "/whoami", "not-a-jwt", nil)
}

func TestMissingPermissionsListed(t *testing.T) {
	api := newTestAPI(t, nil)
	api.register("jo@example.com")
	token := api.token("jo@example.com")

	env := api.expect(http.StatusUnauthorized, http.MethodGet, "/group/1/user", token, nil)
	data := decodeData[struct {
		List []map[string]string `json:"list"`
	}](t, env)
	if len(data.List) != 2 {
		t.Fatalf("expected two missing pairs, got %+v", data.List)
	}
	if data.List[0]["GROUP"] != "read" || data.List[1]["USER_GROUP"] != "read" {
		t.Fatalf("unexpected missing pairs %+v", data.List)
	}
}

func TestFailMapsErrors(t *testing.T) {
	api := newTestAPI(t, nil)
	cases := []struct {
		name    string
		path    string
		status  int
		message string
	}{
		{"bad id", "/group/abc", http.StatusBadRequest, "invalid id"},
		{"unknown group", "/group/999", http.StatusNotFound, ""},
	}
	api.admin()
	admin := api.token("root@example.com")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := api.expect(tc.status, http.MethodGet, tc.path, admin, nil)
			if tc.message != "" && env.Message != tc.message {
				t.Fatalf("unexpected message %q", env.Message)
			}
		})
	}
}

func TestCodeForKind(t *testing.T) {
	cases := map[auth.Kind]Code{
		auth.KindInvalid:      CodeNotAcceptable,
		auth.KindBadRequest:   CodeBadRequest,
		auth.KindNotFound:     CodeNotFound,
		auth.KindUnauthorized: CodeUnauthorized,
		auth.KindForbidden:    CodeForbidden,
		auth.KindConflict:     CodeConflict,
		auth.KindNoChange:     CodeNoChange,
		auth.KindRateLimited:  CodeTooManyRequests,
		auth.KindFatal:        CodeFatal,
		auth.KindUnknown:      CodeFatal,
	}
	for kind, want := range cases {
		if got := codeForKind(kind); got != want {
			t.Fatalf("%s: got %s, want %s", kind, got, want)
		}
	}
	if code, _ := lookup("created"); code != CodeCreated {
		t.Fatalf("lookup should be case-insensitive, got %s", code)
	}
	if code, _ := lookup("NOPE"); code != CodeDafuq {
		t.Fatalf("unknown codes fall back to DAFUQ, got %s", code)
	}
}
