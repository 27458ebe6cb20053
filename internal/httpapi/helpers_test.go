package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"authcore.org/internal/auth"
	"authcore.org/internal/store/memory"
)

const testPassword = "Str0ng!pass"

type apiClient struct {
	t       *testing.T
	ctx     context.Context
	baseURL string
	client  *http.Client
	svc     *auth.Service
	store   *memory.Store
}

type envelope struct {
	V       string          `json:"v"`
	Error   int             `json:"error"`
	State   string          `json:"state"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type stubProbe struct{ err error }

func (p stubProbe) Ping(context.Context) error { return p.err }

// newTestAPI provisions an in-memory store and serves the full handler
// chain. edit may adjust the options before the router is built.
func newTestAPI(t *testing.T, edit func(*Options)) *apiClient {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	if err := auth.Provision(ctx, store, auth.DefaultCatalog()); err != nil {
		t.Fatalf("provision: %v", err)
	}
	svc, err := auth.NewService(store, auth.WithSecrets("access-secret", "renew-secret"))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	opts := Options{Service: svc, Ready: stubProbe{}, Version: "test"}
	if edit != nil {
		edit(&opts)
	}
	api, err := New(opts)
	if err != nil {
		t.Fatalf("new api: %v", err)
	}
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &apiClient{t: t, ctx: ctx, baseURL: srv.URL, client: srv.Client(), svc: svc, store: store}
}

func (c *apiClient) do(method, path, token string, body any) (*http.Response, envelope) {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		c.t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp, env
}

// expect runs a request and checks the HTTP status.
func (c *apiClient) expect(status int, method, path, token string, body any) envelope {
	c.t.Helper()
	resp, env := c.do(method, path, token, body)
	if resp.StatusCode != status {
		c.t.Fatalf("%s %s: expected %d, got %d (%s)", method, path, status, resp.StatusCode, env.Message)
	}
	return env
}

func (c *apiClient) register(email string) auth.User {
	c.t.Helper()
	u, err := c.svc.Register(c.ctx, auth.RegisterInput{
		Email: email, Password: testPassword, Name: "Doe", Firstname: "Jo",
	})
	if err != nil {
		c.t.Fatalf("register %s: %v", email, err)
	}
	return u
}

func (c *apiClient) admin() auth.User {
	c.t.Helper()
	u, err := c.svc.EnsureAdmin(c.ctx, auth.RegisterInput{Email: "root@example.com", Password: testPassword})
	if err != nil {
		c.t.Fatalf("ensure admin: %v", err)
	}
	return u
}

func (c *apiClient) token(email string) string {
	c.t.Helper()
	s, err := c.svc.Login(c.ctx, email, testPassword)
	if err != nil {
		c.t.Fatalf("login %s: %v", email, err)
	}
	return s.Tokens.AccessToken
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return v
}
