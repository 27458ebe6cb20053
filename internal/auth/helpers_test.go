package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"authcore.org/internal/auth"
	"authcore.org/internal/store/memory"
)

const testPassword = "Str0ng!pass"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	svc   *auth.Service
	clock *fakeClock
}

func newFixture(t *testing.T, opts ...auth.ServiceOption) *fixture {
	t.Helper()
	clock := newClock()
	store := memory.New().WithClock(clock.Now)
	ctx := context.Background()
	if err := auth.Provision(ctx, store, auth.DefaultCatalog()); err != nil {
		t.Fatalf("provision: %v", err)
	}
	base := []auth.ServiceOption{
		auth.WithSecrets("access-secret", "renew-secret"),
		auth.WithClock(clock.Now),
		auth.WithAccessTTL(15 * time.Minute),
		auth.WithRenewTTL(7 * 24 * time.Hour),
	}
	svc, err := auth.NewService(store, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{t: t, ctx: ctx, store: store, svc: svc, clock: clock}
}

// user creates an account directly in the store and puts it in the given
// alias groups (the user-alias group is always added).
func (f *fixture) user(email string, protected bool, aliases ...string) auth.User {
	f.t.Helper()
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		f.t.Fatalf("hash: %v", err)
	}
	u, err := f.store.Users().Create(f.ctx, auth.User{
		Email:        email,
		Name:         "Doe",
		Firstname:    "Jo",
		PasswordHash: hash,
		SecretKey:    "secret-" + email,
		Protected:    protected,
	})
	if err != nil {
		f.t.Fatalf("create user: %v", err)
	}
	ids := []int64{f.group(auth.AliasUser).ID}
	for _, a := range aliases {
		ids = append(ids, f.group(a).ID)
	}
	if err := f.store.Users().SetGroups(f.ctx, u.ID, ids); err != nil {
		f.t.Fatalf("set groups: %v", err)
	}
	return u
}

func (f *fixture) group(alias string) auth.Group {
	f.t.Helper()
	g, err := f.store.Groups().FindByAlias(f.ctx, alias)
	if err != nil {
		f.t.Fatalf("find %s group: %v", alias, err)
	}
	return g
}

func (f *fixture) namedGroup(name string) auth.Group {
	f.t.Helper()
	g, err := f.store.Groups().FindByName(f.ctx, name)
	if err != nil {
		f.t.Fatalf("find group %s: %v", name, err)
	}
	return g
}

func (f *fixture) groupIDsOf(userID int64) []int64 {
	f.t.Helper()
	groups, err := f.store.Users().Groups(f.ctx, userID)
	if err != nil {
		f.t.Fatalf("groups: %v", err)
	}
	out := make([]int64, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.ID)
	}
	return out
}

func expectKind(t *testing.T, err error, want auth.Kind) {
	t.Helper()
	if got := auth.KindOf(err); got != want {
		t.Fatalf("expected %s error, got %s (%v)", want, got, err)
	}
}

func hasID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
