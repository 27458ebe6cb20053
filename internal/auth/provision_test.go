package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"authcore.org/internal/auth"
	"authcore.org/internal/permission"
	"authcore.org/internal/store/memory"
)

func TestProvisionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for i := 0; i < 2; i++ {
		if err := auth.Provision(ctx, store, auth.DefaultCatalog()); err != nil {
			t.Fatalf("provision #%d: %v", i+1, err)
		}
	}
	catalog, err := store.Permissions().Catalog(ctx)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	// 13 + 9 + 1 + 5 + 15 + 5 + 1 -> 3 + 2 + 1 + 2 + 4 + 2 + 1 actions
	if len(catalog) != 15 {
		t.Fatalf("expected 15 permissions, got %d", len(catalog))
	}
	page, err := store.Groups().List(ctx, auth.NewListQuery("", "", "", "", auth.GroupSortFields))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Count != 3 {
		t.Fatalf("expected 3 system groups, got %d", page.Count)
	}
	admin, err := store.Groups().FindByAlias(ctx, auth.AliasAdmin)
	if err != nil || !admin.System {
		t.Fatalf("admin group: %+v %v", admin, err)
	}
	sets, err := store.Groups().Permissions(ctx, []int64{admin.ID})
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	if got := len(sets[admin.ID].Pairs()); got != len(catalog) {
		t.Fatalf("admin should hold the whole catalog, holds %d", got)
	}
}

func TestLoadCatalogActionForms(t *testing.T) {
	c, err := auth.LoadCatalog(strings.NewReader(`{
		"groups": [{"name": "Administrator", "alias": "admin"}],
		"resources": [
			{"name": "REPORT", "available_actions": 3},
			{"name": "EXPORT", "available_actions": "8"},
			{"name": "AUDIT", "available_actions": ["read", "delete", "bogus"]}
		]
	}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := [][]permission.Action{
		{permission.Read, permission.Create},
		{permission.Delete},
		{permission.Read, permission.Delete},
	}
	for i, rs := range c.Resources {
		got, err := rs.Actions()
		if err != nil {
			t.Fatalf("%s: %v", rs.Name, err)
		}
		if len(got) != len(want[i]) {
			t.Fatalf("%s: got %v, want %v", rs.Name, got, want[i])
		}
		for j := range got {
			if got[j] != want[i][j] {
				t.Fatalf("%s: got %v, want %v", rs.Name, got, want[i])
			}
		}
	}

	bad := auth.ResourceSpec{Name: "X", AvailableActions: []byte(`{"read":true}`)}
	if _, err := bad.Actions(); !errors.Is(err, permission.ErrNotSequence) {
		t.Fatalf("expected ErrNotSequence, got %v", err)
	}

	if _, err := auth.LoadCatalog(strings.NewReader(`{"unknown": 1}`)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestEnsureAdmin(t *testing.T) {
	f := newFixture(t)
	in := auth.RegisterInput{Email: " Root@Example.com ", Password: testPassword}

	u, err := f.svc.EnsureAdmin(f.ctx, in)
	if err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	if u.Email != "root@example.com" || !u.Protected || u.Name != "Administrator" {
		t.Fatalf("unexpected admin %+v", u)
	}
	ids := f.groupIDsOf(u.ID)
	if !hasID(ids, f.group(auth.AliasAdmin).ID) || !hasID(ids, f.group(auth.AliasUser).ID) {
		t.Fatalf("admin memberships %v", ids)
	}

	again, err := f.svc.EnsureAdmin(f.ctx, in)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if again.ID != u.ID {
		t.Fatalf("expected existing admin %d, got %d", u.ID, again.ID)
	}

	sess, err := f.svc.Login(f.ctx, "root@example.com", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	p, err := f.svc.Authenticate(f.ctx, sess.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !p.IsAdmin() {
		t.Fatal("principal should be admin")
	}

	_, err = f.svc.EnsureAdmin(f.ctx, auth.RegisterInput{Email: "ops@example.com", Password: "short"})
	if err == nil {
		t.Fatal("expected password policy error")
	}
}
