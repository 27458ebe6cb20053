package auth_test

import (
	"errors"
	"testing"
	"time"

	"authcore.org/internal/auth"
	"authcore.org/internal/permission"
)

func TestNewServiceRequiresDistinctSecrets(t *testing.T) {
	f := newFixture(t)
	if _, err := auth.NewService(f.store); err == nil {
		t.Fatal("expected error without secrets")
	}
	if _, err := auth.NewService(f.store, auth.WithSecrets("same", "same")); err == nil {
		t.Fatal("expected error for identical secrets")
	}
}

func TestRegisterJoinsUserGroup(t *testing.T) {
	f := newFixture(t)
	u, err := f.svc.Register(f.ctx, auth.RegisterInput{
		Email: " New@Example.com ", Password: testPassword, Name: "Doe", Firstname: "Jo",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Email != "new@example.com" {
		t.Fatalf("email not normalised: %q", u.Email)
	}
	if u.SecretKey == "" {
		t.Fatal("secret key not generated")
	}
	if ids := f.groupIDsOf(u.ID); len(ids) != 1 || ids[0] != f.group(auth.AliasUser).ID {
		t.Fatalf("unexpected groups: %v", ids)
	}

	_, err = f.svc.Register(f.ctx, auth.RegisterInput{
		Email: "new@example.com", Password: testPassword, Name: "Doe", Firstname: "Jo",
	})
	expectKind(t, err, auth.KindConflict)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(f.ctx, auth.RegisterInput{Email: "a@b.co"})
	expectKind(t, err, auth.KindInvalid)

	_, err = f.svc.Register(f.ctx, auth.RegisterInput{Email: "nope", Password: testPassword})
	expectKind(t, err, auth.KindInvalid)

	_, err = f.svc.Register(f.ctx, auth.RegisterInput{Email: "a@b.co", Password: "weakpass"})
	expectKind(t, err, auth.KindInvalid)
}

func TestRegisterNamesOptional(t *testing.T) {
	f := newFixture(t)
	u, err := f.svc.Register(f.ctx, auth.RegisterInput{Email: "bare@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Name != "" || u.Firstname != "" {
		t.Fatalf("names should default to empty: %+v", u)
	}
}

func TestLoginAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	u := f.user("jo@example.com", false)

	sess, err := f.svc.Login(f.ctx, "JO@example.com", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.User.ID != u.ID {
		t.Fatalf("unexpected user: %+v", sess.User)
	}
	if sess.Tokens.AccessToken == "" || sess.Tokens.RenewToken == "" {
		t.Fatal("tokens missing")
	}
	if sess.Tokens.AccessToken == sess.Tokens.RenewToken {
		t.Fatal("access and renew token must differ")
	}
	if !sess.Tokens.RenewExpiresAt.Equal(f.clock.Now().Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected renew expiry: %v", sess.Tokens.RenewExpiresAt)
	}

	p, err := f.svc.Authenticate(f.ctx, sess.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.User.ID != u.ID || p.IsAdmin() {
		t.Fatalf("unexpected principal: %+v", p)
	}

	// a renewal token is not an access token
	_, err = f.svc.Authenticate(f.ctx, sess.Tokens.RenewToken)
	expectKind(t, err, auth.KindForbidden)
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)
	f.user("jo@example.com", false)

	_, err := f.svc.Login(f.ctx, "", "")
	expectKind(t, err, auth.KindInvalid)

	_, err = f.svc.Login(f.ctx, "ghost@example.com", testPassword)
	expectKind(t, err, auth.KindNotFound)

	_, err = f.svc.Login(f.ctx, "jo@example.com", "Wr0ng!pass")
	expectKind(t, err, auth.KindUnauthorized)
}

func TestAuthenticateErrorKinds(t *testing.T) {
	f := newFixture(t)
	f.user("jo@example.com", false)
	sess, err := f.svc.Login(f.ctx, "jo@example.com", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	token := sess.Tokens.AccessToken

	_, err = f.svc.Authenticate(f.ctx, "")
	expectKind(t, err, auth.KindInvalid)

	_, err = f.svc.Authenticate(f.ctx, "not-a-jwt")
	expectKind(t, err, auth.KindForbidden)

	_, err = f.svc.Authenticate(f.ctx, token[:len(token)-2]+"xx")
	expectKind(t, err, auth.KindForbidden)

	f.clock.Advance(16 * time.Minute)
	_, err = f.svc.Authenticate(f.ctx, token)
	expectKind(t, err, auth.KindUnauthorized)
}

func TestAuthenticateNotYetValid(t *testing.T) {
	f := newFixture(t)
	f.user("jo@example.com", false)

	ahead := newClock()
	ahead.Advance(time.Hour)
	future, err := auth.NewService(f.store,
		auth.WithSecrets("access-secret", "renew-secret"),
		auth.WithClock(ahead.Now),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	sess, err := future.Login(f.ctx, "jo@example.com", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	_, err = f.svc.Authenticate(f.ctx, sess.Tokens.AccessToken)
	expectKind(t, err, auth.KindBadRequest)
}

func TestRenewLifecycle(t *testing.T) {
	f := newFixture(t)
	f.user("jo@example.com", false)
	start := f.clock.Now()
	sess, err := f.svc.Login(f.ctx, "jo@example.com", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// access token still active: not eligible yet
	_, err = f.svc.Renew(f.ctx, sess.Tokens.RenewToken)
	expectKind(t, err, auth.KindUnauthorized)

	f.clock.Advance(20 * time.Minute)
	renewed, err := f.svc.Renew(f.ctx, sess.Tokens.RenewToken)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if renewed.Tokens.RenewToken == sess.Tokens.RenewToken {
		t.Fatal("renewal must mint a new token")
	}
	if _, err := f.svc.Authenticate(f.ctx, renewed.Tokens.AccessToken); err != nil {
		t.Fatalf("authenticate renewed: %v", err)
	}

	// consumed
	_, err = f.svc.Renew(f.ctx, sess.Tokens.RenewToken)
	expectKind(t, err, auth.KindInvalid)

	recs, err := f.store.RenewTokens().ListByUser(f.ctx, sess.User.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected one live record, got %d", len(recs))
	}
	if !recs[0].OriginalStart.Equal(start) {
		t.Fatalf("original start not carried: %v vs %v", recs[0].OriginalStart, start)
	}
}

func TestRenewAfterWindow(t *testing.T) {
	f := newFixture(t)
	f.user("jo@example.com", false)
	sess, err := f.svc.Login(f.ctx, "jo@example.com", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	f.clock.Advance(8 * 24 * time.Hour)
	_, err = f.svc.Renew(f.ctx, sess.Tokens.RenewToken)
	expectKind(t, err, auth.KindUnauthorized)

	_, err = f.svc.Renew(f.ctx, "unknown")
	expectKind(t, err, auth.KindInvalid)
}

func TestChangePasswordInvalidatesTokens(t *testing.T) {
	f := newFixture(t)
	u := f.user("jo@example.com", false)
	sess, err := f.svc.Login(f.ctx, "jo@example.com", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	fresh, err := f.svc.ChangePassword(f.ctx, u.ID, testPassword, "N3w&Different")
	if err != nil {
		t.Fatalf("change password: %v", err)
	}

	_, err = f.svc.Authenticate(f.ctx, sess.Tokens.AccessToken)
	expectKind(t, err, auth.KindForbidden)

	f.clock.Advance(20 * time.Minute)
	_, err = f.svc.Renew(f.ctx, sess.Tokens.RenewToken)
	expectKind(t, err, auth.KindForbidden)

	f.clock.Advance(-20 * time.Minute)
	if _, err := f.svc.Authenticate(f.ctx, fresh.Tokens.AccessToken); err != nil {
		t.Fatalf("new token rejected: %v", err)
	}
	if _, err := f.svc.Login(f.ctx, "jo@example.com", "N3w&Different"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestChangePasswordRules(t *testing.T) {
	f := newFixture(t)
	u := f.user("jo@example.com", false)

	cases := []struct {
		name     string
		old, new string
		want     auth.Kind
	}{
		{"missing", "", "x", auth.KindInvalid},
		{"wrong old", "Wr0ng!pass", "N3w&Different", auth.KindBadRequest},
		{"same", testPassword, testPassword, auth.KindBadRequest},
		{"policy", testPassword, "alllowercase", auth.KindBadRequest},
		{"too close", testPassword, "Str0ng!pasS", auth.KindBadRequest},
	}
	for _, tc := range cases {
		_, err := f.svc.ChangePassword(f.ctx, u.ID, tc.old, tc.new)
		if got := auth.KindOf(err); got != tc.want {
			t.Fatalf("%s: expected %s, got %s (%v)", tc.name, tc.want, got, err)
		}
	}
}

func TestCheckAllAndAny(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin@example.com", true, auth.AliasAdmin)
	plain := f.user("jo@example.com", false)

	res, err := f.svc.CheckAll(f.ctx, admin.ID, []permission.Pair{
		permission.P(auth.ResourceGroup, permission.Delete),
		permission.P(auth.ResourceUser, permission.Update),
	})
	if err != nil || !res.OK {
		t.Fatalf("admin should hold everything: %+v %v", res, err)
	}

	required := []permission.Pair{
		permission.P(auth.ResourceUser, permission.Read),
		permission.P(auth.ResourceGroup, permission.Read),
	}
	res, err = f.svc.CheckAny(f.ctx, plain.ID, required)
	if err != nil {
		t.Fatalf("check any: %v", err)
	}
	if res.OK || len(res.Missing) != len(required) {
		t.Fatalf("unexpected result: %+v", res)
	}
	merr := auth.MissingPermissions(res)
	expectKind(t, merr, auth.KindUnauthorized)
	var e *auth.Error
	if !errors.As(merr, &e) || e.Data == nil {
		t.Fatalf("missing list not attached: %v", merr)
	}
}
