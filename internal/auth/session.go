package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"authcore.org/internal/obs"
	"authcore.org/internal/permission"
)

// RegisterInput is the payload of a self-service registration.
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	Firstname string `json:"firstname"`
}

// Session is what a client receives after authenticating.
type Session struct {
	User        User           `json:"user"`
	Groups      []Group        `json:"groups"`
	Permissions permission.Set `json:"permissions"`
	Tokens      TokenPair      `json:"tokens"`
}

// Register creates an account that belongs to the user-alias group. Name
// and firstname are optional; a rejected email or password is
// KindInvalid.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	in.Firstname = strings.TrimSpace(in.Firstname)
	if !ValidEmail(in.Email) {
		return User{}, newError(KindInvalid, "email address %q not accepted", in.Email)
	}
	if len(in.Name) > MaxNameLength || len(in.Firstname) > MaxNameLength {
		return User{}, newError(KindBadRequest, "name and firstname are limited to %d characters", MaxNameLength)
	}
	if err := CheckPasswordPolicy(in.Password); err != nil {
		var e *Error
		if errors.As(err, &e) {
			return User{}, newError(KindInvalid, "%s", e.Message)
		}
		return User{}, err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}

	var created User
	err = s.store.InTx(ctx, func(st Store) error {
		if _, err := st.Users().FindByEmail(ctx, in.Email); err == nil {
			return newError(KindConflict, "email already registered")
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		base, err := st.Groups().FindByAlias(ctx, AliasUser)
		if err != nil {
			return err
		}
		created, err = st.Users().Create(ctx, User{
			Email:        in.Email,
			Name:         in.Name,
			Firstname:    in.Firstname,
			PasswordHash: hash,
			SecretKey:    s.newSecret(),
		})
		if err != nil {
			return err
		}
		return st.Users().SetGroups(ctx, created.ID, []int64{base.ID})
	})
	if err != nil {
		obs.AuthEvent("register", "failure")
		return User{}, err
	}
	obs.AuthEvent("register", "success")
	return created, nil
}

// Login checks credentials and mints a fresh token pair.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, newError(KindInvalid, "email and password are required")
	}
	var out Session
	err := s.store.InTx(ctx, func(st Store) error {
		u, err := st.Users().FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if err := VerifyPassword(u.PasswordHash, password); err != nil {
			return &Error{Kind: KindUnauthorized, Message: "wrong password", Err: err}
		}
		out, err = s.openSession(ctx, st, u, time.Time{})
		return err
	})
	if err != nil {
		obs.AuthEvent("login", "failure")
		return Session{}, err
	}
	obs.AuthEvent("login", "success")
	return out, nil
}

// Authenticate verifies an access token and returns the caller's
// principal. The permission set is recomputed on every call.
func (s *Service) Authenticate(ctx context.Context, raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, newError(KindInvalid, "no token provided")
	}
	peek, err := peekClaims(raw)
	if err != nil {
		return Principal{}, tokenError(err)
	}
	u, err := s.store.Users().Find(ctx, peek.UserID)
	if err != nil {
		return Principal{}, err
	}
	if _, err := s.verify(raw, u, accessToken, false); err != nil {
		return Principal{}, tokenError(err)
	}
	return principal(ctx, s.store, u)
}

// Renew exchanges a renewal token for a new pair. The token must be known,
// its paired access token must have expired, and the stored record must
// still be inside its renewal window. The record is consumed.
func (s *Service) Renew(ctx context.Context, raw string) (Session, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Session{}, newError(KindInvalid, "no renew token provided")
	}
	var out Session
	err := s.store.InTx(ctx, func(st Store) error {
		rec, err := st.RenewTokens().FindByToken(ctx, raw)
		if errors.Is(err, ErrNotFound) {
			return newError(KindInvalid, "renew token is not known")
		}
		if err != nil {
			return err
		}
		peek, err := peekClaims(raw)
		if err != nil || peek.UserID != rec.UserID {
			return &Error{Kind: KindForbidden, Message: "invalid token", Err: err}
		}
		u, err := st.Users().Find(ctx, rec.UserID)
		if err != nil {
			return err
		}
		claims, err := s.verify(raw, u, renewToken, true)
		if err != nil {
			return tokenError(err)
		}

		now := s.now()
		if claims.ExpiresAt == nil {
			return newError(KindForbidden, "invalid token")
		}
		if now.Before(claims.ExpiresAt.Time) {
			return newError(KindUnauthorized, "token is still active")
		}
		if !now.Before(rec.ExpiryDate) {
			return newError(KindUnauthorized, "renew token expired")
		}

		if err := st.RenewTokens().Delete(ctx, rec.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return newError(KindInvalid, "renew token is not known")
			}
			return err
		}
		start := rec.OriginalStart
		if start.IsZero() {
			start = rec.CreatedAt
		}
		out, err = s.openSession(ctx, st, u, start)
		return err
	})
	if err != nil {
		obs.AuthEvent("renew", "failure")
		return Session{}, err
	}
	obs.AuthEvent("renew", "success")
	return out, nil
}

// ChangePassword replaces the password and rotates the user's secret, so
// every token issued before stops verifying. The caller gets a new pair.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) (Session, error) {
	if oldPassword == "" || newPassword == "" {
		return Session{}, newError(KindInvalid, "old and new password are required")
	}
	var out Session
	err := s.store.InTx(ctx, func(st Store) error {
		u, err := st.Users().Find(ctx, userID)
		if err != nil {
			return err
		}
		if err := VerifyPassword(u.PasswordHash, oldPassword); err != nil {
			return &Error{Kind: KindBadRequest, Message: "wrong password", Err: err}
		}
		if oldPassword == newPassword {
			return newError(KindBadRequest, "new password must differ from the old one")
		}
		if err := CheckPasswordPolicy(newPassword); err != nil {
			return err
		}
		if Levenshtein(oldPassword, newPassword) <= s.passwordDistance {
			return newError(KindBadRequest, "new password is too close to the old one")
		}
		hash, err := HashPassword(newPassword)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
		u.SecretKey = s.newSecret()
		if err := st.Users().SetCredentials(ctx, u.ID, u.PasswordHash, u.SecretKey); err != nil {
			return err
		}
		out, err = s.openSession(ctx, st, u, time.Time{})
		return err
	})
	if err != nil {
		obs.AuthEvent("password_change", "failure")
		return Session{}, err
	}
	obs.AuthEvent("password_change", "success")
	return out, nil
}

// openSession mints an access token and a renewal token sharing the same
// signed expiry, and stores the renewal record. A zero start means a new
// session begins now.
func (s *Service) openSession(ctx context.Context, st Store, u User, start time.Time) (Session, error) {
	now := s.now()
	if start.IsZero() {
		start = now
	}
	accessExp := now.Add(s.accessTTL)
	access, err := s.sign(u, accessToken, now, accessExp)
	if err != nil {
		return Session{}, err
	}
	renew, err := s.sign(u, renewToken, now, accessExp)
	if err != nil {
		return Session{}, err
	}
	rec, err := st.RenewTokens().Create(ctx, RenewToken{
		Token:         renew,
		UserID:        u.ID,
		OriginalStart: start,
		ExpiryDate:    now.Add(s.renewTTL),
		CreatedAt:     now,
	})
	if err != nil {
		return Session{}, err
	}
	p, err := principal(ctx, st, u)
	if err != nil {
		return Session{}, err
	}
	return Session{
		User:        u,
		Groups:      p.Groups,
		Permissions: p.Permissions,
		Tokens: TokenPair{
			AccessToken:     access,
			AccessExpiresAt: accessExp,
			RenewToken:      renew,
			RenewExpiresAt:  rec.ExpiryDate,
		},
	}, nil
}
