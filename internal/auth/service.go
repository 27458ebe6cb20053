package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"authcore.org/internal/permission"
)

const (
	defaultAccessTTL        = 15 * time.Minute
	defaultRenewTTL         = 7 * 24 * time.Hour
	defaultClockTolerance   = 5 * time.Second
	defaultPasswordDistance = 3
)

// Service implements sessions, membership and permission management on
// top of a Store.
type Service struct {
	store Store
	now   func() time.Time

	issuer           string
	accessSecret     string
	renewSecret      string
	accessTTL        time.Duration
	renewTTL         time.Duration
	clockTolerance   time.Duration
	passwordDistance int
	newSecret        func() string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithSecrets sets the shared secrets mixed into access and renewal token keys.
func WithSecrets(access, renew string) ServiceOption {
	return func(s *Service) error {
		access, renew = strings.TrimSpace(access), strings.TrimSpace(renew)
		if access == "" || renew == "" {
			return errors.New("auth: access and renew secrets are required")
		}
		if access == renew {
			return errors.New("auth: access and renew secrets must differ")
		}
		s.accessSecret, s.renewSecret = access, renew
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRenewTTL configures how long a renewal record stays usable.
func WithRenewTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.renewTTL = ttl
		}
		return nil
	}
}

// WithClockTolerance sets the leeway applied to exp/nbf checks.
func WithClockTolerance(d time.Duration) ServiceOption {
	return func(s *Service) error {
		if d >= 0 {
			s.clockTolerance = d
		}
		return nil
	}
}

// WithPasswordDistance sets the minimum edit distance between an old and a
// new password, exclusive.
func WithPasswordDistance(n int) ServiceOption {
	return func(s *Service) error {
		if n >= 0 {
			s.passwordDistance = n
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithSecretGenerator overrides how per-user secrets are generated.
func WithSecretGenerator(fn func() string) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.newSecret = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	svc := &Service{
		store:            store,
		now:              time.Now,
		issuer:           "authcore",
		accessTTL:        defaultAccessTTL,
		renewTTL:         defaultRenewTTL,
		clockTolerance:   defaultClockTolerance,
		passwordDistance: defaultPasswordDistance,
		newSecret:        uuid.NewString,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if svc.accessSecret == "" || svc.renewSecret == "" {
		return nil, errors.New("auth: token secrets are not configured")
	}
	return svc, nil
}

// Store exposes the underlying store.
func (s *Service) Store() Store { return s.store }

// principal loads the user's groups and derives the effective permission set.
func principal(ctx context.Context, st Store, u User) (Principal, error) {
	groups, err := st.Users().Groups(ctx, u.ID)
	if err != nil {
		return Principal{}, err
	}
	perms, err := effectivePermissions(ctx, st, groupIDs(groups))
	if err != nil {
		return Principal{}, err
	}
	return Principal{User: u, Groups: groups, Permissions: perms}, nil
}

func effectivePermissions(ctx context.Context, st Store, ids []int64) (permission.Set, error) {
	if len(ids) == 0 {
		return permission.Set{}, nil
	}
	byGroup, err := st.Groups().Permissions(ctx, ids)
	if err != nil {
		return nil, err
	}
	sets := make([]permission.Set, 0, len(byGroup))
	for _, id := range ids {
		if set, ok := byGroup[id]; ok {
			sets = append(sets, set)
		}
	}
	return permission.Merge(sets), nil
}

// PrincipalFor loads the principal of a live user.
func (s *Service) PrincipalFor(ctx context.Context, userID int64) (Principal, error) {
	u, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	return principal(ctx, s.store, u)
}
