package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"authcore.org/internal/permission"
)

// Sort columns accepted by the listings.
var (
	UserSortFields  = []string{"name", "firstname", "email", "created_at", "id"}
	GroupSortFields = []string{"name", "created_at", "id"}
)

// CreateGroup adds a non-system group. Names are unique case-insensitively.
func (s *Service) CreateGroup(ctx context.Context, name string) (Group, error) {
	name = strings.TrimSpace(name)
	if err := validateGroupName(name); err != nil {
		return Group{}, err
	}
	var out Group
	err := s.store.InTx(ctx, func(st Store) error {
		if err := ensureGroupNameFree(ctx, st, name, 0); err != nil {
			return err
		}
		var err error
		out, err = st.Groups().Create(ctx, Group{Name: name})
		return err
	})
	return out, err
}

// RenameGroup renames a non-system group.
func (s *Service) RenameGroup(ctx context.Context, id int64, name string) (Group, error) {
	name = strings.TrimSpace(name)
	if err := validateGroupName(name); err != nil {
		return Group{}, err
	}
	var out Group
	err := s.store.InTx(ctx, func(st Store) error {
		g, err := st.Groups().Find(ctx, id)
		if err != nil {
			return err
		}
		if g.System {
			return newError(KindForbidden, "system groups cannot be renamed")
		}
		if g.Name == name {
			out = g
			return ErrNoChange
		}
		if err := ensureGroupNameFree(ctx, st, name, id); err != nil {
			return err
		}
		out, err = st.Groups().Rename(ctx, id, name)
		return err
	})
	return out, err
}

// DeleteGroup detaches every member and tombstones a non-system group.
func (s *Service) DeleteGroup(ctx context.Context, id int64) error {
	return s.store.InTx(ctx, func(st Store) error {
		g, err := st.Groups().Find(ctx, id)
		if err != nil {
			return err
		}
		if g.System {
			return newError(KindForbidden, "system groups cannot be deleted")
		}
		return st.Groups().Delete(ctx, id)
	})
}

func (s *Service) Group(ctx context.Context, id int64) (Group, error) {
	return s.store.Groups().Find(ctx, id)
}

func (s *Service) ListGroups(ctx context.Context, q ListQuery) (Page[Group], error) {
	return s.store.Groups().List(ctx, q)
}

// GroupMembers lists the live users of a group.
func (s *Service) GroupMembers(ctx context.Context, id int64, q ListQuery) (Page[User], error) {
	if _, err := s.store.Groups().Find(ctx, id); err != nil {
		return Page[User]{}, err
	}
	return s.store.Groups().ListMembers(ctx, id, q)
}

// GroupPermissions returns the permission set held by one group.
func (s *Service) GroupPermissions(ctx context.Context, id int64) (permission.Set, error) {
	if _, err := s.store.Groups().Find(ctx, id); err != nil {
		return nil, err
	}
	return effectivePermissions(ctx, s.store, []int64{id})
}

// PermissionSnapshot previews the effective set a user would have as a
// member of exactly the given groups. Unknown ids are ignored.
func (s *Service) PermissionSnapshot(ctx context.Context, ids []int64) (permission.Set, error) {
	if len(ids) == 0 {
		return nil, newError(KindBadRequest, "groups are required")
	}
	groups, err := s.store.Groups().FindMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	return effectivePermissions(ctx, s.store, groupIDs(groups))
}

// Catalog lists every permission known to the system.
func (s *Service) Catalog(ctx context.Context) ([]Permission, error) {
	return s.store.Permissions().Catalog(ctx)
}

// CatalogSet returns the catalog grouped by resource.
func (s *Service) CatalogSet(ctx context.Context) (permission.Set, error) {
	perms, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	pairs := make([]permission.Pair, 0, len(perms))
	for _, p := range perms {
		pairs = append(pairs, p.Pair())
	}
	return permission.FromPairs(pairs), nil
}

func (s *Service) User(ctx context.Context, id int64) (User, error) {
	return s.store.Users().Find(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, q ListQuery) (Page[User], error) {
	return s.store.Users().List(ctx, q)
}

func (s *Service) UserGroups(ctx context.Context, id int64) ([]Group, error) {
	if _, err := s.store.Users().Find(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Users().Groups(ctx, id)
}

// UserPermissions returns the effective set of a user.
func (s *Service) UserPermissions(ctx context.Context, id int64) (permission.Set, error) {
	p, err := s.PrincipalFor(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Permissions, nil
}

// EditUser updates profile fields. Empty updates are rejected.
func (s *Service) EditUser(ctx context.Context, id int64, upd UserUpdate) (User, error) {
	if upd.Empty() {
		return User{}, newError(KindBadRequest, "nothing to update")
	}
	if upd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		if !ValidEmail(email) {
			return User{}, newError(KindBadRequest, "invalid email address")
		}
		upd.Email = &email
	}
	for _, f := range []*string{upd.Name, upd.Firstname} {
		if f == nil {
			continue
		}
		*f = strings.TrimSpace(*f)
		if *f == "" || len(*f) > MaxNameLength {
			return User{}, newError(KindBadRequest, "name and firstname must be 1 to %d characters", MaxNameLength)
		}
	}
	var out User
	err := s.store.InTx(ctx, func(st Store) error {
		if upd.Email != nil {
			other, err := st.Users().FindByEmail(ctx, *upd.Email)
			switch {
			case err == nil && other.ID != id:
				return newError(KindConflict, "email already registered")
			case err != nil && !errors.Is(err, ErrNotFound):
				return err
			}
		}
		var err error
		out, err = st.Users().Update(ctx, id, upd)
		return err
	})
	return out, err
}

// DeleteUser tombstones an account. Protected users and the actor itself
// cannot be deleted.
func (s *Service) DeleteUser(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return newError(KindForbidden, "cannot delete own account")
	}
	return s.store.InTx(ctx, func(st Store) error {
		u, err := st.Users().Find(ctx, id)
		if err != nil {
			return err
		}
		if u.Protected {
			return newError(KindForbidden, "protected users cannot be deleted")
		}
		return st.Users().Delete(ctx, id)
	})
}

// RestoreUser brings a tombstoned account back.
func (s *Service) RestoreUser(ctx context.Context, id int64) (User, error) {
	var out User
	err := s.store.InTx(ctx, func(st Store) error {
		if err := st.Users().Restore(ctx, id); err != nil {
			return err
		}
		var err error
		out, err = st.Users().Find(ctx, id)
		return err
	})
	return out, err
}

// SessionInfo describes one renewal record as a login session.
type SessionInfo struct {
	StartedAt     time.Time `json:"started_at"`
	LastRenewedAt time.Time `json:"last_renewed_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Renewable     bool      `json:"renewable"`
	Duration      string    `json:"duration"`
	Remaining     string    `json:"remaining,omitempty"`
}

// Activity lists a user's sessions, newest first. Without all only the
// latest one is returned.
func (s *Service) Activity(ctx context.Context, userID int64, all bool) ([]SessionInfo, error) {
	if _, err := s.store.Users().Find(ctx, userID); err != nil {
		return nil, err
	}
	limit := 1
	if all {
		limit = 0
	}
	recs, err := s.store.RenewTokens().ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]SessionInfo, 0, len(recs))
	for _, rec := range recs {
		start := rec.OriginalStart
		if start.IsZero() {
			start = rec.CreatedAt
		}
		info := SessionInfo{
			StartedAt:     start,
			LastRenewedAt: rec.CreatedAt,
			ExpiresAt:     rec.ExpiryDate,
			Renewable:     now.Before(rec.ExpiryDate),
			Duration:      HumanDuration(now.Sub(start)),
		}
		if info.Renewable {
			info.Remaining = HumanDuration(rec.ExpiryDate.Sub(now))
		}
		out = append(out, info)
	}
	return out, nil
}

// HumanDuration renders d as "2 days, 1 hour, 5 minutes" with second
// precision, omitting zero units.
func HumanDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = -secs
	}
	units := []struct {
		name string
		size int64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}
	var parts []string
	for _, u := range units {
		n := secs / u.size
		secs %= u.size
		if n == 0 {
			continue
		}
		if n == 1 {
			parts = append(parts, fmt.Sprintf("1 %s", u.name))
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}
	if len(parts) == 0 {
		return "0 seconds"
	}
	return strings.Join(parts, ", ")
}

func validateGroupName(name string) error {
	if name == "" {
		return newError(KindInvalid, "group name is required")
	}
	if len(name) > MaxGroupNameLength {
		return newError(KindBadRequest, "group name is limited to %d characters", MaxGroupNameLength)
	}
	return nil
}

func ensureGroupNameFree(ctx context.Context, st Store, name string, self int64) error {
	other, err := st.Groups().FindByName(ctx, name)
	switch {
	case err == nil && other.ID != self:
		return newError(KindConflict, "group name already used")
	case err != nil && !errors.Is(err, ErrNotFound):
		return err
	}
	return nil
}
