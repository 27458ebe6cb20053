package auth

import (
	"context"

	"authcore.org/internal/obs"
	"authcore.org/internal/permission"
)

// Principal is an authenticated user with the groups and effective
// permissions computed for the current request.
type Principal struct {
	User        User           `json:"user"`
	Groups      []Group        `json:"groups"`
	Permissions permission.Set `json:"permissions"`
}

// HasAll requires every pair.
func (p Principal) HasAll(pairs ...permission.Pair) permission.Result {
	res := permission.HasAll(p.Permissions, pairs)
	obs.PermissionCheck("all", res.OK)
	return res
}

// HasAny requires at least one pair.
func (p Principal) HasAny(pairs ...permission.Pair) permission.Result {
	res := permission.HasAny(p.Permissions, pairs)
	obs.PermissionCheck("any", res.OK)
	return res
}

// IsSelf reports whether id names the principal itself.
func (p Principal) IsSelf(id int64) bool {
	return p.User.ID != 0 && p.User.ID == id
}

// IsAdmin reports membership of the admin-alias group.
func (p Principal) IsAdmin() bool { return hasAlias(p.Groups, AliasAdmin) }

// CheckAll loads userID's principal and evaluates pairs with HasAll.
func (s *Service) CheckAll(ctx context.Context, userID int64, pairs []permission.Pair) (permission.Result, error) {
	p, err := s.PrincipalFor(ctx, userID)
	if err != nil {
		return permission.Result{}, err
	}
	return p.HasAll(pairs...), nil
}

// CheckAny loads userID's principal and evaluates pairs with HasAny.
func (s *Service) CheckAny(ctx context.Context, userID int64, pairs []permission.Pair) (permission.Result, error) {
	p, err := s.PrincipalFor(ctx, userID)
	if err != nil {
		return permission.Result{}, err
	}
	return p.HasAny(pairs...), nil
}

// MissingPermissions builds the error returned when a guard fails.
func MissingPermissions(res permission.Result) error {
	if res.OK {
		return nil
	}
	return &Error{
		Kind:    KindUnauthorized,
		Message: "missing permission(s)",
		Data:    map[string]any{"list": res.Missing},
	}
}

// Pairs that let a caller see numeric ids in listings and views.
var (
	UserIDVisibility = []permission.Pair{
		permission.P(ResourceUser, permission.Update),
		permission.P(ResourceUser, permission.Delete),
		permission.P(ResourceUserGroup, permission.Read),
		permission.P(ResourceUserPermission, permission.Read),
		permission.P(ResourceUserActivity, permission.Read),
	}
	GroupListIDVisibility = []permission.Pair{
		permission.P(ResourceUser, permission.Read),
		permission.P(ResourceGroup, permission.Update),
		permission.P(ResourceGroup, permission.Delete),
		permission.P(ResourceGroupPermission, permission.Read),
		permission.P(ResourceGroupPermission, permission.Update),
	}
	GroupViewIDVisibility = []permission.Pair{
		permission.P(ResourceUserGroup, permission.Read),
		permission.P(ResourceUserPermission, permission.Read),
		permission.P(ResourceGroupPermission, permission.Read),
	}
)
