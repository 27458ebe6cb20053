package auth

import (
	"context"
	"time"

	"authcore.org/internal/permission"
)

// Store is the persistence boundary of the auth core. Multi-step
// mutations run through InTx; the Store handed to fn must be used for
// every call made inside the transaction.
type Store interface {
	Users() UserStore
	Groups() GroupStore
	Permissions() PermissionStore
	RenewTokens() RenewTokenStore
	InTx(ctx context.Context, fn func(Store) error) error
}

// UserStore persists accounts. Lookups only see live (not deleted) users.
type UserStore interface {
	Create(ctx context.Context, u User) (User, error)
	Find(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	// FindMany returns the live users among ids; unknown ids are skipped.
	FindMany(ctx context.Context, ids []int64) ([]User, error)
	Update(ctx context.Context, id int64, upd UserUpdate) (User, error)
	SetCredentials(ctx context.Context, id int64, passwordHash, secretKey string) error
	Delete(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) error
	List(ctx context.Context, q ListQuery) (Page[User], error)
	Groups(ctx context.Context, userID int64) ([]Group, error)
	// SetGroups replaces the user's memberships with groupIDs.
	SetGroups(ctx context.Context, userID int64, groupIDs []int64) error
}

// GroupStore persists groups, their members and their permission edges.
type GroupStore interface {
	Create(ctx context.Context, g Group) (Group, error)
	Find(ctx context.Context, id int64) (Group, error)
	FindByName(ctx context.Context, name string) (Group, error)
	FindByAlias(ctx context.Context, alias string) (Group, error)
	FindMany(ctx context.Context, ids []int64) ([]Group, error)
	Rename(ctx context.Context, id int64, name string) (Group, error)
	// Delete tombstones the group and drops its member and permission edges.
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, q ListQuery) (Page[Group], error)
	Members(ctx context.Context, groupID int64) ([]User, error)
	ListMembers(ctx context.Context, groupID int64, q ListQuery) (Page[User], error)
	AddUsers(ctx context.Context, groupID int64, userIDs []int64) error
	RemoveUsers(ctx context.Context, groupID int64, userIDs []int64) error
	// Permissions returns the permission set held by each of groupIDs.
	Permissions(ctx context.Context, groupIDs []int64) (map[int64]permission.Set, error)
	// SetPermissions clears the group's permissions and sets perms.
	SetPermissions(ctx context.Context, groupID int64, perms []Permission) error
}

// PermissionStore owns the resource/permission catalog.
type PermissionStore interface {
	EnsureResource(ctx context.Context, name string) (Resource, error)
	Ensure(ctx context.Context, resourceID int64, action permission.Action) (Permission, error)
	Catalog(ctx context.Context) ([]Permission, error)
}

// RenewTokenStore persists renewal token records.
type RenewTokenStore interface {
	Create(ctx context.Context, t RenewToken) (RenewToken, error)
	FindByToken(ctx context.Context, token string) (RenewToken, error)
	// Delete removes one record and fails with ErrNotFound when no row
	// was affected.
	Delete(ctx context.Context, id int64) error
	// ListExpired returns up to limit records with expiry_date before cutoff,
	// oldest first.
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]RenewToken, error)
	// ListByUser returns the user's records, newest first; limit <= 0 means all.
	ListByUser(ctx context.Context, userID int64, limit int) ([]RenewToken, error)
}
