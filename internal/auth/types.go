package auth

import (
	"time"

	"authcore.org/internal/permission"
)

// Alias values mark the two groups the membership rules treat specially.
const (
	AliasUser  = "user"
	AliasAdmin = "admin"
)

// Resources guarded by the API.
const (
	ResourceUser            = "USER"
	ResourceUserActivity    = "USER_ACTIVITY"
	ResourceUserPermission  = "USER_PERMISSION"
	ResourceUserGroup       = "USER_GROUP"
	ResourceGroup           = "GROUP"
	ResourceGroupPermission = "GROUP_PERMISSION"
	ResourcePermission      = "PERMISSION"
)

// Field limits.
const (
	MaxEmailLength     = 100
	MaxNameLength      = 42
	MaxGroupNameLength = 42
)

// User is an account. PasswordHash and SecretKey never leave the process.
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Firstname    string     `json:"firstname"`
	PasswordHash string     `json:"-"`
	SecretKey    string     `json:"-"`
	Protected    bool       `json:"protected"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// UserUpdate carries the editable profile fields; nil means unchanged.
type UserUpdate struct {
	Email     *string `json:"email,omitempty"`
	Name      *string `json:"name,omitempty"`
	Firstname *string `json:"firstname,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.Email == nil && u.Name == nil && u.Firstname == nil
}

// Group is a named bundle of permissions. System groups are provisioned
// and cannot be renamed or deleted.
type Group struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	System    bool      `json:"system"`
	Alias     string    `json:"alias,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Resource struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Permission is one catalog entry.
type Permission struct {
	ID         int64             `json:"id"`
	ResourceID int64             `json:"resource_id"`
	Resource   string            `json:"resource"`
	Action     permission.Action `json:"action"`
}

// Pair returns the (resource, action) pair of the entry.
func (p Permission) Pair() permission.Pair {
	return permission.P(p.Resource, p.Action)
}

// RenewToken is the stored side of a renewal token.
type RenewToken struct {
	ID            int64     `json:"id"`
	Token         string    `json:"-"`
	UserID        int64     `json:"user_id"`
	OriginalStart time.Time `json:"original_start"`
	ExpiryDate    time.Time `json:"expiry_date"`
	CreatedAt     time.Time `json:"created_at"`
}

func groupIDs(groups []Group) []int64 {
	out := make([]int64, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.ID)
	}
	return out
}

func hasAlias(groups []Group, alias string) bool {
	for _, g := range groups {
		if g.Alias == alias {
			return true
		}
	}
	return false
}
