// Package memory is an in-process auth.Store used for development runs
// without a database and for tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"authcore.org/internal/auth"
	"authcore.org/internal/permission"
)

type state struct {
	users      map[int64]auth.User
	groups     map[int64]groupRow
	resources  map[int64]auth.Resource
	perms      map[int64]auth.Permission
	userGroups map[int64]map[int64]struct{}
	groupPerms map[int64]map[int64]struct{}
	tokens     map[int64]auth.RenewToken
	seq        int64
}

type groupRow struct {
	auth.Group
	deleted bool
}

func newState() *state {
	return &state{
		users:      map[int64]auth.User{},
		groups:     map[int64]groupRow{},
		resources:  map[int64]auth.Resource{},
		perms:      map[int64]auth.Permission{},
		userGroups: map[int64]map[int64]struct{}{},
		groupPerms: map[int64]map[int64]struct{}{},
		tokens:     map[int64]auth.RenewToken{},
	}
}

func (s *state) clone() *state {
	c := &state{
		users:      make(map[int64]auth.User, len(s.users)),
		groups:     make(map[int64]groupRow, len(s.groups)),
		resources:  make(map[int64]auth.Resource, len(s.resources)),
		perms:      make(map[int64]auth.Permission, len(s.perms)),
		userGroups: make(map[int64]map[int64]struct{}, len(s.userGroups)),
		groupPerms: make(map[int64]map[int64]struct{}, len(s.groupPerms)),
		tokens:     make(map[int64]auth.RenewToken, len(s.tokens)),
		seq:        s.seq,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.resources {
		c.resources[k] = v
	}
	for k, v := range s.perms {
		c.perms[k] = v
	}
	for k, v := range s.userGroups {
		c.userGroups[k] = copySet(v)
	}
	for k, v := range s.groupPerms {
		c.groupPerms[k] = copySet(v)
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// Store keeps everything in maps. A transaction works on a copy of the
// state that replaces the original on success.
type Store struct {
	mu   *sync.Mutex // nil inside a transaction; the parent holds the lock
	data *state
	now  func() time.Time
}

var _ auth.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{mu: &sync.Mutex{}, data: newState(), now: time.Now}
}

// WithClock overrides the time source used for timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) lock() func() {
	if s.mu == nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) InTx(ctx context.Context, fn func(auth.Store) error) error {
	if s.mu == nil {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &Store{data: s.data.clone(), now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

// Ping always succeeds; it lets the store serve as a readiness probe.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Users() auth.UserStore             { return users{s} }
func (s *Store) Groups() auth.GroupStore           { return groups{s} }
func (s *Store) Permissions() auth.PermissionStore { return perms{s} }
func (s *Store) RenewTokens() auth.RenewTokenStore { return tokens{s} }

func copySet(in map[int64]struct{}) map[int64]struct{} {
	out := make(map[int64]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

func notFound(what string) error {
	return &auth.Error{Kind: auth.KindNotFound, Message: what + " not found"}
}

func conflict(what string) error {
	return &auth.Error{Kind: auth.KindConflict, Message: what}
}

func matches(search string, fields ...string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

// filtered applies the per-column and id filters of q to one row. cols
// maps filter keys onto the row's values; unknown keys are ignored.
func filtered(q auth.ListQuery, id int64, cols map[string]string) bool {
	if q.ID > 0 && q.ID != id {
		return false
	}
	for k, v := range q.Filters {
		if col, ok := cols[k]; ok && !matches(v, col) {
			return false
		}
	}
	return true
}

func userMatches(q auth.ListQuery, u auth.User) bool {
	return matches(q.Search, u.Email, u.Name, u.Firstname) &&
		filtered(q, u.ID, map[string]string{"email": u.Email, "name": u.Name, "firstname": u.Firstname})
}

func paginate[T any](items []T, q auth.ListQuery) auth.Page[T] {
	count := len(items)
	lo := min(q.Offset(), count)
	hi := count
	if q.Limit > 0 {
		hi = min(lo+q.Limit, count)
	}
	return auth.NewPage(append([]T(nil), items[lo:hi]...), count, q)
}

func sortUsers(list []auth.User, q auth.ListQuery) {
	key := func(u auth.User) string {
		switch q.SortBy {
		case "firstname":
			return strings.ToLower(u.Firstname)
		case "email":
			return u.Email
		case "name":
			return strings.ToLower(u.Name)
		}
		return ""
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		var less, equal bool
		switch q.SortBy {
		case "id":
			less, equal = a.ID < b.ID, a.ID == b.ID
		case "created_at":
			less, equal = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
		default:
			less, equal = key(a) < key(b), key(a) == key(b)
		}
		if equal {
			return a.ID < b.ID
		}
		if q.Desc {
			return !less
		}
		return less
	})
}

func sortGroups(list []auth.Group, q auth.ListQuery) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		var less, equal bool
		switch q.SortBy {
		case "id":
			less, equal = a.ID < b.ID, a.ID == b.ID
		case "created_at":
			less, equal = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
		default:
			an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
			less, equal = an < bn, an == bn
		}
		if equal {
			return a.ID < b.ID
		}
		if q.Desc {
			return !less
		}
		return less
	})
}

// permissionSet resolves a group's permission edges.
func (s *state) permissionSet(groupID int64) permission.Set {
	set := permission.Set{}
	for pid := range s.groupPerms[groupID] {
		p, ok := s.perms[pid]
		if !ok {
			continue
		}
		set[p.Resource] = append(set[p.Resource], p.Action)
	}
	return permission.Merge([]permission.Set{set})
}
