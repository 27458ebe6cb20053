package memory

import (
	"context"
	"sort"
	"strings"

	"authcore.org/internal/auth"
)

type users struct{ s *Store }

func (u users) Create(_ context.Context, in auth.User) (auth.User, error) {
	defer u.s.lock()()
	d := u.s.data
	for _, existing := range d.users {
		if existing.DeletedAt == nil && strings.EqualFold(existing.Email, in.Email) {
			return auth.User{}, conflict("email already registered")
		}
	}
	now := u.s.now().UTC()
	in.ID = d.nextID()
	in.CreatedAt, in.UpdatedAt, in.DeletedAt = now, now, nil
	d.users[in.ID] = in
	return in, nil
}

func (u users) live(id int64) (auth.User, bool) {
	v, ok := u.s.data.users[id]
	if !ok || v.DeletedAt != nil {
		return auth.User{}, false
	}
	return v, true
}

func (u users) Find(_ context.Context, id int64) (auth.User, error) {
	defer u.s.lock()()
	v, ok := u.live(id)
	if !ok {
		return auth.User{}, notFound("user")
	}
	return v, nil
}

func (u users) FindByEmail(_ context.Context, email string) (auth.User, error) {
	defer u.s.lock()()
	for _, v := range u.s.data.users {
		if v.DeletedAt == nil && strings.EqualFold(v.Email, strings.TrimSpace(email)) {
			return v, nil
		}
	}
	return auth.User{}, notFound("user")
}

func (u users) FindMany(_ context.Context, ids []int64) ([]auth.User, error) {
	defer u.s.lock()()
	var out []auth.User
	for _, id := range ids {
		if v, ok := u.live(id); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (u users) Update(_ context.Context, id int64, upd auth.UserUpdate) (auth.User, error) {
	defer u.s.lock()()
	v, ok := u.live(id)
	if !ok {
		return auth.User{}, notFound("user")
	}
	if upd.Email != nil {
		for _, other := range u.s.data.users {
			if other.ID != id && other.DeletedAt == nil && strings.EqualFold(other.Email, *upd.Email) {
				return auth.User{}, conflict("email already registered")
			}
		}
		v.Email = *upd.Email
	}
	if upd.Name != nil {
		v.Name = *upd.Name
	}
	if upd.Firstname != nil {
		v.Firstname = *upd.Firstname
	}
	v.UpdatedAt = u.s.now().UTC()
	u.s.data.users[id] = v
	return v, nil
}

func (u users) SetCredentials(_ context.Context, id int64, passwordHash, secretKey string) error {
	defer u.s.lock()()
	v, ok := u.live(id)
	if !ok {
		return notFound("user")
	}
	v.PasswordHash, v.SecretKey = passwordHash, secretKey
	v.UpdatedAt = u.s.now().UTC()
	u.s.data.users[id] = v
	return nil
}

func (u users) Delete(_ context.Context, id int64) error {
	defer u.s.lock()()
	v, ok := u.live(id)
	if !ok {
		return notFound("user")
	}
	now := u.s.now().UTC()
	v.DeletedAt = &now
	u.s.data.users[id] = v
	return nil
}

func (u users) Restore(_ context.Context, id int64) error {
	defer u.s.lock()()
	v, ok := u.s.data.users[id]
	if !ok || v.DeletedAt == nil {
		return notFound("deleted user")
	}
	for _, other := range u.s.data.users {
		if other.ID != id && other.DeletedAt == nil && strings.EqualFold(other.Email, v.Email) {
			return conflict("email already registered")
		}
	}
	v.DeletedAt = nil
	v.UpdatedAt = u.s.now().UTC()
	u.s.data.users[id] = v
	return nil
}

func (u users) List(_ context.Context, q auth.ListQuery) (auth.Page[auth.User], error) {
	defer u.s.lock()()
	var list []auth.User
	for _, v := range u.s.data.users {
		if v.DeletedAt == nil && userMatches(q, v) {
			list = append(list, v)
		}
	}
	sortUsers(list, q)
	return paginate(list, q), nil
}

func (u users) Groups(_ context.Context, userID int64) ([]auth.Group, error) {
	defer u.s.lock()()
	d := u.s.data
	out := []auth.Group{}
	for gid := range d.userGroups[userID] {
		if g, ok := d.groups[gid]; ok && !g.deleted {
			out = append(out, g.Group)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (u users) SetGroups(_ context.Context, userID int64, groupIDs []int64) error {
	defer u.s.lock()()
	if _, ok := u.live(userID); !ok {
		return notFound("user")
	}
	next := map[int64]struct{}{}
	for _, gid := range groupIDs {
		if g, ok := u.s.data.groups[gid]; ok && !g.deleted {
			next[gid] = struct{}{}
		}
	}
	u.s.data.userGroups[userID] = next
	return nil
}
