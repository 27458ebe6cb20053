package memory

import (
	"context"
	"sort"
	"strings"

	"authcore.org/internal/auth"
	"authcore.org/internal/permission"
)

type groups struct{ s *Store }

func (g groups) nameTaken(name string, self int64) bool {
	for _, row := range g.s.data.groups {
		if !row.deleted && row.ID != self && strings.EqualFold(row.Name, name) {
			return true
		}
	}
	return false
}

func (g groups) Create(_ context.Context, in auth.Group) (auth.Group, error) {
	defer g.s.lock()()
	d := g.s.data
	if g.nameTaken(in.Name, 0) {
		return auth.Group{}, conflict("group name already used")
	}
	if in.Alias != "" {
		for _, row := range d.groups {
			if row.Alias == in.Alias {
				return auth.Group{}, conflict("group alias already used")
			}
		}
	}
	now := g.s.now().UTC()
	in.ID = d.nextID()
	in.CreatedAt, in.UpdatedAt = now, now
	d.groups[in.ID] = groupRow{Group: in}
	return in, nil
}

func (g groups) live(id int64) (auth.Group, bool) {
	row, ok := g.s.data.groups[id]
	if !ok || row.deleted {
		return auth.Group{}, false
	}
	return row.Group, true
}

func (g groups) Find(_ context.Context, id int64) (auth.Group, error) {
	defer g.s.lock()()
	v, ok := g.live(id)
	if !ok {
		return auth.Group{}, notFound("group")
	}
	return v, nil
}

func (g groups) FindByName(_ context.Context, name string) (auth.Group, error) {
	defer g.s.lock()()
	for _, row := range g.s.data.groups {
		if !row.deleted && strings.EqualFold(row.Name, strings.TrimSpace(name)) {
			return row.Group, nil
		}
	}
	return auth.Group{}, notFound("group")
}

func (g groups) FindByAlias(_ context.Context, alias string) (auth.Group, error) {
	defer g.s.lock()()
	for _, row := range g.s.data.groups {
		if !row.deleted && alias != "" && row.Alias == alias {
			return row.Group, nil
		}
	}
	return auth.Group{}, notFound("group")
}

func (g groups) FindMany(_ context.Context, ids []int64) ([]auth.Group, error) {
	defer g.s.lock()()
	var out []auth.Group
	for _, id := range ids {
		if v, ok := g.live(id); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (g groups) Rename(_ context.Context, id int64, name string) (auth.Group, error) {
	defer g.s.lock()()
	v, ok := g.live(id)
	if !ok {
		return auth.Group{}, notFound("group")
	}
	if g.nameTaken(name, id) {
		return auth.Group{}, conflict("group name already used")
	}
	v.Name = name
	v.UpdatedAt = g.s.now().UTC()
	g.s.data.groups[id] = groupRow{Group: v}
	return v, nil
}

func (g groups) Delete(_ context.Context, id int64) error {
	defer g.s.lock()()
	d := g.s.data
	row, ok := d.groups[id]
	if !ok || row.deleted {
		return notFound("group")
	}
	row.deleted = true
	d.groups[id] = row
	for _, set := range d.userGroups {
		delete(set, id)
	}
	delete(d.groupPerms, id)
	return nil
}

func (g groups) List(_ context.Context, q auth.ListQuery) (auth.Page[auth.Group], error) {
	defer g.s.lock()()
	var list []auth.Group
	for _, row := range g.s.data.groups {
		if !row.deleted && matches(q.Search, row.Name) && filtered(q, row.ID, map[string]string{"name": row.Name}) {
			list = append(list, row.Group)
		}
	}
	sortGroups(list, q)
	return paginate(list, q), nil
}

func (g groups) members(groupID int64) []auth.User {
	d := g.s.data
	out := []auth.User{}
	for uid, set := range d.userGroups {
		if _, ok := set[groupID]; !ok {
			continue
		}
		if u, ok := d.users[uid]; ok && u.DeletedAt == nil {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g groups) Members(_ context.Context, groupID int64) ([]auth.User, error) {
	defer g.s.lock()()
	return g.members(groupID), nil
}

func (g groups) ListMembers(_ context.Context, groupID int64, q auth.ListQuery) (auth.Page[auth.User], error) {
	defer g.s.lock()()
	var list []auth.User
	for _, u := range g.members(groupID) {
		if userMatches(q, u) {
			list = append(list, u)
		}
	}
	sortUsers(list, q)
	return paginate(list, q), nil
}

func (g groups) AddUsers(_ context.Context, groupID int64, userIDs []int64) error {
	defer g.s.lock()()
	d := g.s.data
	if _, ok := g.live(groupID); !ok {
		return notFound("group")
	}
	for _, uid := range userIDs {
		if _, ok := d.users[uid]; !ok {
			continue
		}
		if d.userGroups[uid] == nil {
			d.userGroups[uid] = map[int64]struct{}{}
		}
		d.userGroups[uid][groupID] = struct{}{}
	}
	return nil
}

func (g groups) RemoveUsers(_ context.Context, groupID int64, userIDs []int64) error {
	defer g.s.lock()()
	for _, uid := range userIDs {
		delete(g.s.data.userGroups[uid], groupID)
	}
	return nil
}

func (g groups) Permissions(_ context.Context, groupIDs []int64) (map[int64]permission.Set, error) {
	defer g.s.lock()()
	out := make(map[int64]permission.Set, len(groupIDs))
	for _, id := range groupIDs {
		if _, ok := g.live(id); ok {
			out[id] = g.s.data.permissionSet(id)
		}
	}
	return out, nil
}

func (g groups) SetPermissions(_ context.Context, groupID int64, perms []auth.Permission) error {
	defer g.s.lock()()
	d := g.s.data
	if _, ok := g.live(groupID); !ok {
		return notFound("group")
	}
	next := map[int64]struct{}{}
	for _, p := range perms {
		if _, ok := d.perms[p.ID]; !ok {
			return notFound("permission")
		}
		next[p.ID] = struct{}{}
	}
	d.groupPerms[groupID] = next
	return nil
}
