package memory

import (
	"context"
	"sort"

	"authcore.org/internal/auth"
	"authcore.org/internal/permission"
)

type perms struct{ s *Store }

func (p perms) EnsureResource(_ context.Context, name string) (auth.Resource, error) {
	defer p.s.lock()()
	d := p.s.data
	for _, r := range d.resources {
		if r.Name == name {
			return r, nil
		}
	}
	r := auth.Resource{ID: d.nextID(), Name: name}
	d.resources[r.ID] = r
	return r, nil
}

func (p perms) Ensure(_ context.Context, resourceID int64, action permission.Action) (auth.Permission, error) {
	defer p.s.lock()()
	d := p.s.data
	res, ok := d.resources[resourceID]
	if !ok {
		return auth.Permission{}, notFound("resource")
	}
	for _, existing := range d.perms {
		if existing.ResourceID == resourceID && existing.Action == action {
			return existing, nil
		}
	}
	out := auth.Permission{ID: d.nextID(), ResourceID: resourceID, Resource: res.Name, Action: action}
	d.perms[out.ID] = out
	return out, nil
}

func (p perms) Catalog(_ context.Context) ([]auth.Permission, error) {
	defer p.s.lock()()
	out := make([]auth.Permission, 0, len(p.s.data.perms))
	for _, v := range p.s.data.perms {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
