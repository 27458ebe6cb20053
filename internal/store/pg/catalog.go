package pg

import (
	"context"

	"authcore.org/internal/auth"
	"authcore.org/internal/permission"
)

type catalog struct{ s *Store }

func (c catalog) EnsureResource(ctx context.Context, name string) (auth.Resource, error) {
	if err := c.s.ready(); err != nil {
		return auth.Resource{}, err
	}
	var r auth.Resource
	err := c.s.q.QueryRowContext(ctx, `
		insert into resources (name) values ($1)
		on conflict (name) do update set name = excluded.name
		returning id, name
	`, name).Scan(&r.ID, &r.Name)
	if err != nil {
		return auth.Resource{}, mapError(err, "resource")
	}
	return r, nil
}

func (c catalog) Ensure(ctx context.Context, resourceID int64, action permission.Action) (auth.Permission, error) {
	if err := c.s.ready(); err != nil {
		return auth.Permission{}, err
	}
	var (
		p   auth.Permission
		act string
	)
	err := c.s.q.QueryRowContext(ctx, `
		with up as (
			insert into permissions (resource_id, action) values ($1, $2)
			on conflict (resource_id, action) do update set action = excluded.action
			returning id, resource_id, action
		)
		select up.id, up.resource_id, r.name, up.action
		from up join resources r on r.id = up.resource_id
	`, resourceID, string(action)).Scan(&p.ID, &p.ResourceID, &p.Resource, &act)
	if err != nil {
		return auth.Permission{}, mapError(err, "resource")
	}
	p.Action = permission.Action(act)
	return p, nil
}

func (c catalog) Catalog(ctx context.Context) ([]auth.Permission, error) {
	if err := c.s.ready(); err != nil {
		return nil, err
	}
	rows, err := c.s.q.QueryContext(ctx, `
		select p.id, p.resource_id, r.name, p.action
		from permissions p
		join resources r on r.id = p.resource_id
		order by p.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []auth.Permission{}
	for rows.Next() {
		var (
			p   auth.Permission
			act string
		)
		if err := rows.Scan(&p.ID, &p.ResourceID, &p.Resource, &act); err != nil {
			return nil, err
		}
		p.Action = permission.Action(act)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
