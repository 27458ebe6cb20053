package pg

import (
	"context"
	"database/sql"
	"strings"

	"authcore.org/internal/auth"
	"authcore.org/internal/permission"
)

const (
	groupColumns         = `id, name, system, alias, created_at, updated_at`
	groupColumnsPrefixed = `g.id, g.name, g.system, g.alias, g.created_at, g.updated_at`
	userColumnsPrefixed  = `u.id, u.email, u.name, u.firstname, u.password_hash, u.secret_key, u.protected, u.created_at, u.updated_at, u.deleted_at`
)

var groupSortColumns = map[string]string{
	"name":       "name",
	"created_at": "created_at",
	"id":         "id",
}

var groupFilterColumns = map[string]string{"name": "name"}

type groups struct{ s *Store }

func scanGroup(row scanner) (auth.Group, error) {
	var (
		g     auth.Group
		alias sql.NullString
	)
	if err := row.Scan(&g.ID, &g.Name, &g.System, &alias, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return auth.Group{}, err
	}
	g.Alias = alias.String
	return g, nil
}

func collectGroups(rows *sql.Rows) ([]auth.Group, error) {
	defer rows.Close()
	out := []auth.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (g groups) Create(ctx context.Context, in auth.Group) (auth.Group, error) {
	if err := g.s.ready(); err != nil {
		return auth.Group{}, err
	}
	row := g.s.q.QueryRowContext(ctx, `
		insert into groups (name, system, alias)
		values ($1, $2, $3)
		returning `+groupColumns,
		in.Name, in.System, nullIfEmpty(in.Alias))
	out, err := scanGroup(row)
	if err != nil {
		return auth.Group{}, mapError(err, "group")
	}
	return out, nil
}

func (g groups) findOne(ctx context.Context, where string, arg any) (auth.Group, error) {
	if err := g.s.ready(); err != nil {
		return auth.Group{}, err
	}
	row := g.s.q.QueryRowContext(ctx, `
		select `+groupColumns+`
		from groups
		where `+where+` and deleted_at is null
	`, arg)
	out, err := scanGroup(row)
	if err != nil {
		return auth.Group{}, mapError(err, "group")
	}
	return out, nil
}

func (g groups) Find(ctx context.Context, id int64) (auth.Group, error) {
	return g.findOne(ctx, "id = $1", id)
}

func (g groups) FindByName(ctx context.Context, name string) (auth.Group, error) {
	return g.findOne(ctx, "lower(name) = lower($1)", strings.TrimSpace(name))
}

func (g groups) FindByAlias(ctx context.Context, alias string) (auth.Group, error) {
	return g.findOne(ctx, "alias = $1", alias)
}

func (g groups) FindMany(ctx context.Context, ids []int64) ([]auth.Group, error) {
	if err := g.s.ready(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := g.s.q.QueryContext(ctx, `
		select `+groupColumns+`
		from groups
		where deleted_at is null and id in (`+placeholders(1, len(ids))+`)
		order by id
	`, int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	return collectGroups(rows)
}

func (g groups) Rename(ctx context.Context, id int64, name string) (auth.Group, error) {
	if err := g.s.ready(); err != nil {
		return auth.Group{}, err
	}
	row := g.s.q.QueryRowContext(ctx, `
		update groups set name = $1, updated_at = now()
		where id = $2 and deleted_at is null
		returning `+groupColumns, name, id)
	out, err := scanGroup(row)
	if err != nil {
		return auth.Group{}, mapError(err, "group")
	}
	return out, nil
}

func (g groups) Delete(ctx context.Context, id int64) error {
	if err := g.s.ready(); err != nil {
		return err
	}
	res, err := g.s.q.ExecContext(ctx, `
		update groups set deleted_at = now(), updated_at = now()
		where id = $1 and deleted_at is null
	`, id)
	if err != nil {
		return err
	}
	if err := rowsAffected(res, "group"); err != nil {
		return err
	}
	if _, err := g.s.q.ExecContext(ctx, `delete from user_groups where group_id = $1`, id); err != nil {
		return err
	}
	_, err = g.s.q.ExecContext(ctx, `delete from group_permissions where group_id = $1`, id)
	return err
}

func (g groups) List(ctx context.Context, q auth.ListQuery) (auth.Page[auth.Group], error) {
	if err := g.s.ready(); err != nil {
		return auth.Page[auth.Group]{}, err
	}
	where, args := filterClause("deleted_at is null", nil, q, "", groupFilterColumns, "name")
	var count int
	if err := g.s.q.QueryRowContext(ctx, `select count(*) from groups where `+where, args...).Scan(&count); err != nil {
		return auth.Page[auth.Group]{}, err
	}
	limit, limitArgs := limitOffset(q, len(args)+1)
	rows, err := g.s.q.QueryContext(ctx, `
		select `+groupColumns+`
		from groups
		where `+where+`
		`+orderClause(q, groupSortColumns, "")+`
		`+limit, append(args, limitArgs...)...)
	if err != nil {
		return auth.Page[auth.Group]{}, err
	}
	list, err := collectGroups(rows)
	if err != nil {
		return auth.Page[auth.Group]{}, err
	}
	return auth.NewPage(list, count, q), nil
}

func (g groups) Members(ctx context.Context, groupID int64) ([]auth.User, error) {
	if err := g.s.ready(); err != nil {
		return nil, err
	}
	rows, err := g.s.q.QueryContext(ctx, `
		select `+userColumnsPrefixed+`
		from users u
		join user_groups ug on ug.user_id = u.id
		where ug.group_id = $1 and u.deleted_at is null
		order by u.id
	`, groupID)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func (g groups) ListMembers(ctx context.Context, groupID int64, q auth.ListQuery) (auth.Page[auth.User], error) {
	if err := g.s.ready(); err != nil {
		return auth.Page[auth.User]{}, err
	}
	where, args := filterClause("ug.group_id = $1 and u.deleted_at is null", []any{groupID}, q, "u.", userFilterColumns, "email", "name", "firstname")
	var count int
	if err := g.s.q.QueryRowContext(ctx, `
		select count(*) from users u join user_groups ug on ug.user_id = u.id where `+where, args...).Scan(&count); err != nil {
		return auth.Page[auth.User]{}, err
	}
	limit, limitArgs := limitOffset(q, len(args)+1)
	rows, err := g.s.q.QueryContext(ctx, `
		select `+userColumnsPrefixed+`
		from users u
		join user_groups ug on ug.user_id = u.id
		where `+where+`
		`+orderClause(q, userSortColumns, "u.")+`
		`+limit, append(args, limitArgs...)...)
	if err != nil {
		return auth.Page[auth.User]{}, err
	}
	list, err := collectUsers(rows)
	if err != nil {
		return auth.Page[auth.User]{}, err
	}
	return auth.NewPage(list, count, q), nil
}

func (g groups) AddUsers(ctx context.Context, groupID int64, userIDs []int64) error {
	if err := g.s.ready(); err != nil {
		return err
	}
	for _, uid := range userIDs {
		if _, err := g.s.q.ExecContext(ctx, `
			insert into user_groups (user_id, group_id) values ($1, $2)
			on conflict do nothing
		`, uid, groupID); err != nil {
			return mapError(err, "user")
		}
	}
	return nil
}

func (g groups) RemoveUsers(ctx context.Context, groupID int64, userIDs []int64) error {
	if err := g.s.ready(); err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}
	args := append([]any{groupID}, int64Args(userIDs)...)
	_, err := g.s.q.ExecContext(ctx, `
		delete from user_groups
		where group_id = $1 and user_id in (`+placeholders(2, len(userIDs))+`)
	`, args...)
	return err
}

func (g groups) Permissions(ctx context.Context, groupIDs []int64) (map[int64]permission.Set, error) {
	if err := g.s.ready(); err != nil {
		return nil, err
	}
	out := make(map[int64]permission.Set, len(groupIDs))
	if len(groupIDs) == 0 {
		return out, nil
	}
	rows, err := g.s.q.QueryContext(ctx, `
		select gp.group_id, r.name, p.action
		from group_permissions gp
		join permissions p on p.id = gp.permission_id
		join resources r on r.id = p.resource_id
		join groups g on g.id = gp.group_id and g.deleted_at is null
		where gp.group_id in (`+placeholders(1, len(groupIDs))+`)
	`, int64Args(groupIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			gid      int64
			resource string
			action   string
		)
		if err := rows.Scan(&gid, &resource, &action); err != nil {
			return nil, err
		}
		if out[gid] == nil {
			out[gid] = permission.Set{}
		}
		out[gid][resource] = append(out[gid][resource], permission.Action(action))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for gid, set := range out {
		out[gid] = permission.Merge([]permission.Set{set})
	}
	return out, nil
}

func (g groups) SetPermissions(ctx context.Context, groupID int64, perms []auth.Permission) error {
	if err := g.s.ready(); err != nil {
		return err
	}
	if _, err := g.s.q.ExecContext(ctx, `delete from group_permissions where group_id = $1`, groupID); err != nil {
		return err
	}
	for _, p := range perms {
		if _, err := g.s.q.ExecContext(ctx, `
			insert into group_permissions (group_id, permission_id, resource_id)
			values ($1, $2, $3)
		`, groupID, p.ID, p.ResourceID); err != nil {
			return mapError(err, "permission")
		}
	}
	return nil
}
