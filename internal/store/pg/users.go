package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"authcore.org/internal/auth"
)

const userColumns = `id, email, name, firstname, password_hash, secret_key, protected, created_at, updated_at, deleted_at`

var userSortColumns = map[string]string{
	"name":       "name",
	"firstname":  "firstname",
	"email":      "email",
	"created_at": "created_at",
	"id":         "id",
}

var userFilterColumns = map[string]string{
	"email":     "email",
	"name":      "name",
	"firstname": "firstname",
}

type users struct{ s *Store }

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (auth.User, error) {
	var (
		u       auth.User
		deleted sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Firstname, &u.PasswordHash, &u.SecretKey,
		&u.Protected, &u.CreatedAt, &u.UpdatedAt, &deleted); err != nil {
		return auth.User{}, err
	}
	if deleted.Valid {
		t := deleted.Time
		u.DeletedAt = &t
	}
	return u, nil
}

func collectUsers(rows *sql.Rows) ([]auth.User, error) {
	defer rows.Close()
	out := []auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (u users) Create(ctx context.Context, in auth.User) (auth.User, error) {
	if err := u.s.ready(); err != nil {
		return auth.User{}, err
	}
	row := u.s.q.QueryRowContext(ctx, `
		insert into users (email, name, firstname, password_hash, secret_key, protected)
		values ($1, $2, $3, $4, $5, $6)
		returning `+userColumns,
		in.Email, in.Name, in.Firstname, in.PasswordHash, in.SecretKey, in.Protected)
	out, err := scanUser(row)
	if err != nil {
		return auth.User{}, mapError(err, "user")
	}
	return out, nil
}

func (u users) Find(ctx context.Context, id int64) (auth.User, error) {
	if err := u.s.ready(); err != nil {
		return auth.User{}, err
	}
	row := u.s.q.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1 and deleted_at is null
	`, id)
	out, err := scanUser(row)
	if err != nil {
		return auth.User{}, mapError(err, "user")
	}
	return out, nil
}

func (u users) FindByEmail(ctx context.Context, email string) (auth.User, error) {
	if err := u.s.ready(); err != nil {
		return auth.User{}, err
	}
	row := u.s.q.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where lower(email) = lower($1) and deleted_at is null
	`, strings.TrimSpace(email))
	out, err := scanUser(row)
	if err != nil {
		return auth.User{}, mapError(err, "user")
	}
	return out, nil
}

func (u users) FindMany(ctx context.Context, ids []int64) ([]auth.User, error) {
	if err := u.s.ready(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := u.s.q.QueryContext(ctx, `
		select `+userColumns+`
		from users
		where deleted_at is null and id in (`+placeholders(1, len(ids))+`)
		order by id
	`, int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func (u users) Update(ctx context.Context, id int64, upd auth.UserUpdate) (auth.User, error) {
	if err := u.s.ready(); err != nil {
		return auth.User{}, err
	}
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if upd.Email != nil {
		setClauses = append(setClauses, fmt.Sprintf("email = $%d", idx))
		args = append(args, *upd.Email)
		idx++
	}
	if upd.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Firstname != nil {
		setClauses = append(setClauses, fmt.Sprintf("firstname = $%d", idx))
		args = append(args, *upd.Firstname)
		idx++
	}
	if len(setClauses) == 0 {
		return u.Find(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)
	row := u.s.q.QueryRowContext(ctx, fmt.Sprintf(`
		update users set %s
		where id = $%d and deleted_at is null
		returning %s`, strings.Join(setClauses, ", "), idx, userColumns), args...)
	out, err := scanUser(row)
	if err != nil {
		return auth.User{}, mapError(err, "user")
	}
	return out, nil
}

func (u users) SetCredentials(ctx context.Context, id int64, passwordHash, secretKey string) error {
	if err := u.s.ready(); err != nil {
		return err
	}
	res, err := u.s.q.ExecContext(ctx, `
		update users set password_hash = $1, secret_key = $2, updated_at = now()
		where id = $3 and deleted_at is null
	`, passwordHash, secretKey, id)
	if err != nil {
		return err
	}
	return rowsAffected(res, "user")
}

func (u users) Delete(ctx context.Context, id int64) error {
	if err := u.s.ready(); err != nil {
		return err
	}
	res, err := u.s.q.ExecContext(ctx, `
		update users set deleted_at = now(), updated_at = now()
		where id = $1 and deleted_at is null
	`, id)
	if err != nil {
		return err
	}
	return rowsAffected(res, "user")
}

func (u users) Restore(ctx context.Context, id int64) error {
	if err := u.s.ready(); err != nil {
		return err
	}
	res, err := u.s.q.ExecContext(ctx, `
		update users set deleted_at = null, updated_at = now()
		where id = $1 and deleted_at is not null
	`, id)
	if err != nil {
		return mapError(err, "user")
	}
	return rowsAffected(res, "deleted user")
}

func (u users) List(ctx context.Context, q auth.ListQuery) (auth.Page[auth.User], error) {
	if err := u.s.ready(); err != nil {
		return auth.Page[auth.User]{}, err
	}
	where, args := filterClause("deleted_at is null", nil, q, "", userFilterColumns, "email", "name", "firstname")
	var count int
	if err := u.s.q.QueryRowContext(ctx, `select count(*) from users where `+where, args...).Scan(&count); err != nil {
		return auth.Page[auth.User]{}, err
	}
	limit, limitArgs := limitOffset(q, len(args)+1)
	rows, err := u.s.q.QueryContext(ctx, `
		select `+userColumns+`
		from users
		where `+where+`
		`+orderClause(q, userSortColumns, "")+`
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

func (u users) Groups(ctx context.Context, userID int64) ([]auth.Group, error) {
	if err := u.s.ready(); err != nil {
		return nil, err
	}
	rows, err := u.s.q.QueryContext(ctx, `
		select `+groupColumnsPrefixed+`
		from groups g
		join user_groups ug on ug.group_id = g.id
		where ug.user_id = $1 and g.deleted_at is null
		order by g.id
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectGroups(rows)
}

func (u users) SetGroups(ctx context.Context, userID int64, groupIDs []int64) error {
	if err := u.s.ready(); err != nil {
		return err
	}
	if _, err := u.s.q.ExecContext(ctx, `delete from user_groups where user_id = $1`, userID); err != nil {
		return err
	}
	for _, gid := range groupIDs {
		if _, err := u.s.q.ExecContext(ctx, `
			insert into user_groups (user_id, group_id) values ($1, $2)
			on conflict do nothing
		`, userID, gid); err != nil {
			return mapError(err, "group")
		}
	}
	return nil
}
