package pg

import (
	"context"
	"database/sql"
	"time"

	"authcore.org/internal/auth"
)

const renewColumns = `id, token, user_id, original_start, expiry_date, created_at`

type renewTokens struct{ s *Store }

func scanRenewToken(row scanner) (auth.RenewToken, error) {
	var t auth.RenewToken
	err := row.Scan(&t.ID, &t.Token, &t.UserID, &t.OriginalStart, &t.ExpiryDate, &t.CreatedAt)
	return t, err
}

func collectRenewTokens(rows *sql.Rows) ([]auth.RenewToken, error) {
	defer rows.Close()
	var out []auth.RenewToken
	for rows.Next() {
		t, err := scanRenewToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r renewTokens) Create(ctx context.Context, in auth.RenewToken) (auth.RenewToken, error) {
	if err := r.s.ready(); err != nil {
		return auth.RenewToken{}, err
	}
	created := in.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	row := r.s.q.QueryRowContext(ctx, `
		insert into renew_tokens (token, user_id, original_start, expiry_date, created_at)
		values ($1, $2, $3, $4, $5)
		returning `+renewColumns,
		in.Token, in.UserID, in.OriginalStart, in.ExpiryDate, created)
	out, err := scanRenewToken(row)
	if err != nil {
		return auth.RenewToken{}, mapError(err, "renew token")
	}
	return out, nil
}

func (r renewTokens) FindByToken(ctx context.Context, token string) (auth.RenewToken, error) {
	if err := r.s.ready(); err != nil {
		return auth.RenewToken{}, err
	}
	row := r.s.q.QueryRowContext(ctx, `
		select `+renewColumns+`
		from renew_tokens
		where token = $1
	`, token)
	out, err := scanRenewToken(row)
	if err != nil {
		return auth.RenewToken{}, mapError(err, "renew token")
	}
	return out, nil
}

func (r renewTokens) Delete(ctx context.Context, id int64) error {
	if err := r.s.ready(); err != nil {
		return err
	}
	res, err := r.s.q.ExecContext(ctx, `delete from renew_tokens where id = $1`, id)
	if err != nil {
		return err
	}
	return rowsAffected(res, "renew token")
}

func (r renewTokens) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]auth.RenewToken, error) {
	if err := r.s.ready(); err != nil {
		return nil, err
	}
	rows, err := r.s.q.QueryContext(ctx, `
		select `+renewColumns+`
		from renew_tokens
		where expiry_date < $1
		order by expiry_date, id
		limit $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectRenewTokens(rows)
}

func (r renewTokens) ListByUser(ctx context.Context, userID int64, limit int) ([]auth.RenewToken, error) {
	if err := r.s.ready(); err != nil {
		return nil, err
	}
	query := `
		select ` + renewColumns + `
		from renew_tokens
		where user_id = $1
		order by created_at desc, id desc`
	args := []any{userID}
	if limit > 0 {
		query += ` limit $2`
		args = append(args, limit)
	}
	rows, err := r.s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRenewTokens(rows)
}
