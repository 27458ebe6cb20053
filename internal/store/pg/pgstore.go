// Package pg is the PostgreSQL implementation of auth.Store.
package pg

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"authcore.org/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var errUnavailable = fmt.Errorf("database connection unavailable: %w", driver.ErrBadConn)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements auth.Store over database/sql with the pgx driver.
type Store struct {
	db *sql.DB
	q  querier
	tx bool
}

var _ auth.Store = (*Store)(nil)

// Open connects using the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	s := &Store{db: db}
	if db != nil {
		s.q = db
	}
	return s
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB { return s.db }

// Ping checks connectivity; used by the readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errUnavailable
	}
	return s.db.PingContext(ctx)
}

// InTx runs fn inside a transaction. Nested calls join the outer one.
func (s *Store) InTx(ctx context.Context, fn func(auth.Store) error) error {
	if s.tx {
		return fn(s)
	}
	if s.db == nil {
		return errUnavailable
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(&Store{db: s.db, q: tx, tx: true}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Users() auth.UserStore             { return users{s} }
func (s *Store) Groups() auth.GroupStore           { return groups{s} }
func (s *Store) Permissions() auth.PermissionStore { return catalog{s} }
func (s *Store) RenewTokens() auth.RenewTokenStore { return renewTokens{s} }

func (s *Store) ready() error {
	if s.q == nil {
		return errUnavailable
	}
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapError turns driver errors into auth errors; what names the entity
// for not-found and conflict messages.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &auth.Error{Kind: auth.KindNotFound, Message: what + " not found"}
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return &auth.Error{Kind: auth.KindConflict, Message: what + " already exists", Err: err}
		case pgErrForeignKeyViolation:
			return &auth.Error{Kind: auth.KindNotFound, Message: "referenced row not found", Err: err}
		}
	}
	return err
}

// placeholders renders "$start, $start+1, ..." for n arguments.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func int64Args(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func rowsAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &auth.Error{Kind: auth.KindNotFound, Message: what + " not found"}
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// orderClause maps a whitelisted sort key onto a column.
func orderClause(q auth.ListQuery, columns map[string]string, prefix string) string {
	col, ok := columns[q.SortBy]
	if !ok {
		col = "id"
	}
	return fmt.Sprintf("order by %s%s %s, %sid %s", prefix, col, q.Order(), prefix, q.Order())
}

// filterClause extends where with the search, per-column and id filters
// of q. Placeholders continue after the existing args.
func filterClause(where string, args []any, q auth.ListQuery, prefix string, columns map[string]string, searchCols ...string) (string, []any) {
	if search := strings.TrimSpace(q.Search); search != "" && len(searchCols) > 0 {
		args = append(args, "%"+search+"%")
		ors := make([]string, 0, len(searchCols))
		for _, c := range searchCols {
			ors = append(ors, fmt.Sprintf("%s%s ilike $%d", prefix, c, len(args)))
		}
		where += " and (" + strings.Join(ors, " or ") + ")"
	}
	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		if _, ok := columns[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "%"+q.Filters[k]+"%")
		where += fmt.Sprintf(" and %s%s ilike $%d", prefix, columns[k], len(args))
	}
	if q.ID > 0 {
		args = append(args, q.ID)
		where += fmt.Sprintf(" and %sid = $%d", prefix, len(args))
	}
	return where, args
}

func limitOffset(q auth.ListQuery, next int) (string, []any) {
	limit := q.Limit
	if limit <= 0 {
		limit = auth.DefaultPageLimit
	}
	return fmt.Sprintf("limit $%d offset $%d", next, next+1), []any{limit, q.Offset()}
}
