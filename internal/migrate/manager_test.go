package migrate

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
)

func TestSplitStatements(t *testing.T) {
	in := `create table a (v text default 'x;y'); -- trailing; comment
insert into a values ('it''s');
select 1`
	got := splitStatements(in)
	if len(got) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(got), got)
	}
	if !strings.Contains(got[0], "'x;y'") {
		t.Fatalf("quoted semicolon was split: %q", got[0])
	}
	if strings.Contains(got[1], "comment") {
		t.Fatalf("comment leaked into statement: %q", got[1])
	}
	if strings.TrimSpace(got[2]) != "select 1" {
		t.Fatalf("unexpected tail: %q", got[2])
	}
}

func TestBundledSchemaIsPaired(t *testing.T) {
	m := NewManager(nil)
	ups, err := m.collect(m.migrationsDir, ".up.sql")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(ups) == 0 {
		t.Fatalf("no bundled migrations")
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up.Path, ".up.sql") + ".down.sql"
		if _, err := bundled.Open(down); err != nil {
			t.Fatalf("missing %s", down)
		}
	}
	seeds, err := m.collect(m.seedsDir, ".sql")
	if err != nil || len(seeds) == 0 {
		t.Fatalf("expected bundled seeds, got %v (%v)", seeds, err)
	}
}

func TestUpAppliesPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	files := fstest.MapFS{
		"m/0001_a.up.sql":   {Data: []byte("create table a (id int);")},
		"m/0001_a.down.sql": {Data: []byte("drop table a;")},
		"m/0002_b.up.sql":   {Data: []byte("create table b (id int); create index b_idx on b (id);")},
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewManager(db, WithFS(files, "m", ""), WithClock(func() time.Time { return at }))

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("create table b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create index b_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into schema_migrations").WithArgs("0002_b.up.sql", at).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := m.Up(context.Background())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if diff := cmp.Diff([]string{"0002_b.up.sql"}, applied); diff != "" {
		t.Fatalf("applied mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownRollsBackLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	files := fstest.MapFS{
		"m/0001_a.up.sql":   {Data: []byte("create table a (id int);")},
		"m/0001_a.down.sql": {Data: []byte("drop table a;")},
	}
	m := NewManager(db, WithFS(files, "m", ""))

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("drop table a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from schema_migrations").WithArgs("0001_a.up.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := m.Down(context.Background()); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
