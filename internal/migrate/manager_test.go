package migrate

import (
	"context"
	"regexp"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/celloweb-ai/MOC-Studio-BR/migrations"
)

func testFiles() fstest.MapFS {
	return fstest.MapFS{
		"sql/0001_a.up.sql":   {Data: []byte("create table a (id text);")},
		"sql/0001_a.down.sql": {Data: []byte("drop table a;")},
		"sql/0002_b.up.sql":   {Data: []byte("create table b (id text);\n-- seeded; below\ninsert into b values ('x;y');")},
		"sql/0002_b.down.sql": {Data: []byte("drop table b;")},
		"seeds/0001_demo.sql": {Data: []byte("insert into a values ('1');")},
	}
}

func expectEnsure(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("create table if not exists schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("create table if not exists schema_seeds")).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesOnlyPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2024, 2, 12, 9, 0, 0, 0, time.UTC)
	mgr := NewManager(db, testFiles(), "sql", "seeds", WithClock(func() time.Time { return at }))

	expectEnsure(mock)
	mock.ExpectQuery(regexp.QuoteMeta("select name from schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create table b (id text);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("insert into b values ('x;y');")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("insert into schema_migrations(name, applied_at)")).
		WithArgs("0002_b.up.sql", at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	applied, err := mgr.Up(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"0002_b.up.sql"}, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpRollsBackFailedMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mgr := NewManager(db, testFiles(), "sql", "")

	expectEnsure(mock)
	mock.ExpectQuery(regexp.QuoteMeta("select name from schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create table a")).WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	applied, err := mgr.Up(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "0001_a.up.sql")
	require.Empty(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownRevertsLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mgr := NewManager(db, testFiles(), "sql", "seeds")

	expectEnsure(mock)
	mock.ExpectQuery(regexp.QuoteMeta("select name from schema_migrations order by applied_at asc")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql").AddRow("0002_b.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("drop table b;")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("delete from schema_migrations where name = $1")).
		WithArgs("0002_b.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))

	name, err := mgr.Down(context.Background())
	require.NoError(t, err)
	require.Equal(t, "0002_b.up.sql", name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownWithNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectEnsure(mock)
	mock.ExpectQuery(regexp.QuoteMeta("select name from schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	_, err = NewManager(db, testFiles(), "sql", "seeds").Down(context.Background())
	require.ErrorIs(t, err, ErrNothingApplied)
}

func TestSeedSkipsRecorded(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectEnsure(mock)
	mock.ExpectQuery(regexp.QuoteMeta("select name from schema_seeds")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_demo.sql"))

	applied, err := NewManager(db, testFiles(), "sql", "seeds").Seed(context.Background())
	require.NoError(t, err)
	require.Empty(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("create table t (v text);\n-- a; comment\ninsert into t values ('a;b');\n")
	require.Len(t, stmts, 2)
	require.Contains(t, stmts[1], "'a;b'")
	require.NotContains(t, stmts[1], "comment")
}

func TestEmbeddedMigrationsPair(t *testing.T) {
	ups, err := collectSQL(migrations.FS, migrations.MigrationsDir, ".up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	downs, err := collectSQL(migrations.FS, migrations.MigrationsDir, ".down.sql")
	require.NoError(t, err)
	require.Len(t, downs, len(ups))

	seeds, err := collectSQL(migrations.FS, migrations.SeedsDir, ".sql")
	require.NoError(t, err)
	require.NotEmpty(t, seeds)
	for _, s := range seeds {
		body, err := migrations.FS.ReadFile(s.Path)
		require.NoError(t, err)
		require.NotEmpty(t, splitStatements(string(body)))
	}
}
