package pgcassette

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/andrebq/gatekeeper/cassette"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
)

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return New(db, "ns", cassette.Options{IDLength: 12}), mock
}

func found() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"one"}).AddRow(1)
}

func TestMigrate(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()
	var calledWith string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		calledWith = dir
		return nil
	}
	require.NoError(t, Migrate(context.Background(), db))
	require.Equal(t, "migrations", calledWith)

	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	err = Migrate(context.Background(), db)
	require.ErrorContains(t, err, "boom")
}

func TestCreateRowRetriesOnConflict(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectExec(`^insert into kv_rows`).WithArgs("ns", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^insert into kv_rows`).WithArgs("ns", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := s.CreateRow(context.Background())
	require.NoError(t, err)
	require.Len(t, id, 12)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetReplacesIndexedValue(t *testing.T) {
	s, mock := newStoreWithMock(t)
	colHash := cassette.KeyHash("name")
	oldHash := cassette.KeyHash("alice")
	newHash := cassette.KeyHash("bob")

	mock.ExpectBegin()
	mock.ExpectQuery(`select 1 from kv_rows .*for update`).WithArgs("ns", "row1").WillReturnRows(found())
	mock.ExpectQuery(`select 1 from kv_columns`).WithArgs("ns", colHash).WillReturnRows(found())
	mock.ExpectQuery(`delete from kv_values .*returning value_hash`).WithArgs("ns", "row1", colHash).
		WillReturnRows(sqlmock.NewRows([]string{"value_hash"}).AddRow(oldHash))
	mock.ExpectExec(`delete from kv_index`).WithArgs("ns", colHash, oldHash, "row1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`select pg_advisory_xact_lock\(\$1\)`).WithArgs(valueLockKey("ns", colHash, newHash)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`insert into kv_values`).WithArgs("ns", "row1", colHash, "bob", newHash).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into kv_index`).WithArgs("ns", colHash, newHash, cassette.Hash64(newHash), "row1").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Set(context.Background(), "row1", "name", "bob"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetSerializesEqualValues(t *testing.T) {
	colHash := cassette.KeyHash("name")
	alice := cassette.KeyHash("alice")
	require.NotEqual(t, valueLockKey("ns", colHash, alice), valueLockKey("ns", colHash, cassette.KeyHash("bob")))
	require.NotEqual(t, valueLockKey("ns", colHash, alice), valueLockKey("other", colHash, alice))

	// every row claiming "alice" waits on the same lock before it gets
	// an index position, and nothing is indexed if the lock fails
	s, mock := newStoreWithMock(t)
	for _, row := range []string{"row1", "row2"} {
		mock.ExpectBegin()
		mock.ExpectQuery(`select 1 from kv_rows .*for update`).WithArgs("ns", row).WillReturnRows(found())
		mock.ExpectQuery(`select 1 from kv_columns`).WithArgs("ns", colHash).WillReturnRows(found())
		mock.ExpectQuery(`delete from kv_values .*returning value_hash`).WithArgs("ns", row, colHash).
			WillReturnRows(sqlmock.NewRows([]string{"value_hash"}))
		lock := mock.ExpectExec(`select pg_advisory_xact_lock\(\$1\)`).WithArgs(valueLockKey("ns", colHash, alice))
		if row == "row1" {
			lock.WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec(`insert into kv_values`).WithArgs("ns", row, colHash, "alice", alice).WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectExec(`insert into kv_index`).WithArgs("ns", colHash, alice, cassette.Hash64(alice), row).WillReturnResult(sqlmock.NewResult(1, 1))
			mock.ExpectCommit()
		} else {
			lock.WillReturnError(errors.New("canceling statement due to lock timeout"))
			mock.ExpectRollback()
		}
	}
	require.NoError(t, s.Set(context.Background(), "row1", "name", "alice"))
	require.Error(t, s.Set(context.Background(), "row2", "name", "alice"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetMissingRow(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`select 1 from kv_rows .*for update`).WithArgs("ns", "ghost").WillReturnRows(sqlmock.NewRows([]string{"one"}))
	mock.ExpectRollback()

	err := s.Set(context.Background(), "ghost", "name", "bob")
	if !errors.Is(err, cassette.RowNotFound{}) {
		t.Fatalf("expecting RowNotFound got %v", err)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetMissingColumn(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`select 1 from kv_rows .*for update`).WithArgs("ns", "row1").WillReturnRows(found())
	mock.ExpectQuery(`select 1 from kv_columns`).WithArgs("ns", cassette.KeyHash("email")).WillReturnRows(sqlmock.NewRows([]string{"one"}))
	mock.ExpectRollback()

	err := s.Set(context.Background(), "row1", "email", "bob@example.com")
	if !errors.Is(err, cassette.ColumnNotFound{}) {
		t.Fatalf("expecting ColumnNotFound got %v", err)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearch(t *testing.T) {
	s, mock := newStoreWithMock(t)
	valHash := cassette.KeyHash("alice")
	mock.ExpectQuery(`select row_id from kv_index`).
		WithArgs("ns", cassette.KeyHash("name"), cassette.Hash64(valHash), valHash).
		WillReturnRows(sqlmock.NewRows([]string{"row_id"}).AddRow("a").AddRow("b"))

	rows, err := s.Search(context.Background(), "name", "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, rows)
}

func TestFollowLink(t *testing.T) {
	s, mock := newStoreWithMock(t)
	expires := time.Unix(1700000000, 0)
	mock.ExpectQuery(`select row_id, expires_at from kv_links`).WithArgs("ns", cassette.KeyHash("session")).
		WillReturnRows(sqlmock.NewRows([]string{"row_id", "expires_at"}).AddRow("row1", expires.UnixNano()))
	mock.ExpectQuery(`select row_id, expires_at from kv_links`).WithArgs("ns", cassette.KeyHash("gone")).
		WillReturnRows(sqlmock.NewRows([]string{"row_id", "expires_at"}))

	l, ok, err := s.FollowLink(context.Background(), "session")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "row1", l.Row)
	require.True(t, expires.Equal(l.ExpiresAt))

	_, ok, err = s.FollowLink(context.Background(), "gone")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCreateLinkFirstWins(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`select 1 from kv_rows .*for share`).WithArgs("ns", "row1").WillReturnRows(found())
	mock.ExpectExec(`insert into kv_links`).WithArgs("ns", cassette.KeyHash("session"), "row1", int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	created, err := s.CreateLink(context.Background(), "row1", "session", time.Time{})
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneLinks(t *testing.T) {
	s, mock := newStoreWithMock(t)
	now := time.Now()
	mock.ExpectExec(`delete from kv_links where namespace = .* and expires_at > 0`).WithArgs("ns", now.UnixNano()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.PruneLinks(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestLoadOrCreateSecret(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectQuery(`select value from kv_secrets`).WithArgs("ns", "token").WillReturnRows(sqlmock.NewRows([]string{"value"}))
	mock.ExpectQuery(`insert into kv_secrets`).WithArgs("ns", "token", "fresh").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("stored-by-someone-else"))

	v, err := s.LoadOrCreateSecret(context.Background(), "token", func() (string, error) { return "fresh", nil })
	require.NoError(t, err)
	require.Equal(t, "stored-by-someone-else", v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseErrorsAreWrapped(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectQuery(`select value from kv_values`).WillReturnError(errors.New("db down"))

	_, _, err := s.Get(context.Background(), "row1", "name")
	require.ErrorContains(t, err, "db down")
}
