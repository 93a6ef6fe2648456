// Package pgcassette keeps cassette data on a shared PostgreSQL server so
// several gatekeeper processes can serve the same users. Every store works
// inside a namespace, so one database can hold many of them.
package pgcassette

import (
	"context"
	"crypto/rand"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/andrebq/gatekeeper/cassette"
	"github.com/andrebq/gatekeeper/randid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const (
	createAttempts = 16
)

//go:embed migrations/*.sql
var migrations embed.FS

type (
	Store struct {
		db        *sql.DB
		namespace string
		idLength  int
		ids       *randid.Generator
		// owned is set when Close should also close db
		owned bool
	}
)

var (
	_ cassette.Store       = (*Store)(nil)
	_ cassette.SecretStore = (*Store)(nil)

	// gooseUpContext is a seam for testing goose.UpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.UpContext(ctx, db, dir, opts...)
	}
)

// Connect opens a connection pool to dsn and applies pending migrations.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open postgres connection, cause %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping postgres, cause %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Open is Connect plus New, the returned store owns the connection pool.
func Open(ctx context.Context, dsn string, namespace string, opts cassette.Options) (*Store, error) {
	db, err := Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := New(db, namespace, opts)
	s.owned = true
	return s, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("unable to configure migrations, cause %w", err)
	}
	if err := gooseUpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("unable to migrate cassette schema, cause %w", err)
	}
	return nil
}

// New wraps an already migrated database, closing the store leaves db open
// so many namespaces can share it.
func New(db *sql.DB, namespace string, opts cassette.Options) *Store {
	idLength := opts.IDLength
	if idLength <= 0 {
		idLength = cassette.DefaultIDLength
	}
	return &Store{
		db:        db,
		namespace: namespace,
		idLength:  idLength,
		ids:       randid.New(rand.Reader),
	}
}

func (s *Store) CreateRow(ctx context.Context) (string, error) {
	for i := 0; i < createAttempts; i++ {
		id, err := s.ids.String(s.idLength)
		if err != nil {
			return "", fmt.Errorf("unable to generate row id, cause %w", err)
		}
		res, err := s.db.ExecContext(ctx, `insert into kv_rows(namespace, row_id) values ($1, $2) on conflict do nothing`, s.namespace, id)
		if err != nil {
			return "", fmt.Errorf("unable to create row, cause %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return id, nil
		}
	}
	return "", cassette.IDExhausted{Attempts: createAttempts}
}

func (s *Store) EnsureRow(ctx context.Context, row string) error {
	_, err := s.db.ExecContext(ctx, `insert into kv_rows(namespace, row_id) values ($1, $2) on conflict do nothing`, s.namespace, row)
	if err != nil {
		return fmt.Errorf("unable to ensure row %v, cause %w", row, err)
	}
	return nil
}

func (s *Store) HasRow(ctx context.Context, row string) (bool, error) {
	return exists(ctx, s.db, `select 1 from kv_rows where namespace = $1 and row_id = $2`, s.namespace, row)
}

func (s *Store) CreateColumn(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `insert into kv_columns(namespace, column_hash) values ($1, $2) on conflict do nothing`, s.namespace, cassette.KeyHash(name))
	if err != nil {
		return fmt.Errorf("unable to create column %v, cause %w", name, err)
	}
	return nil
}

func (s *Store) HasColumn(ctx context.Context, name string) (bool, error) {
	return exists(ctx, s.db, `select 1 from kv_columns where namespace = $1 and column_hash = $2`, s.namespace, cassette.KeyHash(name))
}

func (s *Store) IsSet(ctx context.Context, row, column string) (bool, error) {
	return exists(ctx, s.db, `select 1 from kv_values where namespace = $1 and row_id = $2 and column_hash = $3`,
		s.namespace, row, cassette.KeyHash(column))
}

func (s *Store) Set(ctx context.Context, row, column, value string) error {
	colHash, valHash := cassette.KeyHash(column), cassette.KeyHash(value)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockRowColumn(ctx, tx, row, column, colHash); err != nil {
			return err
		}
		if err := s.unset(ctx, tx, row, colHash); err != nil {
			return err
		}
		// rows holding the same value must be indexed in commit order, or
		// two concurrent writers could both find themselves first in Search
		_, err := tx.ExecContext(ctx, `select pg_advisory_xact_lock($1)`, valueLockKey(s.namespace, colHash, valHash))
		if err != nil {
			return fmt.Errorf("unable to lock value of %v, cause %w", column, err)
		}
		_, err = tx.ExecContext(ctx, `insert into kv_values(namespace, row_id, column_hash, value, value_hash) values ($1, $2, $3, $4, $5)`,
			s.namespace, row, colHash, value, valHash)
		if err != nil {
			return fmt.Errorf("unable to set %v on row %v, cause %w", column, row, err)
		}
		_, err = tx.ExecContext(ctx, `insert into kv_index(namespace, column_hash, value_hash, value_hash64, row_id) values ($1, $2, $3, $4, $5) on conflict do nothing`,
			s.namespace, colHash, valHash, cassette.Hash64(valHash), row)
		if err != nil {
			return fmt.Errorf("unable to index %v on row %v, cause %w", column, row, err)
		}
		return nil
	})
}

func (s *Store) Unset(ctx context.Context, row, column string) error {
	colHash := cassette.KeyHash(column)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockRowColumn(ctx, tx, row, column, colHash); err != nil {
			return err
		}
		return s.unset(ctx, tx, row, colHash)
	})
}

func (s *Store) Get(ctx context.Context, row, column string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `select value from kv_values where namespace = $1 and row_id = $2 and column_hash = $3`,
		s.namespace, row, cassette.KeyHash(column)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("unable to read %v from row %v, cause %w", column, row, err)
	}
	return value, true, nil
}

func (s *Store) Search(ctx context.Context, column, value string) ([]string, error) {
	colHash, valHash := cassette.KeyHash(column), cassette.KeyHash(value)
	rows, err := s.db.QueryContext(ctx, `select row_id from kv_index
		where namespace = $1 and column_hash = $2 and value_hash64 = $3 and value_hash = $4
		order by seq asc`, s.namespace, colHash, cassette.Hash64(valHash), valHash)
	if err != nil {
		return nil, fmt.Errorf("unable to search column %v, cause %w", column, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("unable to scan search result, cause %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) CreateLink(ctx context.Context, row, key string, expiresAt time.Time) (bool, error) {
	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		found, err := exists(ctx, tx, `select 1 from kv_rows where namespace = $1 and row_id = $2 for share`, s.namespace, row)
		if err != nil {
			return err
		} else if !found {
			return cassette.RowNotFound{Row: row}
		}
		res, err := tx.ExecContext(ctx, `insert into kv_links(namespace, link_hash, row_id, expires_at) values ($1, $2, $3, $4) on conflict do nothing`,
			s.namespace, cassette.KeyHash(key), row, cassette.ToUnixNano(expiresAt))
		if err != nil {
			return fmt.Errorf("unable to create link to row %v, cause %w", row, err)
		}
		n, _ := res.RowsAffected()
		created = n == 1
		return nil
	})
	return created, err
}

func (s *Store) HasLink(ctx context.Context, key string) (bool, error) {
	return exists(ctx, s.db, `select 1 from kv_links where namespace = $1 and link_hash = $2`, s.namespace, cassette.KeyHash(key))
}

func (s *Store) FollowLink(ctx context.Context, key string) (cassette.Link, bool, error) {
	var l cassette.Link
	var expires int64
	err := s.db.QueryRowContext(ctx, `select row_id, expires_at from kv_links where namespace = $1 and link_hash = $2`,
		s.namespace, cassette.KeyHash(key)).Scan(&l.Row, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return cassette.Link{}, false, nil
	} else if err != nil {
		return cassette.Link{}, false, fmt.Errorf("unable to follow link, cause %w", err)
	}
	l.ExpiresAt = cassette.FromUnixNano(expires)
	return l, true, nil
}

func (s *Store) RemoveLink(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `delete from kv_links where namespace = $1 and link_hash = $2`, s.namespace, cassette.KeyHash(key))
	if err != nil {
		return fmt.Errorf("unable to remove link, cause %w", err)
	}
	return nil
}

func (s *Store) PruneLinks(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from kv_links where namespace = $1 and expires_at > 0 and expires_at <= $2`,
		s.namespace, cassette.ToUnixNano(before))
	if err != nil {
		return 0, fmt.Errorf("unable to prune links, cause %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) LoadOrCreateSecret(ctx context.Context, name string, gen func() (string, error)) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `select value from kv_secrets where namespace = $1 and name = $2`, s.namespace, name).Scan(&value)
	if err == nil {
		return value, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("unable to load secret %v, cause %w", name, err)
	}
	value, err = gen()
	if err != nil {
		return "", fmt.Errorf("unable to generate secret %v, cause %w", name, err)
	}
	err = s.db.QueryRowContext(ctx, `insert into kv_secrets(namespace, name, value) values ($1, $2, $3)
		on conflict (namespace, name) do update set name = excluded.name returning value`, s.namespace, name, value).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("unable to store secret %v, cause %w", name, err)
	}
	return value, nil
}

func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// lockRowColumn holds the row until the transaction ends, concurrent writers
// to the same row queue behind it.
func (s *Store) lockRowColumn(ctx context.Context, tx *sql.Tx, row, column, colHash string) error {
	found, err := exists(ctx, tx, `select 1 from kv_rows where namespace = $1 and row_id = $2 for update`, s.namespace, row)
	if err != nil {
		return err
	} else if !found {
		return cassette.RowNotFound{Row: row}
	}
	found, err = exists(ctx, tx, `select 1 from kv_columns where namespace = $1 and column_hash = $2`, s.namespace, colHash)
	if err != nil {
		return err
	} else if !found {
		return cassette.ColumnNotFound{Column: column}
	}
	return nil
}

func (s *Store) unset(ctx context.Context, tx *sql.Tx, row, colHash string) error {
	var valHash string
	err := tx.QueryRowContext(ctx, `delete from kv_values where namespace = $1 and row_id = $2 and column_hash = $3 returning value_hash`,
		s.namespace, row, colHash).Scan(&valHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	} else if err != nil {
		return fmt.Errorf("unable to remove value, cause %w", err)
	}
	_, err = tx.ExecContext(ctx, `delete from kv_index where namespace = $1 and column_hash = $2 and value_hash = $3 and row_id = $4`,
		s.namespace, colHash, valHash, row)
	if err != nil {
		return fmt.Errorf("unable to remove value from index, cause %w", err)
	}
	return nil
}

func valueLockKey(namespace, colHash, valHash string) int64 {
	return cassette.Hash64(namespace + "/" + colHash + "/" + valHash)
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to start transaction, cause %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("unable to commit transaction, cause %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func exists(ctx context.Context, q queryer, query string, args ...interface{}) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("unable to query cassette, cause %w", err)
	}
	return true, nil
}
