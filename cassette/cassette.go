package cassette

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andrebq/gatekeeper/randid"
	_ "github.com/mattn/go-sqlite3"
)

type (
	// Control is the sqlite backed Store, everything lives in a single
	// k7.db file inside the tape directory.
	Control struct {
		db        *sql.DB
		tape      string
		writeable bool
		idLength  int
		ids       *randid.Generator
	}
)

var (
	_ Store       = (*Control)(nil)
	_ SecretStore = (*Control)(nil)
)

func openCassetteDatabase(ctx context.Context, tape string, readwrite bool) (*sql.DB, error) {
	tape = filepath.Join(tape, "k7.db")
	if readwrite {
		err := os.MkdirAll(filepath.Dir(tape), 0755)
		if err != nil {
			return nil, fmt.Errorf("unable to create directory %v to store cassette, cause %w", tape, err)
		}
	}
	var connstr string
	if readwrite {
		// immediate transactions take the write lock upfront, so two writers
		// racing on the same row serialize instead of failing at commit
		connstr = fmt.Sprintf("file:%v?_writable_schema=false&_journal=wal&_txlock=immediate&_busy_timeout=5000&_foreign_keys=1&mode=rwc", tape)
	} else {
		connstr = fmt.Sprintf("file:%v?_writable_schema=false&_busy_timeout=5000&mode=ro", tape)
	}
	conn, err := sql.Open("sqlite3", connstr)
	if err != nil {
		return nil, fmt.Errorf("unable to open %v, cause %w", tape, err)
	}
	err = conn.PingContext(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to ping cassette %v, cause %w", tape, err)
	}
	return conn, nil
}

// LoadControlCassette opens (and when readwrite is set, creates) the cassette
// stored under the tape directory.
func LoadControlCassette(ctx context.Context, tape string, readwrite bool, opts Options) (*Control, error) {
	conn, err := openCassetteDatabase(ctx, tape, readwrite)
	if err != nil {
		return nil, err
	}
	c := &Control{
		db:        conn,
		tape:      tape,
		writeable: readwrite,
		idLength:  opts.idLength(),
		ids:       randid.New(rand.Reader),
	}
	if readwrite {
		err = c.init(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("unable to init cassette %v, cause %w", tape, err)
		}
	}
	err = verifySchema(ctx, conn, tape)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Control) CreateRow(ctx context.Context) (string, error) {
	if err := c.checkWriteable(); err != nil {
		return "", err
	}
	for i := 0; i < maxCreateAttempts; i++ {
		id, err := c.ids.String(c.idLength)
		if err != nil {
			return "", fmt.Errorf("unable to generate row id, cause %w", err)
		}
		res, err := c.db.ExecContext(ctx, `insert into kv_rows(row_id, created_at) values (?, ?) on conflict do nothing`, id, time.Now().Unix())
		if err != nil {
			return "", fmt.Errorf("unable to create row, cause %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return id, nil
		}
	}
	return "", IDExhausted{Attempts: maxCreateAttempts}
}

func (c *Control) EnsureRow(ctx context.Context, row string) error {
	if err := c.checkWriteable(); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx, `insert into kv_rows(row_id, created_at) values (?, ?) on conflict do nothing`, row, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("unable to ensure row %v, cause %w", row, err)
	}
	return nil
}

func (c *Control) HasRow(ctx context.Context, row string) (bool, error) {
	return c.exists(ctx, `select 1 from kv_rows where row_id = ?`, row)
}

func (c *Control) CreateColumn(ctx context.Context, name string) error {
	if err := c.checkWriteable(); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx, `insert into kv_columns(column_hash) values (?) on conflict do nothing`, KeyHash(name))
	if err != nil {
		return fmt.Errorf("unable to create column %v, cause %w", name, err)
	}
	return nil
}

func (c *Control) HasColumn(ctx context.Context, name string) (bool, error) {
	return c.exists(ctx, `select 1 from kv_columns where column_hash = ?`, KeyHash(name))
}

func (c *Control) IsSet(ctx context.Context, row, column string) (bool, error) {
	return c.exists(ctx, `select 1 from kv_values where row_id = ? and column_hash = ?`, row, KeyHash(column))
}

func (c *Control) Set(ctx context.Context, row, column, value string) error {
	if err := c.checkWriteable(); err != nil {
		return err
	}
	colHash, valHash := KeyHash(column), KeyHash(value)
	return c.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireRowColumn(ctx, tx, row, column, colHash); err != nil {
			return err
		}
		if err := unsetTx(ctx, tx, row, colHash); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `insert into kv_values(row_id, column_hash, value, value_hash) values (?, ?, ?, ?)`, row, colHash, value, valHash)
		if err != nil {
			return fmt.Errorf("unable to set %v on row %v, cause %w", column, row, err)
		}
		_, err = tx.ExecContext(ctx, `insert into kv_index(column_hash, value_hash, value_hash64, row_id) values (?, ?, ?, ?) on conflict do nothing`,
			colHash, valHash, Hash64(valHash), row)
		if err != nil {
			return fmt.Errorf("unable to index %v on row %v, cause %w", column, row, err)
		}
		return nil
	})
}

func (c *Control) Unset(ctx context.Context, row, column string) error {
	if err := c.checkWriteable(); err != nil {
		return err
	}
	colHash := KeyHash(column)
	return c.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireRowColumn(ctx, tx, row, column, colHash); err != nil {
			return err
		}
		return unsetTx(ctx, tx, row, colHash)
	})
}

func (c *Control) Get(ctx context.Context, row, column string) (string, bool, error) {
	var value string
	err := c.db.QueryRowContext(ctx, `select value from kv_values where row_id = ? and column_hash = ?`, row, KeyHash(column)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("unable to read %v from row %v, cause %w", column, row, err)
	}
	return value, true, nil
}

func (c *Control) Search(ctx context.Context, column, value string) ([]string, error) {
	colHash, valHash := KeyHash(column), KeyHash(value)
	rows, err := c.db.QueryContext(ctx, `select row_id from kv_index
		where column_hash = ? and value_hash64 = ? and value_hash = ?
		order by seq asc`, colHash, Hash64(valHash), valHash)
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

func (c *Control) CreateLink(ctx context.Context, row, key string, expiresAt time.Time) (bool, error) {
	if err := c.checkWriteable(); err != nil {
		return false, err
	}
	var created bool
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		found, err := txExists(ctx, tx, `select 1 from kv_rows where row_id = ?`, row)
		if err != nil {
			return err
		} else if !found {
			return RowNotFound{Row: row}
		}
		res, err := tx.ExecContext(ctx, `insert into kv_links(link_hash, row_id, expires_at) values (?, ?, ?) on conflict do nothing`,
			KeyHash(key), row, ToUnixNano(expiresAt))
		if err != nil {
			return fmt.Errorf("unable to create link to row %v, cause %w", row, err)
		}
		n, _ := res.RowsAffected()
		created = n == 1
		return nil
	})
	return created, err
}

func (c *Control) HasLink(ctx context.Context, key string) (bool, error) {
	return c.exists(ctx, `select 1 from kv_links where link_hash = ?`, KeyHash(key))
}

func (c *Control) FollowLink(ctx context.Context, key string) (Link, bool, error) {
	var l Link
	var expires int64
	err := c.db.QueryRowContext(ctx, `select row_id, expires_at from kv_links where link_hash = ?`, KeyHash(key)).Scan(&l.Row, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Link{}, false, nil
	} else if err != nil {
		return Link{}, false, fmt.Errorf("unable to follow link, cause %w", err)
	}
	l.ExpiresAt = FromUnixNano(expires)
	return l, true, nil
}

func (c *Control) RemoveLink(ctx context.Context, key string) error {
	if err := c.checkWriteable(); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx, `delete from kv_links where link_hash = ?`, KeyHash(key))
	if err != nil {
		return fmt.Errorf("unable to remove link, cause %w", err)
	}
	return nil
}

func (c *Control) PruneLinks(ctx context.Context, before time.Time) (int64, error) {
	if err := c.checkWriteable(); err != nil {
		return 0, err
	}
	res, err := c.db.ExecContext(ctx, `delete from kv_links where expires_at > 0 and expires_at <= ?`, ToUnixNano(before))
	if err != nil {
		return 0, fmt.Errorf("unable to prune links, cause %w", err)
	}
	return res.RowsAffected()
}

func (c *Control) LoadOrCreateSecret(ctx context.Context, name string, gen func() (string, error)) (string, error) {
	var value string
	err := c.db.QueryRowContext(ctx, `select value from kv_secrets where name = ?`, name).Scan(&value)
	if err == nil {
		return value, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("unable to load secret %v, cause %w", name, err)
	}
	if err := c.checkWriteable(); err != nil {
		return "", err
	}
	value, err = gen()
	if err != nil {
		return "", fmt.Errorf("unable to generate secret %v, cause %w", name, err)
	}
	// another process might have won the race, the stored value is the one that counts
	err = c.db.QueryRowContext(ctx, `insert into kv_secrets(name, value) values (?, ?)
		on conflict (name) do update set name = excluded.name returning value`, name, value).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("unable to store secret %v, cause %w", name, err)
	}
	return value, nil
}

func (c *Control) checkWriteable() error {
	if !c.writeable {
		return ReadOnlyTape{Path: c.tape}
	}
	return nil
}

func (c *Control) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("unable to query cassette, cause %w", err)
	}
	return true, nil
}

func (c *Control) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
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

func txExists(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("unable to query cassette, cause %w", err)
	}
	return true, nil
}

func requireRowColumn(ctx context.Context, tx *sql.Tx, row, column, colHash string) error {
	found, err := txExists(ctx, tx, `select 1 from kv_rows where row_id = ?`, row)
	if err != nil {
		return err
	} else if !found {
		return RowNotFound{Row: row}
	}
	found, err = txExists(ctx, tx, `select 1 from kv_columns where column_hash = ?`, colHash)
	if err != nil {
		return err
	} else if !found {
		return ColumnNotFound{Column: column}
	}
	return nil
}

func unsetTx(ctx context.Context, tx *sql.Tx, row, colHash string) error {
	var valHash string
	err := tx.QueryRowContext(ctx, `select value_hash from kv_values where row_id = ? and column_hash = ?`, row, colHash).Scan(&valHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	} else if err != nil {
		return fmt.Errorf("unable to read current value, cause %w", err)
	}
	_, err = tx.ExecContext(ctx, `delete from kv_values where row_id = ? and column_hash = ?`, row, colHash)
	if err != nil {
		return fmt.Errorf("unable to remove value, cause %w", err)
	}
	_, err = tx.ExecContext(ctx, `delete from kv_index where column_hash = ? and value_hash = ? and row_id = ?`, colHash, valHash, row)
	if err != nil {
		return fmt.Errorf("unable to remove value from index, cause %w", err)
	}
	return nil
}

func (c *Control) init(ctx context.Context) error {
	for _, cmd := range []string{
		`create table if not exists kv_rows(
			row_id text not null primary key,
			created_at integer not null
		)`,
		`create table if not exists kv_columns(
			column_hash text not null primary key
		)`,
		`create table if not exists kv_values(
			row_id text not null,
			column_hash text not null,
			value text not null,
			value_hash text not null,
			primary key (row_id, column_hash),
			foreign key (row_id) references kv_rows(row_id),
			foreign key (column_hash) references kv_columns(column_hash)
		)`,
		`create table if not exists kv_index(
			seq integer not null primary key autoincrement,
			column_hash text not null,
			value_hash text not null,
			value_hash64 integer not null,
			row_id text not null,
			unique (column_hash, value_hash, row_id),
			foreign key (row_id) references kv_rows(row_id)
		)`,
		`create index if not exists idx_kv_index_lookup
			on kv_index(column_hash, value_hash64)
		`,
		`create table if not exists kv_links(
			link_hash text not null primary key,
			row_id text not null,
			expires_at integer not null,
			foreign key (row_id) references kv_rows(row_id)
		)`,
		`create index if not exists idx_kv_links_expires_at
			on kv_links(expires_at)
		`,
		`create table if not exists kv_secrets(
			name text not null primary key,
			value text not null
		)`,
	} {
		_, err := c.db.ExecContext(ctx, cmd)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Control) Close() error {
	return c.db.Close()
}
