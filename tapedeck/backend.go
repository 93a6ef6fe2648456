package tapedeck

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/andrebq/gatekeeper/cassette"
	"github.com/andrebq/gatekeeper/cassette/pgcassette"
)

type (
	// SQLite keeps every namespace in its own directory under Dir
	SQLite struct {
		Dir     string
		Options cassette.Options
	}

	Memory struct {
		Options cassette.Options
	}

	// Postgres shares one connection pool among all namespaces
	Postgres struct {
		DSN     string
		Options cassette.Options

		once sync.Once
		db   *sql.DB
		err  error
	}

	InvalidNamespace struct {
		Name string
	}
)

var (
	reValidNamespace = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
)

func (i InvalidNamespace) Error() string {
	return fmt.Sprintf("tapedeck: invalid namespace %q", i.Name)
}

func checkNamespace(name string) error {
	if !reValidNamespace.MatchString(name) {
		return InvalidNamespace{Name: name}
	}
	return nil
}

func (s *SQLite) Open(ctx context.Context, namespace string) (cassette.Tape, error) {
	if err := checkNamespace(namespace); err != nil {
		return nil, err
	}
	return cassette.LoadControlCassette(ctx, filepath.Join(s.Dir, namespace), true, s.Options)
}

func (s *SQLite) Close() error { return nil }

func (m *Memory) Open(ctx context.Context, namespace string) (cassette.Tape, error) {
	if err := checkNamespace(namespace); err != nil {
		return nil, err
	}
	return cassette.NewMemory(m.Options), nil
}

func (m *Memory) Close() error { return nil }

func (p *Postgres) Open(ctx context.Context, namespace string) (cassette.Tape, error) {
	if err := checkNamespace(namespace); err != nil {
		return nil, err
	}
	p.once.Do(func() {
		p.db, p.err = pgcassette.Connect(ctx, p.DSN)
	})
	if p.err != nil {
		return nil, p.err
	}
	return pgcassette.New(p.db, namespace, p.Options), nil
}

func (p *Postgres) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
