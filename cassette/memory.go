package cassette

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/andrebq/gatekeeper/randid"
)

type (
	// Memory is a Store that lives only as long as the process, mostly
	// useful for tests and throwaway servers.
	Memory struct {
		sync.RWMutex

		ids      *randid.Generator
		idLength int

		rows    map[string]struct{}
		columns map[string]struct{}
		// values[row][columnHash]
		values map[string]map[string]string
		// index[columnHash][valueHash] keeps rows in insertion order
		index   map[string]map[string][]string
		links   map[string]Link
		secrets map[string]string
	}
)

var (
	_ Store       = (*Memory)(nil)
	_ SecretStore = (*Memory)(nil)
)

func NewMemory(opts Options) *Memory {
	return &Memory{
		ids:      randid.New(rand.Reader),
		idLength: opts.idLength(),
		rows:     map[string]struct{}{},
		columns:  map[string]struct{}{},
		values:   map[string]map[string]string{},
		index:    map[string]map[string][]string{},
		links:    map[string]Link{},
		secrets:  map[string]string{},
	}
}

func (m *Memory) CreateRow(ctx context.Context) (string, error) {
	m.Lock()
	defer m.Unlock()
	for i := 0; i < maxCreateAttempts; i++ {
		id, err := m.ids.String(m.idLength)
		if err != nil {
			return "", err
		}
		if _, taken := m.rows[id]; taken {
			continue
		}
		m.rows[id] = struct{}{}
		return id, nil
	}
	return "", IDExhausted{Attempts: maxCreateAttempts}
}

func (m *Memory) EnsureRow(ctx context.Context, row string) error {
	m.Lock()
	defer m.Unlock()
	m.rows[row] = struct{}{}
	return nil
}

func (m *Memory) HasRow(ctx context.Context, row string) (bool, error) {
	m.RLock()
	defer m.RUnlock()
	_, ok := m.rows[row]
	return ok, nil
}

func (m *Memory) CreateColumn(ctx context.Context, name string) error {
	m.Lock()
	defer m.Unlock()
	m.columns[KeyHash(name)] = struct{}{}
	return nil
}

func (m *Memory) HasColumn(ctx context.Context, name string) (bool, error) {
	m.RLock()
	defer m.RUnlock()
	_, ok := m.columns[KeyHash(name)]
	return ok, nil
}

func (m *Memory) IsSet(ctx context.Context, row, column string) (bool, error) {
	m.RLock()
	defer m.RUnlock()
	_, ok := m.values[row][KeyHash(column)]
	return ok, nil
}

func (m *Memory) Set(ctx context.Context, row, column, value string) error {
	colHash := KeyHash(column)
	m.Lock()
	defer m.Unlock()
	if err := m.requireRowColumn(row, column, colHash); err != nil {
		return err
	}
	m.unset(row, colHash)
	if m.values[row] == nil {
		m.values[row] = map[string]string{}
	}
	m.values[row][colHash] = value

	valHash := KeyHash(value)
	if m.index[colHash] == nil {
		m.index[colHash] = map[string][]string{}
	}
	m.index[colHash][valHash] = append(m.index[colHash][valHash], row)
	return nil
}

func (m *Memory) Unset(ctx context.Context, row, column string) error {
	colHash := KeyHash(column)
	m.Lock()
	defer m.Unlock()
	if err := m.requireRowColumn(row, column, colHash); err != nil {
		return err
	}
	m.unset(row, colHash)
	return nil
}

func (m *Memory) Get(ctx context.Context, row, column string) (string, bool, error) {
	m.RLock()
	defer m.RUnlock()
	v, ok := m.values[row][KeyHash(column)]
	return v, ok, nil
}

func (m *Memory) Search(ctx context.Context, column, value string) ([]string, error) {
	m.RLock()
	defer m.RUnlock()
	found := m.index[KeyHash(column)][KeyHash(value)]
	if len(found) == 0 {
		return nil, nil
	}
	return append([]string(nil), found...), nil
}

func (m *Memory) CreateLink(ctx context.Context, row, key string, expiresAt time.Time) (bool, error) {
	m.Lock()
	defer m.Unlock()
	if _, ok := m.rows[row]; !ok {
		return false, RowNotFound{Row: row}
	}
	h := KeyHash(key)
	if _, taken := m.links[h]; taken {
		return false, nil
	}
	m.links[h] = Link{Row: row, ExpiresAt: expiresAt}
	return true, nil
}

func (m *Memory) HasLink(ctx context.Context, key string) (bool, error) {
	m.RLock()
	defer m.RUnlock()
	_, ok := m.links[KeyHash(key)]
	return ok, nil
}

func (m *Memory) FollowLink(ctx context.Context, key string) (Link, bool, error) {
	m.RLock()
	defer m.RUnlock()
	l, ok := m.links[KeyHash(key)]
	return l, ok, nil
}

func (m *Memory) RemoveLink(ctx context.Context, key string) error {
	m.Lock()
	defer m.Unlock()
	delete(m.links, KeyHash(key))
	return nil
}

func (m *Memory) PruneLinks(ctx context.Context, before time.Time) (int64, error) {
	m.Lock()
	defer m.Unlock()
	var n int64
	for k, l := range m.links {
		if l.Expired(before) {
			delete(m.links, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) LoadOrCreateSecret(ctx context.Context, name string, gen func() (string, error)) (string, error) {
	m.Lock()
	defer m.Unlock()
	if v, ok := m.secrets[name]; ok {
		return v, nil
	}
	v, err := gen()
	if err != nil {
		return "", err
	}
	m.secrets[name] = v
	return v, nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) requireRowColumn(row, column, colHash string) error {
	if _, ok := m.rows[row]; !ok {
		return RowNotFound{Row: row}
	}
	if _, ok := m.columns[colHash]; !ok {
		return ColumnNotFound{Column: column}
	}
	return nil
}

func (m *Memory) unset(row, colHash string) {
	old, ok := m.values[row][colHash]
	if !ok {
		return
	}
	delete(m.values[row], colHash)
	valHash := KeyHash(old)
	entries := m.index[colHash][valHash]
	for i, r := range entries {
		if r == row {
			entries = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(m.index[colHash], valHash)
	} else {
		m.index[colHash][valHash] = entries
	}
}
