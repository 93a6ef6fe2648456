// Package cassettetest holds the behaviour every cassette.Store backend must
// share, backends call Run from their own tests.
package cassettetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/andrebq/gatekeeper/cassette"
	"github.com/stretchr/testify/require"
)

type (
	// Opener returns an empty store, cleanup happens through t.Cleanup
	Opener func(t *testing.T) cassette.Store
)

func Run(t *testing.T, open Opener) {
	for _, tc := range []struct {
		name string
		fn   func(*testing.T, cassette.Store)
	}{
		{"rows", testRows},
		{"values", testValues},
		{"missing row or column", testMissing},
		{"search order", testSearchOrder},
		{"links", testLinks},
		{"prune links", testPruneLinks},
		{"concurrent writers", testConcurrentWriters},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

// RunSecrets is split from Run since not every Store keeps secrets.
func RunSecrets(t *testing.T, open func(t *testing.T) cassette.SecretStore) {
	ctx := context.Background()
	s := open(t)
	calls := 0
	gen := func(v string) func() (string, error) {
		return func() (string, error) {
			calls++
			return v, nil
		}
	}
	first, err := s.LoadOrCreateSecret(ctx, "token", gen("first"))
	require.NoError(t, err)
	require.Equal(t, "first", first)

	second, err := s.LoadOrCreateSecret(ctx, "token", gen("second"))
	require.NoError(t, err)
	require.Equal(t, "first", second)
	require.Equal(t, 1, calls, "generator should run only for the first load")

	_, err = s.LoadOrCreateSecret(ctx, "broken", func() (string, error) { return "", errors.New("no entropy") })
	require.Error(t, err)
}

func testRows(t *testing.T, s cassette.Store) {
	ctx := context.Background()
	a, err := s.CreateRow(ctx)
	require.NoError(t, err)
	b, err := s.CreateRow(ctx)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	ok, err := s.HasRow(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.HasRow(ctx, "not-a-row")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.EnsureRow(ctx, "admin"))
	require.NoError(t, s.EnsureRow(ctx, "admin"))
	ok, err = s.HasRow(ctx, "admin")
	require.NoError(t, err)
	require.True(t, ok)
}

func testValues(t *testing.T, s cassette.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateColumn(ctx, "name"))
	require.NoError(t, s.CreateColumn(ctx, "name"))
	ok, err := s.HasColumn(ctx, "name")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.HasColumn(ctx, "email")
	require.NoError(t, err)
	require.False(t, ok)

	row, err := s.CreateRow(ctx)
	require.NoError(t, err)

	ok, err = s.IsSet(ctx, row, "name")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, row, "name", "alice"))
	v, ok, err := s.Get(ctx, row, "name")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", v)

	found, err := s.Search(ctx, "name", "alice")
	require.NoError(t, err)
	require.Equal(t, []string{row}, found)

	require.NoError(t, s.Set(ctx, row, "name", "bob"))
	found, err = s.Search(ctx, "name", "alice")
	require.NoError(t, err)
	require.Empty(t, found, "overwritten values must leave the index")
	found, err = s.Search(ctx, "name", "bob")
	require.NoError(t, err)
	require.Equal(t, []string{row}, found)

	require.NoError(t, s.Unset(ctx, row, "name"))
	ok, err = s.IsSet(ctx, row, "name")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = s.Get(ctx, row, "name")
	require.NoError(t, err)
	require.False(t, ok)
	found, err = s.Search(ctx, "name", "bob")
	require.NoError(t, err)
	require.Empty(t, found)

	found, err = s.Search(ctx, "unknown", "bob")
	require.NoError(t, err)
	require.Empty(t, found)
}

func testMissing(t *testing.T, s cassette.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateColumn(ctx, "name"))
	err := s.Set(ctx, "ghost", "name", "alice")
	if !errors.Is(err, cassette.RowNotFound{}) {
		t.Fatalf("expecting RowNotFound got %v", err)
	}

	row, err := s.CreateRow(ctx)
	require.NoError(t, err)
	err = s.Set(ctx, row, "email", "alice@example.com")
	if !errors.Is(err, cassette.ColumnNotFound{}) {
		t.Fatalf("expecting ColumnNotFound got %v", err)
	}
	err = s.Unset(ctx, row, "email")
	if !errors.Is(err, cassette.ColumnNotFound{}) {
		t.Fatalf("expecting ColumnNotFound got %v", err)
	}
	_, err = s.CreateLink(ctx, "ghost", "key", time.Time{})
	if !errors.Is(err, cassette.RowNotFound{}) {
		t.Fatalf("expecting RowNotFound got %v", err)
	}
}

func testSearchOrder(t *testing.T, s cassette.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateColumn(ctx, "team"))
	var rows []string
	for i := 0; i < 5; i++ {
		row, err := s.CreateRow(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Set(ctx, row, "team", "blue"))
		rows = append(rows, row)
	}
	found, err := s.Search(ctx, "team", "blue")
	require.NoError(t, err)
	require.Equal(t, rows, found)

	// moving a row out and back puts it at the end
	require.NoError(t, s.Set(ctx, rows[1], "team", "red"))
	require.NoError(t, s.Set(ctx, rows[1], "team", "blue"))
	found, err = s.Search(ctx, "team", "blue")
	require.NoError(t, err)
	require.Equal(t, []string{rows[0], rows[2], rows[3], rows[4], rows[1]}, found)
}

func testLinks(t *testing.T, s cassette.Store) {
	ctx := context.Background()
	a, err := s.CreateRow(ctx)
	require.NoError(t, err)
	b, err := s.CreateRow(ctx)
	require.NoError(t, err)

	expires := time.Now().Add(time.Hour).Round(time.Millisecond)
	created, err := s.CreateLink(ctx, a, "session-a", expires)
	require.NoError(t, err)
	require.True(t, created)

	created, err = s.CreateLink(ctx, b, "session-a", time.Time{})
	require.NoError(t, err)
	require.False(t, created, "first link must win")

	l, ok, err := s.FollowLink(ctx, "session-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a, l.Row)
	require.True(t, expires.Equal(l.ExpiresAt), "expiry should round trip, got %v", l.ExpiresAt)

	ok, err = s.HasLink(ctx, "session-a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.RemoveLink(ctx, "session-a"))
	require.NoError(t, s.RemoveLink(ctx, "session-a"))
	ok, err = s.HasLink(ctx, "session-a")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = s.FollowLink(ctx, "session-a")
	require.NoError(t, err)
	require.False(t, ok)
}

func testPruneLinks(t *testing.T, s cassette.Store) {
	ctx := context.Background()
	row, err := s.CreateRow(ctx)
	require.NoError(t, err)
	now := time.Now()
	for key, exp := range map[string]time.Time{
		"old":    now.Add(-time.Hour),
		"edge":   now,
		"future": now.Add(time.Hour),
		"never":  {},
	} {
		_, err := s.CreateLink(ctx, row, key, exp)
		require.NoError(t, err)
	}
	n, err := s.PruneLinks(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	for key, alive := range map[string]bool{"old": false, "edge": false, "future": true, "never": true} {
		ok, err := s.HasLink(ctx, key)
		require.NoError(t, err)
		require.Equal(t, alive, ok, "link %v", key)
	}
}

func testConcurrentWriters(t *testing.T, s cassette.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateColumn(ctx, "counter"))
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			row, err := s.CreateRow(ctx)
			if err != nil {
				errs <- err
				return
			}
			errs <- s.Set(ctx, row, "counter", fmt.Sprint(i%2))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	even, err := s.Search(ctx, "counter", "0")
	require.NoError(t, err)
	odd, err := s.Search(ctx, "counter", "1")
	require.NoError(t, err)
	require.Len(t, even, 8)
	require.Len(t, odd, 8)
}
