package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andrebq/gatekeeper/cassette"
	"github.com/stretchr/testify/require"
)

func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	tape := cassette.NewMemory(cassette.Options{})
	row, err := tape.CreateRow(ctx)
	require.NoError(t, err)
	c := &clock{now: time.Unix(1700000000, 0)}
	s := NewSessions(tape, 64, time.Hour, WithSessionClock(c.Now))

	session, err := s.Issue(ctx, row)
	require.NoError(t, err)
	require.Len(t, session, 64)

	got, err := s.Resolve(ctx, session)
	require.NoError(t, err)
	require.Equal(t, row, got)

	c.Advance(time.Hour)
	_, err = s.Resolve(ctx, session)
	if !errors.Is(err, InvalidSession{}) {
		t.Fatalf("expecting InvalidSession got %v", err)
	}
	ok, err := tape.HasLink(ctx, session)
	require.NoError(t, err)
	require.False(t, ok, "expired sessions are dropped when seen")
}

func TestSessionsWithoutExpiry(t *testing.T) {
	ctx := context.Background()
	tape := cassette.NewMemory(cassette.Options{})
	row, err := tape.CreateRow(ctx)
	require.NoError(t, err)
	c := &clock{now: time.Unix(1700000000, 0)}
	s := NewSessions(tape, 16, 0, WithSessionClock(c.Now))
	session, err := s.Issue(ctx, row)
	require.NoError(t, err)
	c.Advance(10 * 365 * 24 * time.Hour)
	got, err := s.Resolve(ctx, session)
	require.NoError(t, err)
	require.Equal(t, row, got)
}

func TestUnknownSession(t *testing.T) {
	s := NewSessions(cassette.NewMemory(cassette.Options{}), 16, 0)
	for _, session := range []string{"", "never-issued"} {
		_, err := s.Resolve(context.Background(), session)
		if !errors.Is(err, InvalidSession{}) {
			t.Fatalf("expecting InvalidSession for %q got %v", session, err)
		}
	}
}

func TestLinkCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	tape := cassette.NewMemory(cassette.Options{})
	row, err := tape.CreateRow(ctx)
	require.NoError(t, err)
	cache, err := NewLinkCache(time.Minute)
	require.NoError(t, err)
	defer cache.Close()
	s := NewSessions(tape, 32, time.Hour, WithLinkCache(cache))

	session, err := s.Issue(ctx, row)
	require.NoError(t, err)
	_, err = s.Resolve(ctx, session)
	require.NoError(t, err)

	link, ok := cache.Get(cassette.KeyHash(session))
	require.True(t, ok, "resolved sessions should be cached")
	require.Equal(t, row, link.Row)

	require.NoError(t, s.Revoke(ctx, session))
	_, ok = cache.Get(cassette.KeyHash(session))
	require.False(t, ok, "revoke should drop the cache entry")
	_, err = s.Resolve(ctx, session)
	if !errors.Is(err, InvalidSession{}) {
		t.Fatalf("expecting InvalidSession got %v", err)
	}
}

func TestRevokeSeenByOtherInstances(t *testing.T) {
	ctx := context.Background()
	tape := cassette.NewMemory(cassette.Options{})
	row, err := tape.CreateRow(ctx)
	require.NoError(t, err)

	// two servers sharing the same storage, with the default configuration
	a := NewSessions(tape, 32, time.Hour)
	b := NewSessions(tape, 32, time.Hour)

	session, err := a.Issue(ctx, row)
	require.NoError(t, err)
	got, err := b.Resolve(ctx, session)
	require.NoError(t, err)
	require.Equal(t, row, got)

	require.NoError(t, a.Revoke(ctx, session))
	_, err = b.Resolve(ctx, session)
	if !errors.Is(err, InvalidSession{}) {
		t.Fatalf("expecting InvalidSession got %v", err)
	}
}
