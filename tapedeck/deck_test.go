package tapedeck

import (
	"context"
	"errors"
	"testing"

	"github.com/andrebq/gatekeeper/cassette"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteNamespaces(t *testing.T) {
	ctx := context.Background()
	d := New(&SQLite{Dir: t.TempDir()})
	defer d.Close()

	auth, err := d.Open(ctx, "authenticate")
	require.NoError(t, err)
	again, err := d.Open(ctx, "authenticate")
	require.NoError(t, err)
	require.True(t, auth == again, "namespaces should be opened only once")

	notifier, err := d.Open(ctx, "notifier")
	require.NoError(t, err)
	require.Equal(t, []string{"authenticate", "notifier"}, d.List())

	// namespaces do not share rows
	require.NoError(t, auth.EnsureRow(ctx, "row1"))
	ok, err := notifier.HasRow(ctx, "row1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInvalidNamespace(t *testing.T) {
	d := New(&Memory{})
	_, err := d.Open(context.Background(), "../etc")
	var invalid InvalidNamespace
	if !errors.As(err, &invalid) {
		t.Fatalf("expecting InvalidNamespace got %v", err)
	}
}

func TestLoadWithoutBackend(t *testing.T) {
	ctx := context.Background()
	d := New(nil)
	mem := cassette.NewMemory(cassette.Options{})
	d.Load("authenticate", mem)
	got, err := d.Open(ctx, "authenticate")
	require.NoError(t, err)
	require.True(t, got == cassette.Tape(mem))
	require.True(t, d.Get("authenticate") == cassette.Tape(mem))

	_, err = d.Open(ctx, "notifier")
	require.Error(t, err)
	require.NoError(t, d.Close())
	require.Empty(t, d.List())
}
