package authority

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/andrebq/gatekeeper/cassette"
	"github.com/andrebq/gatekeeper/randid"
	"github.com/stretchr/testify/require"
)

func TestStoreSecretIsShared(t *testing.T) {
	ctx := context.Background()
	store := cassette.NewMemory(cassette.Options{})

	first := NewStoreSecret(store)
	require.NoError(t, first.Bootstrap(ctx))
	value, err := first.secret(ctx)
	require.NoError(t, err)
	require.Len(t, value, SecretLength)
	for _, c := range value {
		require.True(t, strings.ContainsRune(randid.Alphabet, c))
	}

	// a second process on the same store must sign with the same key
	a := New(first, WithRounds(1))
	b := New(NewStoreSecret(store), WithRounds(1))
	token, err := a.Issue(ctx, "authenticate", "row1", time.Hour)
	require.NoError(t, err)
	payload, err := b.Validate(ctx, "authenticate", token)
	require.NoError(t, err)
	require.Equal(t, "row1", payload)
}

type failingSecrets struct{}

func (failingSecrets) LoadOrCreateSecret(context.Context, string, func() (string, error)) (string, error) {
	return "", errors.New("disk on fire")
}

func TestStoreSecretFailure(t *testing.T) {
	a := New(NewStoreSecret(failingSecrets{}))
	_, err := a.Issue(context.Background(), "authenticate", "row1", time.Hour)
	require.ErrorContains(t, err, "disk on fire")
}

func TestEnvSecret(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	env := map[string]string{RootKeyEnvVar: key}
	get := func(k string) string { return env[k] }
	set := func(k, v string) error { env[k] = v; return nil }

	provider, err := EnvSecret(RootKeyEnvVar, get, set)
	require.NoError(t, err)
	require.Empty(t, env[RootKeyEnvVar], "variable should be cleared after reading")

	value, err := provider.secret(context.Background())
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("k", 32), value)

	_, err = EnvSecret(RootKeyEnvVar, get, set)
	var invalid InvalidSecret
	require.True(t, errors.As(err, &invalid), "empty variable should be rejected")

	env[RootKeyEnvVar] = base64.StdEncoding.EncodeToString([]byte("short"))
	_, err = EnvSecret(RootKeyEnvVar, get, set)
	require.True(t, errors.As(err, &invalid), "short keys should be rejected")

	env[RootKeyEnvVar] = "%%%"
	_, err = EnvSecret(RootKeyEnvVar, get, set)
	require.True(t, errors.As(err, &invalid), "invalid base64 should be rejected")
}
