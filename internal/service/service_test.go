package service

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/andrebq/gatekeeper/authority"
	"github.com/andrebq/gatekeeper/config"
	"github.com/andrebq/gatekeeper/credentials"
	"github.com/andrebq/gatekeeper/tapedeck"
	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Storage.Dir = t.TempDir()
	cfg.Lengths.Salt = 16
	cfg.Lengths.Session = 32
	cfg.Hashing.PasswordRounds = 4
	cfg.Hashing.TokenRounds = 4
	return cfg
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	row, err := s.Manager.SignUp(ctx, "alice", "longenough1")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// everything survives a restart, including the token secret
	s, err = Open(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, []string{"authenticate", "notifier"}, s.Deck.List())
	token, err := s.Manager.SignIn(ctx, "alice", "longenough1")
	require.NoError(t, err)
	got, err := s.Manager.Validate(ctx, token)
	require.NoError(t, err)
	require.Equal(t, row, got)
}

func TestHandler(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Tokens.Enabled = false
	s, err := Open(ctx, cfg, WithBackend(&tapedeck.Memory{}))
	require.NoError(t, err)
	defer s.Close()
	h := s.Handler()

	apitest.New().
		Handler(h).
		Post("/apis/authenticate").
		JSON(`{"action": "signUp", "parameters": {"name": "bob", "password": "longenough1"}}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.success", true)).
		End()

	session, err := s.Manager.SignIn(ctx, "bob", "longenough1")
	require.NoError(t, err)
	require.Len(t, session, 32)
	require.NoError(t, s.Notify(ctx, "bob", "welcome", "hello bob"))

	apitest.New().
		Handler(h).
		Post("/apis/notifier").
		Header("Authorization", "Bearer "+session).
		JSON(`{"action": "checkout", "parameters": {}}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.result[0].message", "hello bob")).
		End()

	err = s.Notify(ctx, "nobody", "welcome", "hello")
	require.True(t, errors.Is(err, credentials.UserNotFound{}))
}

func TestJWTWithEnvSecret(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Tokens.Format = config.FormatJWT
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	secrets, err := authority.EnvSecret("KEY", func(string) string { return key }, func(string, string) error { return nil })
	require.NoError(t, err)
	s, err := Open(ctx, cfg, WithBackend(&tapedeck.Memory{}), WithSecrets(secrets))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Manager.SignUp(ctx, "carol", "longenough1")
	require.NoError(t, err)
	token, err := s.Manager.SignIn(ctx, "carol", "longenough1")
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(token, "."), "jwt tokens have three segments")
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Tokens.Enabled = false
	cfg.Sessions.Validity = time.Minute
	cfg.Sessions.CacheTTL = 0
	s, err := Open(ctx, cfg, WithBackend(&tapedeck.Memory{}))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Manager.SignUp(ctx, "dave", "longenough1")
	require.NoError(t, err)
	session, err := s.Manager.SignIn(ctx, "dave", "longenough1")
	require.NoError(t, err)

	n, err := s.Prune(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	n, err = s.Prune(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	_, err = s.Manager.Validate(ctx, session)
	require.True(t, errors.Is(err, credentials.InvalidSession{}))
}

func TestRejectUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "mysql"
	_, err := Open(context.Background(), cfg)
	require.True(t, errors.Is(err, config.Invalid{}))
}

func TestSignOutAcrossServers(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Tokens.Enabled = false

	a, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer b.Close()

	_, err = a.Manager.SignUp(ctx, "erin", "longenough1")
	require.NoError(t, err)
	session, err := a.Manager.SignIn(ctx, "erin", "longenough1")
	require.NoError(t, err)
	_, err = b.Manager.Validate(ctx, session)
	require.NoError(t, err)

	require.NoError(t, a.Manager.SignOut(ctx, session))
	_, err = b.Manager.Validate(ctx, session)
	require.True(t, errors.Is(err, credentials.InvalidSession{}), "got %v", err)
}
