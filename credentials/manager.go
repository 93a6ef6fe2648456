package credentials

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/andrebq/gatekeeper/cassette"
	"github.com/andrebq/gatekeeper/hashing"
	"github.com/andrebq/gatekeeper/internal/logutil"
	"github.com/andrebq/gatekeeper/randid"
)

type (
	Policy struct {
		MinPasswordLength int
		SaltLength        int
		LockoutDuration   time.Duration
		// UniformFailures reports unknown users as WrongPassword, after
		// spending the same time a real verification would take.
		UniformFailures bool
	}

	Manager struct {
		store  cassette.Store
		hasher hashing.PasswordHasher
		issuer Issuer
		policy Policy
		now    func() time.Time

		// signup serializes sign-ups from this process, the search done
		// after claiming a name covers other processes
		signup sync.Mutex

		dummySalt string
	}

	Option func(*Manager)
)

func DefaultPolicy() Policy {
	return Policy{
		MinPasswordLength: 8,
		SaltLength:        512,
		LockoutDuration:   10 * time.Second,
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store cassette.Store, hasher hashing.PasswordHasher, issuer Issuer, policy Policy, opts ...Option) (*Manager, error) {
	dummy, err := randid.String(policy.SaltLength)
	if err != nil {
		return nil, fmt.Errorf("unable to prepare manager, cause %w", err)
	}
	m := &Manager{
		store:     store,
		hasher:    hasher,
		issuer:    issuer,
		policy:    policy,
		now:       time.Now,
		dummySalt: dummy,
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Revocable reports if credentials from this manager can be signed out.
func (m *Manager) Revocable() bool {
	_, tokens := m.issuer.(*Tokens)
	return !tokens
}

func (m *Manager) SignUp(ctx context.Context, name, password string) (string, error) {
	m.signup.Lock()
	defer m.signup.Unlock()

	found, err := m.store.Search(ctx, ColumnName, name)
	if err != nil {
		return "", err
	}
	if len(found) > 0 {
		return "", NameTaken{}
	}
	if len(password) < m.policy.MinPasswordLength {
		return "", PasswordTooShort{Min: m.policy.MinPasswordLength}
	}
	row, err := m.store.CreateRow(ctx)
	if err != nil {
		return "", err
	}
	salt, err := randid.String(m.policy.SaltLength)
	if err != nil {
		return "", err
	}
	for _, kv := range [][2]string{
		{ColumnSalt, salt},
		{ColumnHash, m.hasher.Hash(password, salt)},
		{ColumnLock, "0"},
		// name goes last, the user cannot be found before the other columns are there
		{ColumnName, name},
	} {
		if err := m.store.Set(ctx, row, kv[0], kv[1]); err != nil {
			return "", fmt.Errorf("unable to write %v for new user, cause %w", kv[0], err)
		}
	}

	found, err = m.store.Search(ctx, ColumnName, name)
	if err != nil {
		return "", err
	}
	if len(found) > 0 && found[0] != row {
		// another process claimed the name first
		if err := m.store.Unset(ctx, row, ColumnName); err != nil {
			return "", fmt.Errorf("unable to release duplicated name, cause %w", err)
		}
		return "", NameTaken{}
	}
	log := logutil.GetOrDefault(ctx)
	log.Info().Str("row", row).Msg("User created")
	return row, nil
}

func (m *Manager) SignIn(ctx context.Context, name, password string) (string, error) {
	log := logutil.GetOrDefault(ctx)
	found, err := m.store.Search(ctx, ColumnName, name)
	if err != nil {
		return "", err
	}
	if len(found) != 1 {
		if m.policy.UniformFailures {
			m.hasher.Verify(password, m.dummySalt, "")
			return "", WrongPassword{}
		}
		return "", UserNotFound{}
	}
	row := found[0]

	lock, err := m.read(ctx, row, ColumnLock)
	if err != nil {
		return "", err
	}
	until, err := strconv.ParseInt(lock, 10, 64)
	if err != nil {
		return "", fmt.Errorf("user %v has an invalid lock value, cause %w", row, err)
	}
	now := m.now()
	if now.Unix() < until {
		return "", UserLocked{Until: time.Unix(until, 0)}
	}

	salt, err := m.read(ctx, row, ColumnSalt)
	if err != nil {
		return "", err
	}
	hash, err := m.read(ctx, row, ColumnHash)
	if err != nil {
		return "", err
	}
	if !m.hasher.Verify(password, salt, hash) {
		until := now.Add(m.policy.LockoutDuration).Unix()
		if err := m.store.Set(ctx, row, ColumnLock, strconv.FormatInt(until, 10)); err != nil {
			return "", fmt.Errorf("unable to lock user %v, cause %w", row, err)
		}
		log.Warn().Str("row", row).Time("until", time.Unix(until, 0)).Msg("Wrong password, user locked")
		return "", WrongPassword{}
	}
	credential, err := m.issuer.Issue(ctx, row)
	if err != nil {
		return "", err
	}
	log.Info().Str("row", row).Msg("User signed in")
	return credential, nil
}

// Validate returns the user row the credential belongs to.
func (m *Manager) Validate(ctx context.Context, credential string) (string, error) {
	return m.issuer.Resolve(ctx, credential)
}

func (m *Manager) SignOut(ctx context.Context, credential string) error {
	err := m.issuer.Revoke(ctx, credential)
	if err == nil {
		log := logutil.GetOrDefault(ctx)
		log.Info().Msg("Session revoked")
	}
	return err
}

func (m *Manager) FindID(ctx context.Context, name string) (string, error) {
	found, err := m.store.Search(ctx, ColumnName, name)
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "", UserNotFound{}
	}
	return found[0], nil
}

func (m *Manager) FindName(ctx context.Context, row string) (string, error) {
	ok, err := m.store.HasRow(ctx, row)
	if err != nil {
		return "", err
	} else if !ok {
		return "", UserNotFound{}
	}
	name, ok, err := m.store.Get(ctx, row, ColumnName)
	if err != nil {
		return "", err
	} else if !ok {
		return "", UserNotFound{}
	}
	return name, nil
}

func (m *Manager) read(ctx context.Context, row, column string) (string, error) {
	v, ok, err := m.store.Get(ctx, row, column)
	if err != nil {
		return "", err
	} else if !ok {
		return "", Corrupted{Row: row, Column: column}
	}
	return v, nil
}
