package cassette

import (
	"context"
	"time"

	"github.com/andrebq/gatekeeper/hashing"
	"github.com/cespare/xxhash/v2"
)

const (
	DefaultIDLength = 32

	// maxCreateAttempts bounds the retries when a random row id collides
	maxCreateAttempts = 16
)

type (
	// Store keeps rows of named column values, a reverse index over those
	// values and a link table pointing opaque keys at rows.
	//
	// Column names, indexed values and link keys are content addressed
	// before they reach the backend, only the value itself is kept in clear
	// so Get can return it.
	Store interface {
		CreateRow(ctx context.Context) (string, error)
		EnsureRow(ctx context.Context, row string) error
		HasRow(ctx context.Context, row string) (bool, error)

		CreateColumn(ctx context.Context, name string) error
		HasColumn(ctx context.Context, name string) (bool, error)

		IsSet(ctx context.Context, row, column string) (bool, error)
		Set(ctx context.Context, row, column, value string) error
		Unset(ctx context.Context, row, column string) error
		Get(ctx context.Context, row, column string) (string, bool, error)
		Search(ctx context.Context, column, value string) ([]string, error)

		CreateLink(ctx context.Context, row, key string, expiresAt time.Time) (bool, error)
		HasLink(ctx context.Context, key string) (bool, error)
		FollowLink(ctx context.Context, key string) (Link, bool, error)
		RemoveLink(ctx context.Context, key string) error
		PruneLinks(ctx context.Context, before time.Time) (int64, error)

		Close() error
	}

	// SecretStore persists named secrets, the first value stored under a
	// name is the only one ever returned.
	SecretStore interface {
		LoadOrCreateSecret(ctx context.Context, name string, gen func() (string, error)) (string, error)
	}

	// Tape is implemented by every backend in this repository
	Tape interface {
		Store
		SecretStore
	}

	Link struct {
		Row string
		// ExpiresAt is zero for links that never expire
		ExpiresAt time.Time
	}

	Options struct {
		IDLength int
	}
)

// Expired reports whether the link is no longer valid at now.
func (l Link) Expired(now time.Time) bool {
	return !l.ExpiresAt.IsZero() && !now.Before(l.ExpiresAt)
}

func (o Options) idLength() int {
	if o.IDLength <= 0 {
		return DefaultIDLength
	}
	return o.IDLength
}

// KeyHash is the content address used for column names, indexed values and
// link keys.
func KeyHash(s string) string {
	return hashing.Hash(s, hashing.IndexRounds)
}

// Hash64 narrows a KeyHash to an integer, backends index on it first and
// confirm with the full hash.
func Hash64(keyHash string) int64 {
	return int64(xxhash.Sum64String(keyHash))
}

// ToUnixNano and FromUnixNano encode link expiry for the sql backends, zero
// means the link never expires.
func ToUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func FromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
