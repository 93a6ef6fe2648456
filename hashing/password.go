package hashing

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	OnionSHA256 = "onion-sha256"
	Argon2ID    = "argon2id"
)

type (
	// PasswordHasher turns a password and its salt into the value kept in
	// the user record.
	PasswordHasher interface {
		Name() string
		Hash(password, salt string) string
		Verify(password, salt, stored string) bool
	}

	Onion struct {
		Rounds int
	}

	Argon2id struct {
		Time    uint32
		Memory  uint32
		Threads uint8
		KeyLen  uint32
	}

	UnknownAlgorithm struct {
		Name string
	}
)

func (u UnknownAlgorithm) Error() string {
	return fmt.Sprintf("unknown hashing algorithm %q", u.Name)
}

func (o Onion) Name() string { return OnionSHA256 }

func (o Onion) Hash(password, salt string) string {
	return HashSalted(password, salt, o.Rounds)
}

func (o Onion) Verify(password, salt, stored string) bool {
	return equal(o.Hash(password, salt), stored)
}

// DefaultArgon2id mirrors the cost the auth program used to derive keys:
// 7 passes over 10 MiB.
func DefaultArgon2id() Argon2id {
	return Argon2id{Time: 7, Memory: 10 * 1024, Threads: 2, KeyLen: 32}
}

func (a Argon2id) Name() string { return Argon2ID }

func (a Argon2id) Hash(password, salt string) string {
	threads := a.Threads
	if threads == 0 {
		threads = 1
	}
	key := argon2.IDKey([]byte(password), []byte(salt), a.Time, a.Memory, threads, a.KeyLen)
	return hex.EncodeToString(key)
}

func (a Argon2id) Verify(password, salt, stored string) bool {
	return equal(a.Hash(password, salt), stored)
}

// ByName returns the hasher registered under name. Rounds only apply to the
// onion scheme and argon only applies to argon2id.
func ByName(name string, rounds int, argon Argon2id) (PasswordHasher, error) {
	switch name {
	case "", OnionSHA256:
		return Onion{Rounds: rounds}, nil
	case Argon2ID:
		return argon, nil
	}
	return nil, UnknownAlgorithm{Name: name}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
