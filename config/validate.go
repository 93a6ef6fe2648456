package config

import (
	"fmt"

	"github.com/andrebq/gatekeeper/hashing"
	"github.com/rs/zerolog"
)

type (
	Invalid struct {
		Field  string
		Reason string
	}
)

func (i Invalid) Error() string {
	return fmt.Sprintf("invalid configuration %v: %v", i.Field, i.Reason)
}

func (i Invalid) Is(target error) bool {
	_, ok := target.(Invalid)
	return ok
}

// Validate rejects values that would make the server misbehave.
func (c Config) Validate() error {
	type check struct {
		bad    bool
		field  string
		reason string
	}
	for _, ch := range []check{
		{c.Lengths.Password < 1, "lengths.password", "must be positive"},
		{c.Lengths.Salt < 1, "lengths.salt", "must be positive"},
		{c.Lengths.Session < 16, "lengths.session", "must be at least 16"},
		{c.Lengths.ID < 8, "lengths.id", "must be at least 8"},
		{c.LockTimeout < 0, "lockTimeout", "cannot be negative"},
		{c.Hashing.PasswordRounds < 0, "hashing.passwordRounds", "cannot be negative"},
		{c.Hashing.TokenRounds < 0, "hashing.tokenRounds", "cannot be negative"},
		{c.Tokens.Enabled && c.Tokens.Validity <= 0, "tokens.validity", "must be positive"},
		{c.Tokens.Enabled && c.Tokens.Issuer == "", "tokens.issuer", "cannot be empty"},
		{c.Tokens.Enabled && c.Tokens.Format != FormatOnion && c.Tokens.Format != FormatJWT, "tokens.format", "should be onion or jwt"},
		{c.Sessions.Validity < 0, "sessions.validity", "cannot be negative"},
		{c.Sessions.CacheTTL < 0, "sessions.cacheTTL", "cannot be negative"},
		{c.Storage.Driver == DriverSQLite && c.Storage.Dir == "", "storage.dir", "is required by the sqlite driver"},
		{c.Storage.Driver == DriverPostgres && c.Storage.DSN == "", "storage.dsn", "is required by the postgres driver"},
		{c.HTTP.Bind == "", "http.bind", "cannot be empty"},
	} {
		if ch.bad {
			return Invalid{Field: ch.field, Reason: ch.reason}
		}
	}
	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return Invalid{Field: "storage.driver", Reason: fmt.Sprintf("unknown driver %q", c.Storage.Driver)}
	}
	if _, err := c.Hasher(); err != nil {
		return Invalid{Field: "hashing.algorithm", Reason: err.Error()}
	}
	if c.Hashing.Algorithm == hashing.Argon2ID && (c.Hashing.Argon2.Time == 0 || c.Hashing.Argon2.KeyLen == 0) {
		return Invalid{Field: "hashing.argon2", Reason: "time and keyLen must be positive"}
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return Invalid{Field: "log.level", Reason: err.Error()}
	}
	return nil
}
