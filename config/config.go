// Package config holds the settings shared by every gatekeeper command.
//
// Settings start from Default, then a file can override any of them. Files
// are either JSON or Lua, a Lua file must return a table with the same
// shape as the JSON document:
//
//	return {
//		lengths = { password = 12 },
//		tokens = { validity = "72h" },
//		storage = { driver = "postgres", dsn = env("DATABASE_URL") },
//	}
//
// Durations are written as Go duration strings (eg.: "10s", "744h").
package config

import (
	"time"

	"github.com/andrebq/gatekeeper/dispatch"
	"github.com/andrebq/gatekeeper/hashing"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	FormatOnion = "onion"
	FormatJWT   = "jwt"
)

type (
	Config struct {
		Hooks           dispatch.Hooks
		Lengths         Lengths
		LockTimeout     time.Duration
		Hashing         Hashing
		Tokens          Tokens
		Sessions        Sessions
		Storage         Storage
		HTTP            HTTP
		Log             Log
		UniformFailures bool
	}

	Lengths struct {
		Password int `json:"password"`
		Salt     int `json:"salt"`
		Session  int `json:"session"`
		ID       int `json:"id"`
	}

	Hashing struct {
		Algorithm      string          `json:"algorithm"`
		PasswordRounds int             `json:"passwordRounds"`
		TokenRounds    int             `json:"tokenRounds"`
		Argon2         hashing.Argon2id `json:"argon2"`
	}

	Tokens struct {
		Enabled  bool
		Format   string
		Validity time.Duration
		Issuer   string
	}

	Sessions struct {
		Validity time.Duration
		// CacheTTL is how long resolved sessions stay in memory, zero
		// disables the cache. A session revoked by another server stays
		// valid here for up to CacheTTL, so only enable it when a single
		// server uses the storage.
		CacheTTL time.Duration
	}

	Storage struct {
		Driver string `json:"driver"`
		Dir    string `json:"dir"`
		DSN    string `json:"dsn"`
	}

	HTTP struct {
		Bind string `json:"bind"`
	}

	Log struct {
		Level  string `json:"level"`
		Pretty bool   `json:"pretty"`
	}
)

func Default() Config {
	return Config{
		Hooks: dispatch.DefaultHooks(),
		Lengths: Lengths{
			Password: 8,
			Salt:     512,
			Session:  512,
			ID:       32,
		},
		LockTimeout: 10 * time.Second,
		Hashing: Hashing{
			Algorithm:      hashing.OnionSHA256,
			PasswordRounds: hashing.PasswordRounds,
			TokenRounds:    hashing.TokenRounds,
			Argon2:         hashing.DefaultArgon2id(),
		},
		Tokens: Tokens{
			Enabled:  true,
			Format:   FormatOnion,
			Validity: 31 * 24 * time.Hour,
			Issuer:   dispatch.AuthenticateAPI,
		},
		Sessions: Sessions{
			Validity: 31 * 24 * time.Hour,
		},
		Storage: Storage{
			Driver: DriverSQLite,
			Dir:    "data",
		},
		HTTP: HTTP{
			Bind: "127.0.0.1:8080",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Hasher returns the password hasher selected by the configuration.
func (c Config) Hasher() (hashing.PasswordHasher, error) {
	return hashing.ByName(c.Hashing.Algorithm, c.Hashing.PasswordRounds, c.Hashing.Argon2)
}
