package authority

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/andrebq/gatekeeper/cassette"
	"github.com/andrebq/gatekeeper/randid"
)

const (
	SecretLength = 512
	SecretName   = "authority"

	RootKeyEnvVar = "GATEKEEPER_AUTH_ROOTKEY"
)

type (
	// SecretProvider hands the shared signing secret to the token formats
	// of this package and nobody else.
	SecretProvider interface {
		secret(ctx context.Context) (string, error)
	}

	// StoreSecret creates the secret on first use and keeps it in the
	// cassette, so every process sharing the cassette signs with the same
	// key.
	StoreSecret struct {
		store  cassette.SecretStore
		length int

		sync.Mutex
		cached string
	}

	envSecret struct {
		value string
	}
)

func NewStoreSecret(store cassette.SecretStore) *StoreSecret {
	return &StoreSecret{store: store, length: SecretLength}
}

func (s *StoreSecret) secret(ctx context.Context) (string, error) {
	s.Lock()
	defer s.Unlock()
	if s.cached != "" {
		return s.cached, nil
	}
	val, err := s.store.LoadOrCreateSecret(ctx, SecretName, func() (string, error) {
		return randid.String(s.length)
	})
	if err != nil {
		return "", fmt.Errorf("authority: unable to load shared secret, cause %w", err)
	}
	s.cached = val
	return val, nil
}

// Bootstrap makes sure the secret exists, without waiting for the first
// token to be issued.
func (s *StoreSecret) Bootstrap(ctx context.Context) error {
	_, err := s.secret(ctx)
	return err
}

// EnvSecret reads a base64 encoded key from varname and clears the variable
// so child processes do not inherit it. Nil functions default to the os
// package.
func EnvSecret(varname string, getfn func(string) string, setfn func(string, string) error) (SecretProvider, error) {
	if getfn == nil {
		getfn = os.Getenv
	}
	if setfn == nil {
		setfn = os.Setenv
	}
	val := getfn(varname)
	setfn(varname, "")
	if val == "" {
		return nil, InvalidSecret{cause: fmt.Errorf("variable %v is empty", varname)}
	}
	key, err := base64.StdEncoding.DecodeString(val)
	if err != nil {
		return nil, InvalidSecret{cause: fmt.Errorf("cannot decode %v, %w", varname, err)}
	} else if len(key) < 32 {
		return nil, InvalidSecret{cause: errors.New("decoded key should have at least 32 bytes")}
	}
	return envSecret{value: string(key)}, nil
}

func (e envSecret) secret(context.Context) (string, error) {
	return e.value, nil
}
