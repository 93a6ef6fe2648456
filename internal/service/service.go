// Package service assembles the storage, credential and dispatch layers
// described by a config.Config, every command starts from here.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/andrebq/gatekeeper/authority"
	"github.com/andrebq/gatekeeper/cassette"
	"github.com/andrebq/gatekeeper/config"
	"github.com/andrebq/gatekeeper/credentials"
	"github.com/andrebq/gatekeeper/credentials/api"
	"github.com/andrebq/gatekeeper/dispatch"
	"github.com/andrebq/gatekeeper/internal/httpserver"
	"github.com/andrebq/gatekeeper/internal/logutil"
	"github.com/andrebq/gatekeeper/notifier"
	"github.com/andrebq/gatekeeper/tapedeck"
)

type (
	S struct {
		Config   config.Config
		Deck     *tapedeck.D
		Users    cassette.Tape
		Inbox    cassette.Tape
		Manager  *credentials.Manager
		Notifier *notifier.Notifier

		cache *credentials.LinkCache
	}

	Option func(*options)

	options struct {
		secrets authority.SecretProvider
		backend tapedeck.Backend
	}
)

// WithSecrets signs tokens with secrets instead of the secret kept in the
// authenticate cassette.
func WithSecrets(secrets authority.SecretProvider) Option {
	return func(o *options) { o.secrets = secrets }
}

// WithBackend ignores the storage section of the configuration.
func WithBackend(b tapedeck.Backend) Option {
	return func(o *options) { o.backend = b }
}

// Backend returns the tapedeck backend selected by cfg.
func Backend(cfg config.Config) (tapedeck.Backend, error) {
	opts := cassette.Options{IDLength: cfg.Lengths.ID}
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		return &tapedeck.SQLite{Dir: cfg.Storage.Dir, Options: opts}, nil
	case config.DriverPostgres:
		return &tapedeck.Postgres{DSN: cfg.Storage.DSN, Options: opts}, nil
	case config.DriverMemory:
		return &tapedeck.Memory{Options: opts}, nil
	}
	return nil, config.Invalid{Field: "storage.driver", Reason: fmt.Sprintf("unknown driver %q", cfg.Storage.Driver)}
}

// Open prepares every namespace and returns a ready to use service.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*S, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.backend == nil {
		var err error
		o.backend, err = Backend(cfg)
		if err != nil {
			return nil, err
		}
	}
	s := &S{Config: cfg, Deck: tapedeck.New(o.backend)}
	if err := s.open(ctx, o); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *S) open(ctx context.Context, o options) error {
	var err error
	s.Users, err = s.Deck.Open(ctx, dispatch.AuthenticateAPI)
	if err != nil {
		return err
	}
	if err = credentials.Setup(ctx, s.Users); err != nil {
		return err
	}
	s.Inbox, err = s.Deck.Open(ctx, notifier.Namespace)
	if err != nil {
		return err
	}
	if err = notifier.Setup(ctx, s.Inbox); err != nil {
		return err
	}
	s.Notifier = notifier.New(s.Inbox)

	issuer, err := s.issuer(ctx, o)
	if err != nil {
		return err
	}
	hasher, err := s.Config.Hasher()
	if err != nil {
		return err
	}
	s.Manager, err = credentials.NewManager(s.Users, hasher, issuer, credentials.Policy{
		MinPasswordLength: s.Config.Lengths.Password,
		SaltLength:        s.Config.Lengths.Salt,
		LockoutDuration:   s.Config.LockTimeout,
		UniformFailures:   s.Config.UniformFailures,
	})
	return err
}

func (s *S) issuer(ctx context.Context, o options) (credentials.Issuer, error) {
	cfg := s.Config
	if !cfg.Tokens.Enabled {
		var sessionOpts []credentials.SessionOption
		if cfg.Sessions.CacheTTL > 0 {
			var err error
			s.cache, err = credentials.NewLinkCache(cfg.Sessions.CacheTTL)
			if err != nil {
				return nil, err
			}
			sessionOpts = append(sessionOpts, credentials.WithLinkCache(s.cache))
		}
		return credentials.NewSessions(s.Users, cfg.Lengths.Session, cfg.Sessions.Validity, sessionOpts...), nil
	}
	secrets := o.secrets
	if secrets == nil {
		secrets = authority.NewStoreSecret(s.Users)
	}
	var auth authority.TokenAuthority
	switch cfg.Tokens.Format {
	case config.FormatJWT:
		auth = authority.NewJWT(secrets)
	default:
		auth = authority.New(secrets, authority.WithRounds(cfg.Hashing.TokenRounds))
	}
	return credentials.NewTokens(auth, cfg.Tokens.Issuer, cfg.Tokens.Validity), nil
}

// Handler returns the HTTP surface: every enabled API under /apis/.
func (s *S) Handler() http.Handler {
	d := dispatch.New(s.Config.Hooks)
	dispatch.Authenticate(d, s.Manager)
	dispatch.Notifier(d, s.Notifier, api.NewRealm(s.Manager))
	return httpserver.WithRequestID(d.Routes())
}

// Notify pushes a message to the inbox of the user called name.
func (s *S) Notify(ctx context.Context, name, title, message string) error {
	row, err := s.Manager.FindID(ctx, name)
	if err != nil {
		return err
	}
	return s.Notifier.Push(ctx, row, title, message)
}

// Prune removes expired links from every open namespace.
func (s *S) Prune(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	var errs []error
	for _, ns := range s.Deck.List() {
		tape := s.Deck.Get(ns)
		if tape == nil {
			continue
		}
		n, err := tape.PruneLinks(ctx, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("unable to prune %v, cause %w", ns, err))
			continue
		}
		total += n
	}
	return total, errors.Join(errs...)
}

// RunPruner calls Prune every interval until ctx is done.
func (s *S) RunPruner(ctx context.Context, interval time.Duration) {
	log := logutil.GetOrDefault(ctx).With().Str("task", "pruner").Logger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.Prune(ctx, now)
			if err != nil {
				log.Error().Err(err).Msg("Unable to prune links")
			} else if n > 0 {
				log.Info().Int64("removed", n).Msg("Expired links removed")
			}
		}
	}
}

func (s *S) Close() error {
	var errs []error
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	errs = append(errs, s.Deck.Close())
	return errors.Join(errs...)
}
