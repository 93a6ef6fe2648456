package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/andrebq/gatekeeper/authority"
	"github.com/andrebq/gatekeeper/cassette"
	"github.com/andrebq/gatekeeper/randid"
)

type (
	// Issuer turns an authenticated user row into a credential and back.
	Issuer interface {
		Issue(ctx context.Context, row string) (string, error)
		Resolve(ctx context.Context, credential string) (string, error)
		Revoke(ctx context.Context, credential string) error
	}

	Sessions struct {
		store    cassette.Store
		length   int
		validity time.Duration
		now      func() time.Time
		cache    *LinkCache
	}

	SessionOption func(*Sessions)

	Tokens struct {
		authority authority.TokenAuthority
		issuer    string
		validity  time.Duration
	}
)

var (
	_ Issuer = (*Sessions)(nil)
	_ Issuer = (*Tokens)(nil)
)

// WithLinkCache puts a read-through cache in front of the cassette links.
func WithLinkCache(cache *LinkCache) SessionOption {
	return func(s *Sessions) { s.cache = cache }
}

func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Sessions) { s.now = now }
}

// NewSessions issues random session strings of the given length, a zero
// validity means sessions never expire.
func NewSessions(store cassette.Store, length int, validity time.Duration, opts ...SessionOption) *Sessions {
	s := &Sessions{
		store:    store,
		length:   length,
		validity: validity,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sessions) Issue(ctx context.Context, row string) (string, error) {
	var expires time.Time
	if s.validity > 0 {
		expires = s.now().Add(s.validity)
	}
	// a collision is astronomically unlikely, but CreateLink refuses to
	// overwrite so retrying is all it takes
	for i := 0; i < 4; i++ {
		session, err := randid.String(s.length)
		if err != nil {
			return "", fmt.Errorf("unable to generate session, cause %w", err)
		}
		created, err := s.store.CreateLink(ctx, row, session, expires)
		if err != nil {
			return "", fmt.Errorf("unable to store session, cause %w", err)
		}
		if created {
			return session, nil
		}
	}
	return "", fmt.Errorf("unable to allocate a unique session")
}

func (s *Sessions) Resolve(ctx context.Context, session string) (string, error) {
	if session == "" {
		return "", InvalidSession{}
	}
	key := cassette.KeyHash(session)
	link, ok := s.cached(key)
	if !ok {
		var err error
		link, ok, err = s.store.FollowLink(ctx, session)
		if err != nil {
			return "", err
		} else if !ok {
			return "", InvalidSession{}
		}
		if s.cache != nil {
			s.cache.Put(key, link)
		}
	}
	if link.Expired(s.now()) {
		if s.cache != nil {
			s.cache.Forget(key)
		}
		// the pruner would get to it eventually
		_ = s.store.RemoveLink(ctx, session)
		return "", InvalidSession{}
	}
	return link.Row, nil
}

func (s *Sessions) Revoke(ctx context.Context, session string) error {
	if s.cache != nil {
		s.cache.Forget(cassette.KeyHash(session))
	}
	ok, err := s.store.HasLink(ctx, session)
	if err != nil {
		return err
	} else if !ok {
		return InvalidSession{}
	}
	return s.store.RemoveLink(ctx, session)
}

func (s *Sessions) cached(key string) (cassette.Link, bool) {
	if s.cache == nil {
		return cassette.Link{}, false
	}
	return s.cache.Get(key)
}

// NewTokens issues tokens signed by auth on behalf of issuer.
func NewTokens(auth authority.TokenAuthority, issuer string, validity time.Duration) *Tokens {
	return &Tokens{authority: auth, issuer: issuer, validity: validity}
}

func (t *Tokens) Issue(ctx context.Context, row string) (string, error) {
	return t.authority.Issue(ctx, t.issuer, row, t.validity)
}

func (t *Tokens) Resolve(ctx context.Context, token string) (string, error) {
	return t.authority.Validate(ctx, t.issuer, token)
}

func (t *Tokens) Revoke(ctx context.Context, token string) error {
	return RevocationUnsupported{}
}
