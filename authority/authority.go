// Package authority issues and checks self-contained signed tokens.
//
// A token is the hex of the issuer, the payload and the expiry (unix
// seconds) joined by "&", followed by "#" and an iterated HMAC-SHA256 of
// that string keyed with the shared secret. Nothing about a token is kept
// server side, so a token cannot be revoked before it expires.
package authority

import (
	"context"
	"crypto/hmac"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/andrebq/gatekeeper/hashing"
)

const (
	DefaultValidity = 31 * 24 * time.Hour

	partSeparator = "&"
	hashSeparator = "#"
)

type (
	Clock func() time.Time

	// TokenAuthority is implemented by every token format
	TokenAuthority interface {
		Issue(ctx context.Context, issuer, payload string, validity time.Duration) (string, error)
		Validate(ctx context.Context, issuer, token string) (string, error)
	}

	Authority struct {
		secrets SecretProvider
		rounds  int
		now     Clock
	}

	Option func(*options)

	options struct {
		rounds int
		now    Clock
	}
)

var (
	_ TokenAuthority = (*Authority)(nil)
)

func WithRounds(rounds int) Option {
	return func(o *options) { o.rounds = rounds }
}

func WithClock(now Clock) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{rounds: hashing.TokenRounds, now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func New(secrets SecretProvider, opts ...Option) *Authority {
	o := buildOptions(opts)
	return &Authority{
		secrets: secrets,
		rounds:  o.rounds,
		now:     o.now,
	}
}

func (a *Authority) Issue(ctx context.Context, issuer, payload string, validity time.Duration) (string, error) {
	secret, err := a.secrets.secret(ctx)
	if err != nil {
		return "", err
	}
	expiry := a.now().Add(validity).Unix()
	body := strings.Join([]string{
		hex.EncodeToString([]byte(issuer)),
		hex.EncodeToString([]byte(payload)),
		hex.EncodeToString([]byte(strconv.FormatInt(expiry, 10))),
	}, partSeparator)
	return body + hashSeparator + hashing.HMAC(body, []byte(secret), a.rounds), nil
}

// Validate returns the payload of token when it carries a valid signature,
// was issued by issuer and has not expired.
func (a *Authority) Validate(ctx context.Context, issuer, token string) (string, error) {
	secret, err := a.secrets.secret(ctx)
	if err != nil {
		return "", err
	}
	pieces := strings.Split(token, hashSeparator)
	if len(pieces) != 2 {
		return "", InvalidTokenFormat{}
	}
	expected := hashing.HMAC(pieces[0], []byte(secret), a.rounds)
	if !hmac.Equal([]byte(expected), []byte(pieces[1])) {
		return "", InvalidTokenSignature{}
	}
	parts := strings.Split(pieces[0], partSeparator)
	if len(parts) != 3 {
		return "", InvalidTokenFormat{}
	}
	fields := make([]string, len(parts))
	for i, p := range parts {
		buf, err := hex.DecodeString(p)
		if err != nil {
			return "", InvalidTokenFormat{}
		}
		fields[i] = string(buf)
	}
	if fields[0] != issuer {
		return "", InvalidTokenIssuer{Expected: issuer}
	}
	expiry, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return "", InvalidTokenFormat{}
	}
	if expiry <= a.now().Unix() {
		return "", TokenExpired{At: time.Unix(expiry, 0)}
	}
	return fields[1], nil
}
