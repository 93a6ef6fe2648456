package authority

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type (
	// JWT issues HS256 tokens carrying the payload in the subject claim.
	// It reports the same errors as Authority, so callers can switch formats
	// without touching error handling.
	JWT struct {
		secrets SecretProvider
		now     Clock
	}
)

var (
	_ TokenAuthority = (*JWT)(nil)
)

func NewJWT(secrets SecretProvider, opts ...Option) *JWT {
	o := buildOptions(opts)
	return &JWT{secrets: secrets, now: o.now}
}

func (j *JWT) Issue(ctx context.Context, issuer, payload string, validity time.Duration) (string, error) {
	secret, err := j.secrets.secret(ctx)
	if err != nil {
		return "", err
	}
	now := j.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   payload,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
	})
	return token.SignedString([]byte(secret))
}

func (j *JWT) Validate(ctx context.Context, issuer, token string) (string, error) {
	secret, err := j.secrets.secret(ctx)
	if err != nil {
		return "", err
	}
	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	switch {
	case err == nil:
		return claims.Subject, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "", InvalidTokenFormat{}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return "", InvalidTokenSignature{}
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "", InvalidTokenIssuer{Expected: issuer}
	case errors.Is(err, jwt.ErrTokenExpired):
		var at time.Time
		if claims.ExpiresAt != nil {
			at = claims.ExpiresAt.Time
		}
		return "", TokenExpired{At: at}
	default:
		return "", InvalidTokenFormat{}
	}
}
