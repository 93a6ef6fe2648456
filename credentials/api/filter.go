package api

import (
	"context"
	"errors"
	"net/http"
	"regexp"

	"github.com/andrebq/gatekeeper/internal/logutil"
)

type (
	// Validator resolves a credential into the row of its owner,
	// *credentials.Manager is the usual implementation.
	Validator interface {
		Validate(ctx context.Context, credential string) (string, error)
	}

	SecurityRealm struct {
		validator Validator
	}

	key byte
)

var (
	bearerTokenRE = regexp.MustCompile(`^Bearer ([^\s]+)$`)

	userKey = key(1)
)

func NewRealm(validator Validator) *SecurityRealm {
	return &SecurityRealm{
		validator: validator,
	}
}

// Protect only lets requests carrying a valid bearer credential reach
// sensitive, the user row is available through User.
func (s *SecurityRealm) Protect(sensitive http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		row, status := s.checkToken(r)
		if status != http.StatusOK {
			http.Error(w, http.StatusText(status), status)
			return
		}
		sensitive.ServeHTTP(w, r.WithContext(WithUser(r.Context(), row)))
	})
}

func (s *SecurityRealm) checkToken(r *http.Request) (string, int) {
	ctx := r.Context()
	log := logutil.GetOrDefault(ctx)
	groups := bearerTokenRE.FindStringSubmatch(r.Header.Get("Authorization"))
	if len(groups) == 0 {
		return "", http.StatusUnauthorized
	}
	row, err := s.validator.Validate(ctx, groups[1])
	var reason interface{ Reason() string }
	if errors.As(err, &reason) {
		log.Info().Str("reason", reason.Reason()).Msg("Credential rejected")
		return "", http.StatusUnauthorized
	} else if err != nil {
		log.Error().Err(err).Msg("Unexpected error when validating credential")
		return "", http.StatusInternalServerError
	}
	return row, http.StatusOK
}

func WithUser(ctx context.Context, row string) context.Context {
	return context.WithValue(ctx, userKey, row)
}

// User returns the row of the authenticated caller.
func User(ctx context.Context) (string, bool) {
	row, ok := ctx.Value(userKey).(string)
	return row, ok
}
