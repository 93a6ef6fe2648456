package authority

import "time"

type (
	InvalidTokenFormat struct{}

	InvalidTokenSignature struct{}

	InvalidTokenIssuer struct {
		Expected string
	}

	TokenExpired struct {
		At time.Time
	}

	InvalidSecret struct {
		cause error
	}
)

func (InvalidTokenFormat) Error() string  { return "Invalid token format" }
func (InvalidTokenFormat) Reason() string { return "Invalid token format" }

func (InvalidTokenSignature) Error() string  { return "Invalid token signature" }
func (InvalidTokenSignature) Reason() string { return "Invalid token signature" }

func (InvalidTokenIssuer) Error() string  { return "Invalid token issuer" }
func (InvalidTokenIssuer) Reason() string { return "Invalid token issuer" }

func (i InvalidTokenIssuer) Is(target error) bool {
	_, ok := target.(InvalidTokenIssuer)
	return ok
}

func (TokenExpired) Error() string  { return "Token expired" }
func (TokenExpired) Reason() string { return "Token expired" }

func (t TokenExpired) Is(target error) bool {
	_, ok := target.(TokenExpired)
	return ok
}

func (i InvalidSecret) Error() string {
	return "authority: invalid secret, cause " + i.cause.Error()
}

func (i InvalidSecret) Unwrap() error {
	return i.cause
}
