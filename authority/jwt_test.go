package authority

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJWT(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	j := NewJWT(staticSecret("a secret long enough for hs256 keys"), WithClock(clock.Now))

	token, err := j.Issue(ctx, "authenticate", "row1", time.Minute)
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)

	payload, err := j.Validate(ctx, "authenticate", token)
	require.NoError(t, err)
	require.Equal(t, "row1", payload)

	_, err = j.Validate(ctx, "notifier", token)
	if !errors.Is(err, InvalidTokenIssuer{}) {
		t.Fatalf("expecting InvalidTokenIssuer got %v", err)
	}

	_, err = j.Validate(ctx, "authenticate", "not a jwt")
	if !errors.Is(err, InvalidTokenFormat{}) {
		t.Fatalf("expecting InvalidTokenFormat got %v", err)
	}

	other := NewJWT(staticSecret("some other secret entirely"), WithClock(clock.Now))
	_, err = other.Validate(ctx, "authenticate", token)
	if !errors.Is(err, InvalidTokenSignature{}) {
		t.Fatalf("expecting InvalidTokenSignature got %v", err)
	}

	clock.Advance(2 * time.Minute)
	_, err = j.Validate(ctx, "authenticate", token)
	if !errors.Is(err, TokenExpired{}) {
		t.Fatalf("expecting TokenExpired got %v", err)
	}
}
