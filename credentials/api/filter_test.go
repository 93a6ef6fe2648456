package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/andrebq/gatekeeper/credentials"
	"github.com/steinfletcher/apitest"
)

type validatorFunc func(context.Context, string) (string, error)

func (v validatorFunc) Validate(ctx context.Context, credential string) (string, error) {
	return v(ctx, credential)
}

func TestProtect(t *testing.T) {
	sr := NewRealm(validatorFunc(func(_ context.Context, credential string) (string, error) {
		switch credential {
		case "abc123":
			return "row1", nil
		case "broken":
			return "", errors.New("cassette is gone")
		}
		return "", credentials.InvalidSession{}
	}))
	var count uint32
	protected := sr.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddUint32(&count, 1)
		row, _ := User(r.Context())
		fmt.Fprint(w, row)
	}))
	apitest.Handler(protected).Get("/").Expect(t).Status(http.StatusUnauthorized).End()
	apitest.Handler(protected).Get("/").Header("Authorization", "Basic abc123").Expect(t).Status(http.StatusUnauthorized).End()
	apitest.Handler(protected).Get("/").Header("Authorization", "Bearer nope").Expect(t).Status(http.StatusUnauthorized).End()
	apitest.Handler(protected).Get("/").Header("Authorization", "Bearer broken").Expect(t).Status(http.StatusInternalServerError).End()
	apitest.Handler(protected).Get("/").Header("Authorization", fmt.Sprintf("Bearer %v", "abc123")).Expect(t).
		Status(http.StatusOK).
		Body("row1").
		End()
	if count != 1 {
		t.Fatal("Protected endpoint should have been called only once")
	}
}
