package auth_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	apierr "github.com/opst/trackfab-api-types/errors"
	"github.com/opst/trackfab/cmd/trackd/auth"
	httptestutil "github.com/opst/trackfab/internal/testutils/http"
	"github.com/opst/trackfab/pkg/utils/try"
)

func TestIssueAndVerify(t *testing.T) {
	signKey := []byte("test-sign-key")

	t.Run("a token issued with a key is verified with the same key", func(t *testing.T) {
		token := try.To(auth.Issue(signKey, "track", time.Hour)).OrFatal(t)

		claims, err := auth.Verify(signKey, token)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if claims.Subject != "track" {
			t.Errorf("unmatch subject (actual, expected): %s, track", claims.Subject)
		}
		if claims.ID == "" {
			t.Error("token id is empty")
		}
	})

	t.Run("a token signed with another key is rejected", func(t *testing.T) {
		token := try.To(auth.Issue([]byte("another-key"), "track", time.Hour)).OrFatal(t)

		if _, err := auth.Verify(signKey, token); !errors.Is(err, auth.ErrInvalidToken) {
			t.Errorf("error is not ErrInvalidToken: %v", err)
		}
	})

	t.Run("an expired token is rejected", func(t *testing.T) {
		token := try.To(auth.Issue(signKey, "track", -1*time.Hour)).OrFatal(t)

		if _, err := auth.Verify(signKey, token); !errors.Is(err, auth.ErrInvalidToken) {
			t.Errorf("error is not ErrInvalidToken: %v", err)
		}
	})

	t.Run("a malformed token is rejected", func(t *testing.T) {
		if _, err := auth.Verify(signKey, "it is not a token"); !errors.Is(err, auth.ErrInvalidToken) {
			t.Errorf("error is not ErrInvalidToken: %v", err)
		}
	})

	t.Run("a token with the none algorithm is rejected", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject:   "track",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		token := try.To(tok.SignedString(jwt.UnsafeAllowNoneSignatureType)).OrFatal(t)

		if _, err := auth.Verify(signKey, token); !errors.Is(err, auth.ErrInvalidToken) {
			t.Errorf("error is not ErrInvalidToken: %v", err)
		}
	})
}

func TestMiddleware(t *testing.T) {
	signKey := []byte("test-sign-key")

	t.Run("a request with a verified token passes through", func(t *testing.T) {
		token := try.To(auth.Issue(signKey, "track", time.Hour)).OrFatal(t)

		e := echo.New()
		c, _ := httptestutil.Get(
			e, "/api/2.0/mlflow/runs/get?run_id=run-1",
			httptestutil.WithHeader("Authorization", "Bearer "+token),
		)

		called := false
		next := func(c echo.Context) error {
			called = true
			return c.NoContent(http.StatusOK)
		}

		testee := auth.Middleware(signKey)(next)
		if err := testee(c); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if !called {
			t.Error("the next handler is not called")
		}
	})

	t.Run("a request without a token is rejected", func(t *testing.T) {
		e := echo.New()
		c, _ := httptestutil.Get(e, "/api/2.0/mlflow/runs/get?run_id=run-1")

		next := func(c echo.Context) error {
			t.Error("the next handler should not be called")
			return nil
		}

		testee := auth.Middleware(signKey)(next)
		err := testee(c)

		var eresp *apierr.ErrorResponse
		if !errors.As(err, &eresp) {
			t.Fatalf("error is not an ErrorResponse. actual = %#v", err)
		}
		if eresp.ErrorCode != apierr.CodeUnauthenticated {
			t.Errorf(
				"unmatch error code (actual, expected): %s, %s",
				eresp.ErrorCode, apierr.CodeUnauthenticated,
			)
		}
	})

	t.Run("a request with a forged token is rejected", func(t *testing.T) {
		token := try.To(auth.Issue([]byte("another-key"), "track", time.Hour)).OrFatal(t)

		e := echo.New()
		c, _ := httptestutil.Get(
			e, "/api/2.0/mlflow/runs/get?run_id=run-1",
			httptestutil.WithHeader("Authorization", "Bearer "+token),
		)

		next := func(c echo.Context) error {
			t.Error("the next handler should not be called")
			return nil
		}

		testee := auth.Middleware(signKey)(next)
		err := testee(c)

		var eresp *apierr.ErrorResponse
		if !errors.As(err, &eresp) {
			t.Fatalf("error is not an ErrorResponse. actual = %#v", err)
		}
		if eresp.ErrorCode != apierr.CodeUnauthenticated {
			t.Errorf(
				"unmatch error code (actual, expected): %s, %s",
				eresp.ErrorCode, apierr.CodeUnauthenticated,
			)
		}
	})
}
