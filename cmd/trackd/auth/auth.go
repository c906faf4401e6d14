package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	binderr "github.com/opst/trackfab/pkg/api-types-binding/errors"
)

var ErrInvalidToken = errors.New("invalid token")

// Issue signs a bearer token for subject, valid for ttl from now.
//
// # Args
//
// - signKey: HMAC signing key
//
// - subject: name of the token holder
//
// - ttl: how long the token stays valid
//
// # Returns
//
// - string: JWS token string
//
// - error: from [jwt.Token.SignedString]
func Issue(signKey []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return tok.SignedString(signKey)
}

// Verify parses a token and returns its claims.
//
// # Returns
//
// - *jwt.RegisteredClaims: claims of the token
//
// - error: wrapping ErrInvalidToken when the token is malformed, signed
// with another key or expired.
func Verify(signKey []byte, token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		token, claims,
		func(t *jwt.Token) (interface{}, error) { return signKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	return claims, nil
}

// Middleware rejects requests which do not carry a bearer token verified
// by signKey.
func Middleware(signKey []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return binderr.Unauthenticated("bearer token is required", nil)
			}
			if _, err := Verify(signKey, token); err != nil {
				return binderr.Unauthenticated("token is not accepted", err)
			}
			return next(c)
		}
	}
}
