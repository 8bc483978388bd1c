// Package identity provides authentication middleware that resolves the
// caller's user identity from a bearer token.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sbportal/editlock/pkg/middleware"
	"github.com/sbportal/editlock/pkg/server/router"
)

// Identity holds the authenticated caller attached to a request.
type Identity struct {
	UserID   string
	FullName string
}

// Claims is the JWT claim set the middleware accepts. The subject carries
// the user ID; Name is the display name shown to other users holding or
// denied a lock.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Config configures the identity middleware.
type Config struct {
	// Secret is the HMAC key used to verify token signatures.
	Secret string
}

// Authenticate creates middleware that validates the Authorization bearer
// token and stores the caller's Identity in the request context. Requests
// without a valid token get HTTP 401.
func Authenticate(cfg Config) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "missing authorization header",
				})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "invalid authorization header format",
				})
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(cfg.Secret), nil
			})
			if err != nil || !token.Valid || claims.Subject == "" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "invalid token",
				})
			}

			id := Identity{UserID: claims.Subject, FullName: claims.Name}

			c.Set(string(middleware.UserIDKey), id.UserID)
			c.Set(string(middleware.UserNameKey), id.FullName)

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, middleware.UserIDKey, id.UserID)
			ctx = context.WithValue(ctx, middleware.UserNameKey, id.FullName)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// FromContext extracts the caller identity from a request context.
// The second return is false when the request was not authenticated.
func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	userID, ok := ctx.Value(middleware.UserIDKey).(string)
	if !ok || userID == "" {
		return Identity{}, false
	}
	name, _ := ctx.Value(middleware.UserNameKey).(string)
	return Identity{UserID: userID, FullName: name}, true
}

// Token signs a token for the given identity. Intended for tests and
// local tooling.
func Token(secret string, id Identity) (string, error) {
	claims := Claims{
		Name: id.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: id.UserID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
