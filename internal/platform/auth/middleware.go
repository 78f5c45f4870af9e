package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserEmailKey contextKey = "user_email"
	TokenIDKey   contextKey = "token_id"
	TokenExpKey  contextKey = "token_exp"
)

type SessionConfig struct {
	Tokens      *TokenIssuer
	CookieName  string
	Revocations *TokenRevocationStore
	Skipper     func(echo.Context) bool
}

// tokensFromRequest returns the session cookie and the bearer header
// values, in that order. Either may be missing.
func tokensFromRequest(c echo.Context, cookieName string) []string {
	var out []string
	if cookie, err := c.Cookie(cookieName); err == nil && cookie.Value != "" {
		out = append(out, cookie.Value)
	}
	header := c.Request().Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") && strings.TrimSpace(parts[1]) != "" {
		out = append(out, strings.TrimSpace(parts[1]))
	}
	return out
}

// authenticate returns the claims of the first candidate that parses and
// has not been revoked. The message describes why none did.
func authenticate(cfg SessionConfig, candidates []string) (*Claims, string) {
	if len(candidates) == 0 {
		return nil, "authentication required"
	}
	msg := "invalid token"
	for _, tokenStr := range candidates {
		claims, err := cfg.Tokens.Parse(tokenStr)
		if err != nil {
			continue
		}
		if cfg.Revocations != nil && cfg.Revocations.IsRevoked(claims.ID) {
			msg = "session has ended"
			continue
		}
		return claims, ""
	}
	return nil, msg
}

// SessionMiddleware rejects requests without a valid session token with 401.
func SessionMiddleware(cfg SessionConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			claims, msg := authenticate(cfg, tokensFromRequest(c, cfg.CookieName))
			if claims == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, msg)
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
			ctx = context.WithValue(ctx, UserEmailKey, claims.Email)
			ctx = context.WithValue(ctx, TokenIDKey, claims.ID)
			if claims.ExpiresAt != nil {
				ctx = context.WithValue(ctx, TokenExpKey, claims.ExpiresAt.Time)
			}
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("user_id", claims.Subject)

			return next(c)
		}
	}
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

// OwnerID returns the authenticated user as a uuid. Services scope every
// record by it.
func OwnerID(ctx context.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, apperr.Unauthorized("authentication required")
	}
	return id, nil
}

func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(UserEmailKey).(string)
	return email
}

// WithUserID returns ctx carrying an authenticated user id. Used by the CLI
// and tests to call services outside an HTTP request.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func tokenFromContext(ctx context.Context) (string, time.Time) {
	jti, _ := ctx.Value(TokenIDKey).(string)
	exp, _ := ctx.Value(TokenExpKey).(time.Time)
	return jti, exp
}
