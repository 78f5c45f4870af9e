package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	apiCSP = "default-src 'none'; frame-ancestors 'none'"
	uiCSP  = "default-src 'self'; img-src 'self' data: blob:; style-src 'self' 'unsafe-inline'; frame-ancestors 'none'"
)

// SecurityHeaders sets browser hardening headers. API responses carry patient
// data and are never cached; the static UI gets a CSP that lets it load its
// own assets and photo blobs.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "0")
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			if strings.HasPrefix(c.Request().URL.Path, "/api/") {
				h.Set("Content-Security-Policy", apiCSP)
				h.Set("Cache-Control", "no-store")
			} else {
				h.Set("Content-Security-Policy", uiCSP)
			}

			return next(c)
		}
	}
}
