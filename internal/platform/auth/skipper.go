package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths lists routes that bypass session authentication.
var publicPaths = map[string]bool{
	"/health":            true,
	"/health/db":         true,
	"/metrics":           true,
	"/api/auth/login":    true,
	"/api/auth/register": true,
	"/api/auth/logout":   true,
}

// AuthSkipper returns true for public routes and for anything outside /api,
// which is the static UI bundle.
func AuthSkipper(c echo.Context) bool {
	if publicPaths[c.Path()] {
		return true
	}
	return !strings.HasPrefix(c.Request().URL.Path, "/api/")
}

// IsPublicPath reports whether the given route bypasses authentication.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
