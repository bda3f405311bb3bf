package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIKeyAuth rejects requests missing the configured static API key, a
// static X-API-Key header check like the one the teacher's REST layer used
// for its service routes. A key of "" disables the check entirely (dev-only, §0).
func APIKeyAuth(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key == "" {
				return next(c)
			}
			got := c.Request().Header.Get("X-API-Key")
			if got == "" || got != key {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing API key")
			}
			return next(c)
		}
	}
}
