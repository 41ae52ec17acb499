package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireTier enforces a minimum role tier on routes behind AccessAuth.
// Tiers are ordered, so an app admin passes every society admin check.
func RequireTier(min int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get("role").(int)
			if !ok || role < min {
				return c.JSON(http.StatusForbidden, echo.Map{"success": false, "message": "forbidden"})
			}
			return next(c)
		}
	}
}
