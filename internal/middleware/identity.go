package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// currentUserID renders the authenticated user id for cache and rate-limit
// keys. Requests outside AccessAuth key as "anon".
func currentUserID(c echo.Context) string {
	if id, ok := c.Get("user_id").(uint64); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
