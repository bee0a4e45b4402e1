package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ServiceTokenHeader carries the shared secret of trusted backend services.
const ServiceTokenHeader = "X-Service-Token"

// ServiceTokenMiddleware admits only requests carrying token in
// ServiceTokenHeader. End-user credentials are not accepted.
func ServiceTokenMiddleware(token string) echo.MiddlewareFunc {
	want := []byte(token)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := c.Request().Header.Get(ServiceTokenHeader)
			if got == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing service token")
			}
			if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid service token")
			}
			return next(c)
		}
	}
}
