package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

func isBookingSubmit(c echo.Context, bookingPath string) bool {
	return c.Request().Method == http.MethodPost &&
		strings.TrimSuffix(c.Request().URL.Path, "/") == bookingPath
}

// BodyLimit caps request bodies at defaultLimit, except POST bookingPath,
// whose body may embed a base64 medical report and gets bookingLimit.
// Limits use the "512K", "1M", "50M" notation and must already be valid.
func BodyLimit(defaultLimit, bookingLimit, bookingPath string) echo.MiddlewareFunc {
	general := echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{
		Limit:   defaultLimit,
		Skipper: func(c echo.Context) bool { return isBookingSubmit(c, bookingPath) },
	})
	booking := echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{
		Limit:   bookingLimit,
		Skipper: func(c echo.Context) bool { return !isBookingSubmit(c, bookingPath) },
	})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return general(booking(next))
	}
}
