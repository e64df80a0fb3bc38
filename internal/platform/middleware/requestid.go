package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

const (
	RequestIDHeader = echo.HeaderXRequestID
	maxRequestIDLen = 128
)

// RequestID reuses the caller's X-Request-ID or generates a UUID, stores it
// as "request_id" on the echo context and echoes it back. Over-long ids are
// replaced.
func RequestID() echo.MiddlewareFunc {
	assign := echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator:    uuid.NewString,
		TargetHeader: RequestIDHeader,
		RequestIDHandler: func(c echo.Context, rid string) {
			c.Set("request_id", rid)
		},
	})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		h := assign(next)
		return func(c echo.Context) error {
			if len(c.Request().Header.Get(RequestIDHeader)) > maxRequestIDLen {
				c.Request().Header.Del(RequestIDHeader)
			}
			return h(c)
		}
	}
}
