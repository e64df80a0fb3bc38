package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// SecurityHeaders sets the response headers for a JSON API that returns
// patient and payment data. HSTS is only sent over TLS or behind a proxy
// reporting https.
func SecurityHeaders() echo.MiddlewareFunc {
	secure := echomw.SecureWithConfig(echomw.SecureConfig{
		XSSProtection:         "0",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return secure(func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set(echo.HeaderCacheControl, "no-store")
			return next(c)
		})
	}
}
