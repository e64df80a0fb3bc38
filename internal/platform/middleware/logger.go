package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/vetdesk/clinic/internal/platform/auth"
)

// Logger writes one zerolog event per request. Client errors log at warn and
// server errors at error; the matched route is logged next to the raw path
// so appointment ids do not explode log cardinality.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogURIPath:   true,
		LogRoutePath: true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			evt := logger.Info()
			switch {
			case v.Status >= 500:
				evt = logger.Error().Err(v.Error)
			case v.Status >= 400 || v.Error != nil:
				evt = logger.Warn().Err(v.Error)
			}
			rid := v.RequestID
			if s, ok := c.Get("request_id").(string); ok && s != "" {
				rid = s
			}
			evt.Str("request_id", rid).
				Str("method", v.Method).
				Str("path", v.URIPath).
				Str("route", v.RoutePath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("user_id", auth.UserIDFromContext(c.Request().Context())).
				Msg("request")
			return nil
		},
	})
}
