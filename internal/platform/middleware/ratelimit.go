package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/vetdesk/clinic/internal/platform/auth"
)

// RateLimitConfig sets the per-caller request budgets. Callers are keyed by
// authenticated user id, falling back to the client IP.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int

	// BookingsPerMinute caps POSTs to BookingPath per caller on top of the
	// general budget. Zero turns the booking budget off.
	BookingsPerMinute int
	BookingPath       string

	// IdleTTL drops a caller's limiter after this long without requests.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns the budgets used when none are configured.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
		IdleTTL:           3 * time.Minute,
	}
}

// callerKey identifies the rate-limited caller of a request.
func callerKey(c echo.Context) (string, error) {
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		return "user:" + uid, nil
	}
	return "ip:" + c.RealIP(), nil
}

// retryAfter is the whole number of seconds until one token refills.
func retryAfter(perSecond float64) int {
	if perSecond <= 0 {
		return 1
	}
	return int(math.Ceil(1/perSecond - 1e-9))
}

func limiter(perSecond float64, burst int, ttl time.Duration, skipper echomw.Skipper, message string) echo.MiddlewareFunc {
	if ttl <= 0 {
		ttl = DefaultRateLimitConfig().IdleTTL
	}
	limit := strconv.FormatFloat(perSecond, 'f', -1, 64)
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: ttl,
	})

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Skipper:             skipper,
		Store:               store,
		IdentifierExtractor: callerKey,
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "unable to identify caller")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			h := c.Response().Header()
			h.Set("Retry-After", strconv.Itoa(retryAfter(perSecond)))
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", "0")
			return echo.NewHTTPError(http.StatusTooManyRequests, message)
		},
	})
}

// RateLimit returns the general request limiter and, when BookingsPerMinute
// is set, a second limiter that applies only to booking submissions.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	general := limiter(cfg.RequestsPerSecond, cfg.BurstSize, cfg.IdleTTL, nil, "rate limit exceeded")

	booking := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	if cfg.BookingsPerMinute > 0 {
		booking = limiter(float64(cfg.BookingsPerMinute)/60, cfg.BookingsPerMinute, cfg.IdleTTL,
			func(c echo.Context) bool { return !isBookingSubmit(c, cfg.BookingPath) }, "too many bookings, try again later")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return general(booking(next))
	}
}
