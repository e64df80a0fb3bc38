package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/vetdesk/clinic/internal/config"
	"github.com/vetdesk/clinic/internal/domain/billing"
	"github.com/vetdesk/clinic/internal/domain/identity"
	"github.com/vetdesk/clinic/internal/domain/scheduling"
	"github.com/vetdesk/clinic/internal/platform/auth"
	"github.com/vetdesk/clinic/internal/platform/blobstore"
	"github.com/vetdesk/clinic/internal/platform/db"
	"github.com/vetdesk/clinic/internal/platform/idempotency"
	"github.com/vetdesk/clinic/internal/platform/metrics"
	"github.com/vetdesk/clinic/internal/platform/middleware"
	"github.com/vetdesk/clinic/internal/platform/mongostore"
)

const (
	bookingPath    = "/api/v1/appointments"
	requestTimeout = 60 * time.Second
)

// stores holds the repositories of one storage backend.
type stores struct {
	driver       string
	doctors      identity.DoctorRepository
	patients     identity.PatientRepository
	appointments scheduling.AppointmentRepository
	transactions billing.TransactionRepository
	tx           db.TxRunner
	pinger       db.Pinger
	stats        func() interface{}
	collectors   []prometheus.Collector
	close        func()
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		ms, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := ms.EnsureIndexes(ctx); err != nil {
			_ = ms.Close(context.Background())
			return nil, err
		}
		if !cfg.MongoTransactions {
			logger.Warn().Msg("MONGO_TRANSACTIONS is off: a failed booking can leave a patient without its appointment or transaction")
		}
		mdb := ms.Database()
		return &stores{
			driver:       config.DriverMongo,
			doctors:      identity.NewDoctorRepoMongo(mdb),
			patients:     identity.NewPatientRepoMongo(mdb),
			appointments: scheduling.NewAppointmentRepoMongo(mdb),
			transactions: billing.NewTransactionRepoMongo(mdb),
			tx:           ms.TxRunner(cfg.MongoTransactions),
			pinger:       ms,
			close:        func() { _ = ms.Close(context.Background()) },
		}, nil

	default:
		pool, err := db.NewPool(ctx, poolConfig(cfg))
		if err != nil {
			return nil, err
		}
		return &stores{
			driver:       config.DriverPostgres,
			doctors:      identity.NewDoctorRepoPG(pool),
			patients:     identity.NewPatientRepoPG(pool),
			appointments: scheduling.NewAppointmentRepoPG(pool),
			transactions: billing.NewTransactionRepoPG(pool),
			tx:           db.NewTxRunner(pool),
			pinger:       pool,
			stats:        func() interface{} { return db.GetPoolStats(pool) },
			collectors:   []prometheus.Collector{db.NewPoolCollector(func() *db.PoolStats { return db.GetPoolStats(pool) })},
			close:        pool.Close,
		}, nil
	}
}

func openBlobs(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	if cfg.BlobBackend != config.BlobS3 {
		return blobstore.NewInMemoryBlobStore(), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return blobstore.NewS3Store(s3.NewFromConfig(awsCfg), cfg.S3Bucket), nil
}

// openIdempotency returns a nil store when REDIS_URL is unset.
func openIdempotency(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (scheduling.Idempotency, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info().Msg("REDIS_URL not set, Idempotency-Key headers are ignored")
		return nil, func() {}, nil
	}
	client, err := idempotency.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return idempotency.NewStore(client, cfg.IdempotencyTTL), func() { _ = client.Close() }, nil
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.ResolvedAuthMode() == "development" {
		return auth.DevAuthMiddleware()
	}
	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
		Skipper:  auth.AuthSkipper,
	}
	if cfg.AuthSigningKey != "" {
		jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
	}
	return auth.JWTMiddleware(jwtCfg)
}

func newServer(cfg *config.Config, logger zerolog.Logger, st *stores, blobs blobstore.BlobStore, idem scheduling.Idempotency) (*echo.Echo, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(st.collectors...)
	bookingMetrics := metrics.NewBookingMetrics(reg)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID", scheduling.HeaderIdempotencyKey},
		ExposeHeaders: []string{scheduling.HeaderReplayed},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.BookingBodyLimit, bookingPath))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(st.driver, st.pinger, st.stats))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(reg)))

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	rateLimitCfg.BookingsPerMinute = cfg.BookingRatePerMin
	rateLimitCfg.BookingPath = bookingPath

	apiV1 := e.Group("/api/v1")
	apiV1.Use(authMiddleware(cfg))
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.RequestTimeout(requestTimeout))

	identitySvc := identity.NewService(st.doctors, st.patients)
	identitySvc.SetDefaultPatientImage(cfg.DefaultPatientImage)
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)

	billingSvc := billing.NewService(st.transactions)
	billing.NewHandler(billingSvc).RegisterRoutes(apiV1)

	schedulingSvc := scheduling.NewService(scheduling.Deps{
		Appointments:  st.appointments,
		Doctors:       identitySvc,
		Patients:      identitySvc,
		Ledger:        billingSvc,
		Tx:            st.tx,
		Blobs:         blobs,
		Idempotency:   idem,
		Metrics:       bookingMetrics,
		Logger:        logger,
		Location:      loc,
		PaymentMethod: cfg.PaymentMethod,
	})
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(apiV1)

	blobstore.NewBlobHandler(blobs).RegisterRoutes(apiV1)

	return e, nil
}
