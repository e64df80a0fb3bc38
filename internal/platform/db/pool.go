package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolConfig sizes the PostgreSQL pool. PingAttempts covers a database that
// is still starting next to the server.
type PoolConfig struct {
	URL          string
	MaxConns     int32
	MinConns     int32
	PingAttempts int
	PingBackoff  time.Duration
}

func NewPool(ctx context.Context, pc PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(pc.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnIdleTime = 5 * time.Minute
	if cfg.ConnConfig.RuntimeParams["application_name"] == "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = "clinic-server"
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pingWithRetry(ctx, pool, pc.PingAttempts, pc.PingBackoff); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func pingWithRetry(ctx context.Context, p Pinger, attempts int, backoff time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = p.Ping(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("ping database: %w", ctx.Err())
		case <-time.After(backoff * time.Duration(i)):
		}
	}
	return fmt.Errorf("ping database after %d attempt(s): %w", attempts, err)
}

var (
	poolTotalDesc    = prometheus.NewDesc("clinic_db_pool_connections", "Open connections in the PostgreSQL pool by state", []string{"state"}, nil)
	poolMaxDesc      = prometheus.NewDesc("clinic_db_pool_max_connections", "Configured PostgreSQL pool size", nil, nil)
	poolAcquireDesc  = prometheus.NewDesc("clinic_db_pool_acquires_total", "Connections acquired from the PostgreSQL pool", nil, nil)
	poolAcquireDelay = prometheus.NewDesc("clinic_db_pool_acquire_seconds_total", "Time spent waiting for a pool connection", nil, nil)
)

// PoolCollector reports pool statistics at scrape time.
type PoolCollector struct {
	stats func() *PoolStats
}

func NewPoolCollector(stats func() *PoolStats) *PoolCollector {
	return &PoolCollector{stats: stats}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolTotalDesc
	ch <- poolMaxDesc
	ch <- poolAcquireDesc
	ch <- poolAcquireDelay
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(poolTotalDesc, prometheus.GaugeValue, float64(s.IdleConns), "idle")
	ch <- prometheus.MustNewConstMetric(poolTotalDesc, prometheus.GaugeValue, float64(s.AcquiredConns), "acquired")
	ch <- prometheus.MustNewConstMetric(poolMaxDesc, prometheus.GaugeValue, float64(s.MaxConns))
	ch <- prometheus.MustNewConstMetric(poolAcquireDesc, prometheus.CounterValue, float64(s.AcquireCount))
	ch <- prometheus.MustNewConstMetric(poolAcquireDelay, prometheus.CounterValue, s.AcquireWait.Seconds())
}
