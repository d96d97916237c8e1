package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthPingTimeout = 5 * time.Second

// PoolStats is the JSON view of pgxpool.Stat.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

func statsOf(pool *pgxpool.Pool) *PoolStats {
	s := pool.Stat()
	return &PoolStats{
		TotalConns:      s.TotalConns(),
		IdleConns:       s.IdleConns(),
		AcquiredConns:   s.AcquiredConns(),
		MaxConns:        s.MaxConns(),
		AcquireCount:    s.AcquireCount(),
		AcquireDuration: s.AcquireDuration().String(),
		Healthy:         s.TotalConns() > 0,
	}
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReport is the body of GET /health/db.
type HealthReport struct {
	Status string     `json:"status"`
	Schema string     `json:"schema"`
	PingMS int64      `json:"ping_ms"`
	Error  string     `json:"error,omitempty"`
	Pool   *PoolStats `json:"pool,omitempty"`
}

// CheckHealth pings the database and collects pool statistics when stats is
// non-nil.
func CheckHealth(ctx context.Context, p Pinger, schema string, stats func() *PoolStats) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	report := HealthReport{
		Status: "healthy",
		Schema: schema,
		PingMS: time.Since(start).Milliseconds(),
	}
	if stats != nil {
		report.Pool = stats()
	}
	if err != nil {
		report.Status = "unhealthy"
		report.Error = err.Error()
		if report.Pool != nil {
			report.Pool.Healthy = false
		}
	}
	return report
}

// HealthHandler serves CheckHealth, answering 503 when the ping fails.
func HealthHandler(p Pinger, schema string, stats func() *PoolStats) echo.HandlerFunc {
	return func(c echo.Context) error {
		report := CheckHealth(c.Request().Context(), p, schema, stats)
		code := http.StatusOK
		if report.Error != "" {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, report)
	}
}

// PoolHealthHandler is HealthHandler over a pgx pool.
func PoolHealthHandler(pool *pgxpool.Pool, schema string) echo.HandlerFunc {
	return HealthHandler(pool, schema, func() *PoolStats { return statsOf(pool) })
}
