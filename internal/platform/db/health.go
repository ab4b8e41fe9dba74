package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type PoolStats struct {
	TotalConns    int32  `json:"total_conns"`
	IdleConns     int32  `json:"idle_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	MaxConns      int32  `json:"max_conns"`
	AcquireWait   string `json:"acquire_wait"`
}

type HealthReport struct {
	Status string     `json:"status"`
	Error  string     `json:"error,omitempty"`
	Pool   *PoolStats `json:"pool,omitempty"`
}

// Pinger is the slice of *pgxpool.Pool the health check needs. Pool
// statistics are reported when the value also exposes Stat.
type Pinger interface {
	Ping(ctx context.Context) error
}

type statter interface {
	Stat() *pgxpool.Stat
}

func poolStats(stat *pgxpool.Stat) *PoolStats {
	return &PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
		AcquireWait:   stat.AcquireDuration().String(),
	}
}

// CheckHealth pings the database with a short deadline.
func CheckHealth(ctx context.Context, p Pinger) (HealthReport, bool) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	report := HealthReport{Status: "healthy"}
	if s, ok := p.(statter); ok {
		report.Pool = poolStats(s.Stat())
	}
	if err := p.Ping(ctx); err != nil {
		report.Status = "unhealthy"
		report.Error = err.Error()
		return report, false
	}
	return report, true
}

// HealthHandler serves /health/db.
func HealthHandler(p Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		report, ok := CheckHealth(c.Request().Context(), p)
		if !ok {
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}
