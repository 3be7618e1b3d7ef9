package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthStatus reports pool connectivity and connection pool statistics,
// mirroring the shape of the teacher's database.HealthStatus but backed
// by pgxpool.Stat() instead of database/sql.DB.Stats().
type HealthStatus struct {
	Status          string        `json:"status"`
	ResponseTime    time.Duration `json:"response_time_ms"`
	TotalConns      int32         `json:"total_conns"`
	AcquiredConns   int32         `json:"acquired_conns"`
	IdleConns       int32         `json:"idle_conns"`
	NewConnsCount   int64         `json:"new_conns_count"`
	MaxConns        int32         `json:"max_conns"`
}

// Health pings the pool and returns its current statistics.
func Health(ctx context.Context, pool *pgxpool.Pool) (*HealthStatus, error) {
	start := time.Now()

	if err := pool.Ping(ctx); err != nil {
		return &HealthStatus{Status: "unhealthy", ResponseTime: time.Since(start)}, err
	}

	stat := pool.Stat()
	return &HealthStatus{
		Status:        "healthy",
		ResponseTime:  time.Since(start),
		TotalConns:    stat.TotalConns(),
		AcquiredConns: stat.AcquiredConns(),
		IdleConns:     stat.IdleConns(),
		NewConnsCount: stat.NewConnsCount(),
		MaxConns:      stat.MaxConns(),
	}, nil
}
