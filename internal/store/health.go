package store

import (
	"context"
	"time"

	"github.com/shoptaongon/taobot/internal/health"
)

// HealthCheck pings the database and verifies client_state is readable.
func (db *DB) HealthCheck() health.ComponentHealth {
	h := health.ComponentHealth{
		Name:   "database",
		Status: health.StatusOK,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		h.Status = health.StatusError
		h.Message = err.Error()
		h.LastError = time.Now()
		return h
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM client_state").Scan(&count); err != nil {
		h.Status = health.StatusDegraded
		h.Message = "cannot query client_state: " + err.Error()
		h.LastError = time.Now()
		return h
	}

	h.LastOK = time.Now()
	return h
}
