package gateway

import (
	"strings"
	"time"

	"github.com/shoptaongon/taobot/internal/health"
)

// HealthCheck returns the health status of the gateway.
func (g *Gateway) HealthCheck() health.ComponentHealth {
	h := health.ComponentHealth{
		Name:   "gateway",
		Status: health.StatusOK,
		LastOK: time.Now(),
	}

	names := g.ChannelNames()
	if len(names) == 0 {
		h.Status = health.StatusDegraded
		h.Message = "no channels registered"
		return h
	}
	h.Message = "channels: " + strings.Join(names, ", ")
	return h
}
