package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthProbe reports whether an optional dependency is reachable
type HealthProbe func() bool

// HealthHandler liveness plus a per-dependency view
type HealthHandler struct {
	service string
	probes  map[string]HealthProbe
}

func NewHealthHandler(service string, probes map[string]HealthProbe) *HealthHandler {
	return &HealthHandler{service: service, probes: probes}
}

// PingHandler GET /ping
func (h *HealthHandler) PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// HealthHandler GET /health
//
// Optional dependencies never fail the check; only the relayer does.
func (h *HealthHandler) HealthHandler(c *gin.Context) {
	deps := make(map[string]string, len(h.probes))
	healthy := true
	for name, probe := range h.probes {
		if probe() {
			deps[name] = "ok"
			continue
		}
		deps[name] = "down"
		if name == "relayer" {
			healthy = false
		}
	}
	status := "ok"
	if !healthy {
		status = "degraded"
	}
	c.JSON(statusFor(healthy), gin.H{
		"status":       status,
		"service":      h.service,
		"dependencies": deps,
	})
}
