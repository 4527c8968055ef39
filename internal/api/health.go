package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kafka-portal/kafka-portal/internal/kafka"
)

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	db          *sql.DB
	provisioner kafka.Provisioner
	version     string
}

// NewHealthHandlers creates a new HealthHandlers instance
func NewHealthHandlers(db *sql.DB, provisioner kafka.Provisioner, version string) *HealthHandlers {
	return &HealthHandlers{db: db, provisioner: provisioner, version: version}
}

// LivenessHandler reports that the process is up.
// GET /healthz
func (h *HealthHandlers) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": h.version,
		})
	}
}

// ReadinessHandler reports whether the database and the broker are reachable.
// A broker outage degrades readiness but does not fail it: the portal can
// still accept and queue requests, only approvals need the broker.
// GET /readyz
func (h *HealthHandlers) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		checks := gin.H{"database": "ok", "kafka": "ok"}
		status := http.StatusOK

		if err := h.db.PingContext(ctx); err != nil {
			checks["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		}

		if err := h.provisioner.Ping(ctx); err != nil {
			checks["kafka"] = "degraded"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "unavailable"
		}

		c.JSON(status, gin.H{
			"status": overall,
			"checks": checks,
		})
	}
}
