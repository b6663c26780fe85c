package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// healthTimeout bounds the readiness probe's store round trip.
const healthTimeout = 2 * time.Second

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string   `json:"status" example:"connected"`
	DatabaseType string   `json:"database_type" example:"sqlite"`
	Tables       []string `json:"tables"`
}

// Health serves the liveness and readiness probes.
type Health struct {
	DB *gorm.DB
}

// Live godoc
// @ID          live
// @Summary     Liveness probe
// @Tags        Health
// @Produce     json
// @Success     200  {object}  map[string]string
// @Router      /health/live [get]
func (h Health) Live(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"status": "alive"})
}

// Ready godoc
// @ID          ready
// @Summary     Readiness probe
// @Description Pings the issue store and lists its tables.
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Store unreachable"
// @Router      /health [get]
func (h Health) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if h.DB == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "database not configured")
		return
	}
	sqlDB, err := h.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "database unreachable")
		return
	}
	tables, err := h.DB.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "database unreachable")
		return
	}
	ok(c, http.StatusOK, HealthResponse{Status: "connected", DatabaseType: h.DB.Dialector.Name(), Tables: tables})
}
