package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/northpine-consulting/insight-api/internal/warehouse"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const readinessTimeout = 5 * time.Second

// upstreamChecker is satisfied by the time-tracking and CRM clients.
type upstreamChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	warehouse    *warehouse.Client
	timetracking upstreamChecker
	crm          upstreamChecker
	db           *gorm.DB
	version      string
	logger       *zap.Logger
}

func NewHealthHandler(wh *warehouse.Client, tt, crm upstreamChecker, db *gorm.DB, version string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		warehouse:    wh,
		timetracking: tt,
		crm:          crm,
		db:           db,
		version:      version,
		logger:       logger,
	}
}

// Live reports process liveness only.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// Ready checks every dependency the reports need. Any failing component
// flips the overall status to 503 so the load balancer drains the instance.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	components := map[string]string{}
	healthy := true

	whStatus := h.warehouse.HealthCheck(ctx)
	components["warehouse"] = whStatus.Status
	if whStatus.Status == "unhealthy" {
		healthy = false
	}

	if err := h.timetracking.HealthCheck(ctx); err != nil {
		components["timetracking"] = "unhealthy"
		healthy = false
		h.logger.Warn("time-tracking readiness check failed", zap.Error(err))
	} else {
		components["timetracking"] = "healthy"
	}

	if err := h.crm.HealthCheck(ctx); err != nil {
		components["crm"] = "unhealthy"
		healthy = false
		h.logger.Warn("crm readiness check failed", zap.Error(err))
	} else {
		components["crm"] = "healthy"
	}

	components["database"] = "healthy"
	if sqlDB, err := h.db.DB(); err != nil {
		components["database"] = "unhealthy"
		healthy = false
	} else if err := sqlDB.PingContext(ctx); err != nil {
		components["database"] = "unhealthy"
		healthy = false
		h.logger.Warn("database readiness check failed", zap.Error(err))
	}

	status := http.StatusOK
	overall := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "not_ready"
	}

	respondJSON(w, status, map[string]any{
		"status":     overall,
		"version":    h.version,
		"components": components,
	})
}
