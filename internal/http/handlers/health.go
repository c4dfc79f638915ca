package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/valyc0/fraudM/internal/services"
)

type HealthHandler struct {
	svc services.RuleService
}

func NewHealthHandler(svc services.RuleService) *HealthHandler { return &HealthHandler{svc: svc} }

type healthResponse struct {
	Status string `json:"status"`
	services.HealthReport
}

// GET /health answers 503 while any collaborator is unhealthy.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	report := h.svc.HealthCheck(c.Request.Context())
	if report.OK() {
		c.JSON(http.StatusOK, healthResponse{Status: "ok", HealthReport: report})
		return
	}
	c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "degraded", HealthReport: report})
}
