package http

import (
	"net/http"
	"time"

	"screenshare/internal/infrastructure/monitoring"
	"screenshare/pkg/utils"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	checker   *monitoring.HealthChecker
	driver    string
	startTime time.Time
}

func NewHealthHandler(checker *monitoring.HealthChecker, driver string) *HealthHandler {
	return &HealthHandler{
		checker:   checker,
		driver:    driver,
		startTime: utils.Now(),
	}
}

func (h *HealthHandler) SetupRoutes(router gin.IRoutes) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

// Health reports liveness only. It never touches storage.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": utils.Now(),
		"uptime":    utils.Since(h.startTime).String(),
		"storage":   h.driver,
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	status := h.checker.CheckAll(c.Request.Context())

	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
