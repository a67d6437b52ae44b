package api

import (
	"context"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"qconf/internal/cache"
	"qconf/internal/config"
	"qconf/internal/database"
	"qconf/internal/hotreload"
	"qconf/internal/version"
)

// SystemHandler handles system status API requests
type SystemHandler struct {
	config   *config.Config
	db       *database.DB
	cache    cache.Cache
	reloader *hotreload.Manager
	versions *version.Manager
	started  time.Time
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(
	cfg *config.Config,
	db *database.DB,
	cacheClient cache.Cache,
	reloader *hotreload.Manager,
	versions *version.Manager,
	started time.Time,
) *SystemHandler {
	return &SystemHandler{
		config:   cfg,
		db:       db,
		cache:    cacheClient,
		reloader: reloader,
		versions: versions,
		started:  started,
	}
}

// GetStatus reports the overall service status
// @Summary System status
// @Description Returns application info, dependency health, reload statistics and version statistics
// @Tags System
// @Produce json
// @Success 200 {object} Response
// @Security BearerAuth
// @Router /system/status [get]
func (h *SystemHandler) GetStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := gin.H{
		"app": gin.H{
			"name":        h.config.App.Name,
			"version":     h.config.App.Version,
			"environment": h.config.App.Environment,
			"uptime":      time.Since(h.started).String(),
		},
		"runtime": gin.H{
			"goroutines":      runtime.NumGoroutine(),
			"memory_alloc_mb": memStats.Alloc / 1024 / 1024,
			"gc_runs":         memStats.NumGC,
		},
	}

	if h.db != nil {
		status["database"] = h.db.GetHealthStatus()
	} else {
		status["database"] = gin.H{"status": "unavailable"}
	}

	if h.cache != nil {
		if err := h.cache.HealthCheck(ctx); err != nil {
			status["cache"] = gin.H{"status": "error", "error": err.Error()}
		} else {
			status["cache"] = gin.H{"status": "ok"}
		}
	} else {
		status["cache"] = gin.H{"status": "unavailable"}
	}

	if h.reloader != nil {
		status["hot_reload"] = h.reloader.Stats()
	}
	if h.versions != nil {
		status["versions"] = h.versions.Stats()
	}

	respondOK(c, status)
}
