package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"qconf/internal/hotreload"
)

// HotReloadHandler handles hot reload API requests
type HotReloadHandler struct {
	reloader *hotreload.Manager
}

// NewHotReloadHandler creates a new hot reload handler
func NewHotReloadHandler(reloader *hotreload.Manager) *HotReloadHandler {
	return &HotReloadHandler{reloader: reloader}
}

// GetStatus reports whether hot reload is running
// @Summary Hot reload status
// @Tags HotReload
// @Produce json
// @Success 200 {object} Response
// @Security BearerAuth
// @Router /hotreload/status [get]
func (h *HotReloadHandler) GetStatus(c *gin.Context) {
	if h.reloader == nil {
		respondOK(c, gin.H{"enabled": false, "running": false})
		return
	}

	respondOK(c, gin.H{
		"enabled": true,
		"running": h.reloader.IsRunning(),
	})
}

// GetStats reports reload activity counters
// @Summary Hot reload statistics
// @Description Returns reload counters, success rate and uptime since startup
// @Tags HotReload
// @Produce json
// @Success 200 {object} Response
// @Failure 503 {object} Response
// @Security BearerAuth
// @Router /hotreload/stats [get]
func (h *HotReloadHandler) GetStats(c *gin.Context) {
	if h.reloader == nil {
		respondError(c, http.StatusServiceUnavailable, fmt.Errorf("hot reload is not enabled"))
		return
	}
	respondOK(c, h.reloader.Stats())
}

// GetChanges returns recent change records, newest first
// @Summary Hot reload change history
// @Tags HotReload
// @Produce json
// @Param limit query int false "Maximum records to return"
// @Success 200 {object} Response
// @Failure 503 {object} Response
// @Security BearerAuth
// @Router /hotreload/changes [get]
func (h *HotReloadHandler) GetChanges(c *gin.Context) {
	if h.reloader == nil {
		respondError(c, http.StatusServiceUnavailable, fmt.Errorf("hot reload is not enabled"))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	changes := h.reloader.History(limit)

	respondOK(c, gin.H{
		"changes": changes,
		"count":   len(changes),
	})
}
