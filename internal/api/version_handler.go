package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"qconf/internal/version"
)

// VersionHandler handles version management API requests
type VersionHandler struct {
	versions *version.Manager
}

// NewVersionHandler creates a new version handler
func NewVersionHandler(versions *version.Manager) *VersionHandler {
	return &VersionHandler{versions: versions}
}

// CreateVersion snapshots all configurations as a new version
// @Summary Create version
// @Description Creates a version from the currently loaded configurations
// @Tags Versions
// @Accept json
// @Produce json
// @Param request body CreateVersionRequest true "Version metadata"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Security BearerAuth
// @Router /versions [post]
func (h *VersionHandler) CreateVersion(c *gin.Context) {
	var req CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if req.Author == "" {
		if username, exists := c.Get("username"); exists {
			req.Author, _ = username.(string)
		}
	}

	v, err := h.versions.Create(c.Request.Context(), req.Description, req.Author)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	respondMessage(c, "version created", gin.H{
		"id":        v.ID,
		"timestamp": v.Timestamp,
		"configs":   len(v.Configs),
	})
}

// ListVersions lists stored versions, newest first
// @Summary List versions
// @Tags Versions
// @Produce json
// @Success 200 {object} Response
// @Security BearerAuth
// @Router /versions [get]
func (h *VersionHandler) ListVersions(c *gin.Context) {
	versions := h.versions.List()
	respondOK(c, gin.H{
		"versions": versions,
		"count":    len(versions),
	})
}

// GetVersion returns a stored version including its configurations
// @Summary Get version
// @Tags Versions
// @Produce json
// @Param id path string true "Version ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Security BearerAuth
// @Router /versions/{id} [get]
func (h *VersionHandler) GetVersion(c *gin.Context) {
	v, err := h.versions.Get(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusNotFound, err)
		return
	}
	respondOK(c, v)
}

// Rollback restores all configurations from a stored version
// @Summary Rollback to version
// @Description Restores the configurations of a version. The current state is snapshotted first so the rollback can be undone.
// @Tags Versions
// @Produce json
// @Param id path string true "Version ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Security BearerAuth
// @Router /versions/{id}/rollback [post]
func (h *VersionHandler) Rollback(c *gin.Context) {
	id := c.Param("id")

	if err := h.versions.Rollback(c.Request.Context(), id); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	respondMessage(c, "rolled back to version", gin.H{"id": id})
}

// DiffVersions compares two stored versions
// @Summary Diff versions
// @Description Compares two versions and returns added, removed, changed and type-changed keys
// @Tags Versions
// @Produce json
// @Param old query string true "Old version ID"
// @Param new query string true "New version ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Security BearerAuth
// @Router /versions/diff [get]
func (h *VersionHandler) DiffVersions(c *gin.Context) {
	oldID := c.Query("old")
	newID := c.Query("new")
	if oldID == "" || newID == "" {
		respondError(c, http.StatusBadRequest, fmt.Errorf("missing old or new version parameter"))
		return
	}

	diff, err := h.versions.Diff(oldID, newID)
	if err != nil {
		respondError(c, http.StatusNotFound, err)
		return
	}

	respondOK(c, gin.H{
		"old":  oldID,
		"new":  newID,
		"diff": diff,
	})
}

// Cleanup removes old versions beyond the keep count
// @Summary Cleanup versions
// @Description Removes the oldest versions, keeping the requested count (0 uses the configured default)
// @Tags Versions
// @Accept json
// @Produce json
// @Param request body CleanupRequest false "Keep count"
// @Success 200 {object} Response
// @Security BearerAuth
// @Router /versions/cleanup [post]
func (h *VersionHandler) Cleanup(c *gin.Context) {
	var req CleanupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, err)
			return
		}
	}
	if req.Keep == 0 {
		req.Keep, _ = strconv.Atoi(c.Query("keep"))
	}

	removed, err := h.versions.Cleanup(c.Request.Context(), req.Keep)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	respondMessage(c, "version cleanup completed", gin.H{"removed": removed})
}

// GetStats summarizes the stored versions
// @Summary Version statistics
// @Tags Versions
// @Produce json
// @Success 200 {object} Response
// @Security BearerAuth
// @Router /versions/stats [get]
func (h *VersionHandler) GetStats(c *gin.Context) {
	respondOK(c, h.versions.Stats())
}
