package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"qconf/internal/config"
	apperrors "qconf/internal/errors"
	"qconf/internal/hotreload"
	"qconf/internal/logging"
	"qconf/internal/version"
)

// ConfigHandler handles configuration-related API requests
type ConfigHandler struct {
	registry *config.Manager
	reloader *hotreload.Manager
	versions *version.Manager
}

// NewConfigHandler creates a new configuration handler
func NewConfigHandler(registry *config.Manager, reloader *hotreload.Manager, versions *version.Manager) *ConfigHandler {
	return &ConfigHandler{
		registry: registry,
		reloader: reloader,
		versions: versions,
	}
}

// ListConfigs lists all loaded configurations
// @Summary List configurations
// @Description Returns the names of all loaded configuration documents
// @Tags Configs
// @Produce json
// @Success 200 {object} Response
// @Security BearerAuth
// @Router /configs [get]
func (h *ConfigHandler) ListConfigs(c *gin.Context) {
	names := h.registry.List()
	respondOK(c, gin.H{
		"configs": names,
		"count":   len(names),
	})
}

// GetConfig returns a configuration document
// @Summary Get configuration
// @Description Returns a configuration document by name
// @Tags Configs
// @Produce json
// @Param name path string true "Configuration name"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Security BearerAuth
// @Router /configs/{name} [get]
func (h *ConfigHandler) GetConfig(c *gin.Context) {
	name := c.Param("name")

	doc, exists := h.registry.Get(name)
	if !exists {
		respondError(c, http.StatusNotFound, apperrors.NewAppError(apperrors.ErrCodeConfigNotFound,
			fmt.Sprintf("configuration %s not found", name), nil))
		return
	}

	respondOK(c, gin.H{
		"name":   name,
		"config": doc,
	})
}

// SetConfig replaces a configuration document
// @Summary Replace configuration
// @Description Validates, backs up, stores and versions a full configuration document
// @Tags Configs
// @Accept json
// @Produce json
// @Param name path string true "Configuration name"
// @Param config body object true "Configuration document"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Security BearerAuth
// @Router /configs/{name} [put]
func (h *ConfigHandler) SetConfig(c *gin.Context) {
	name := c.Param("name")

	var doc config.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if err := h.registry.ValidateDocument(name, doc); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	// 覆盖前先备份当前生效的配置
	if _, exists := h.registry.Get(name); exists && h.reloader != nil {
		if err := h.reloader.Backup(name); err != nil {
			respondError(c, http.StatusInternalServerError,
				fmt.Errorf("failed to back up configuration %s: %w", name, err))
			return
		}
	}

	if err := h.registry.Set(name, doc); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if err := h.registry.Save(name); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	result := gin.H{"name": name}
	if h.versions != nil {
		author := c.GetString("username")
		if author == "" {
			author = "api"
		}
		v, err := h.versions.Create(c.Request.Context(),
			fmt.Sprintf("updated %s via API", name), author)
		if err != nil {
			// 配置已生效并落盘，版本记录失败只告警
			logging.WithError(err).WithField("config", name).
				Warn("failed to create version after config update")
		} else {
			result["version"] = v.ID
		}
	}

	respondMessage(c, "configuration updated", result)
}

// DeleteConfig removes a configuration from the registry
// @Summary Delete configuration
// @Tags Configs
// @Produce json
// @Param name path string true "Configuration name"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Security BearerAuth
// @Router /configs/{name} [delete]
func (h *ConfigHandler) DeleteConfig(c *gin.Context) {
	name := c.Param("name")

	if _, exists := h.registry.Get(name); !exists {
		respondError(c, http.StatusNotFound, apperrors.NewAppError(apperrors.ErrCodeConfigNotFound,
			fmt.Sprintf("configuration %s not found", name), nil))
		return
	}

	h.registry.Delete(name)
	respondMessage(c, "configuration deleted", gin.H{"name": name})
}

// GetValue returns a single value from a configuration using dot notation
// @Summary Get configuration value
// @Description Returns the value at a dot-notation key, e.g. database.host
// @Tags Configs
// @Produce json
// @Param name path string true "Configuration name"
// @Param key query string true "Dot-notation key"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Security BearerAuth
// @Router /configs/{name}/value [get]
func (h *ConfigHandler) GetValue(c *gin.Context) {
	name := c.Param("name")
	key := c.Query("key")
	if key == "" {
		respondError(c, http.StatusBadRequest, fmt.Errorf("missing key parameter"))
		return
	}

	value, err := h.registry.GetValue(name, key)
	if err != nil {
		respondError(c, http.StatusNotFound, err)
		return
	}

	respondOK(c, gin.H{
		"name":  name,
		"key":   key,
		"value": value,
	})
}

// SetValue sets a single value in a configuration using dot notation
// @Summary Set configuration value
// @Tags Configs
// @Accept json
// @Produce json
// @Param name path string true "Configuration name"
// @Param request body SetValueRequest true "Key and value"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Security BearerAuth
// @Router /configs/{name}/value [put]
func (h *ConfigHandler) SetValue(c *gin.Context) {
	name := c.Param("name")

	var req SetValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if err := h.registry.SetValue(name, req.Key, req.Value); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	respondMessage(c, "value updated", gin.H{
		"name": name,
		"key":  req.Key,
	})
}

// ReloadConfig reloads a configuration from disk
// @Summary Reload configuration
// @Description Re-reads a configuration file from disk, validating before swap
// @Tags Configs
// @Produce json
// @Param name path string true "Configuration name"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Security BearerAuth
// @Router /configs/{name}/reload [post]
func (h *ConfigHandler) ReloadConfig(c *gin.Context) {
	name := c.Param("name")

	if err := h.registry.Reload(name); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	respondMessage(c, "configuration reloaded", gin.H{"name": name})
}

// ReloadAll reloads every loaded configuration from disk
// @Summary Reload all configurations
// @Tags Configs
// @Produce json
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Security BearerAuth
// @Router /configs/reload [post]
func (h *ConfigHandler) ReloadAll(c *gin.Context) {
	if err := h.registry.ReloadAll(); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	respondMessage(c, "all configurations reloaded", gin.H{
		"configs": h.registry.List(),
	})
}

// RollbackConfig restores a configuration from its most recent backup
// @Summary Rollback configuration
// @Description Restores a configuration from its latest backup file
// @Tags Configs
// @Produce json
// @Param name path string true "Configuration name"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Security BearerAuth
// @Router /configs/{name}/rollback [post]
func (h *ConfigHandler) RollbackConfig(c *gin.Context) {
	name := c.Param("name")

	if h.reloader == nil {
		respondError(c, http.StatusServiceUnavailable, fmt.Errorf("hot reload is not enabled"))
		return
	}

	if err := h.reloader.Rollback(name); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	respondMessage(c, "configuration rolled back", gin.H{"name": name})
}
