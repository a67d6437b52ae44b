package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "qconf/internal/errors"
)

// Response represents a standard API response
type Response struct {
	Success   bool        `json:"success"`
	Timestamp time.Time   `json:"timestamp"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// respondOK writes a successful response with data
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success:   true,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// respondMessage writes a successful response with a message and data
func respondMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success:   true,
		Timestamp: time.Now(),
		Message:   message,
		Data:      data,
	})
}

// respondError writes a failed response. Application errors carry their own
// HTTP status, which overrides the given one.
func respondError(c *gin.Context, status int, err error) {
	if appErr, ok := apperrors.IsAppError(err); ok {
		status = appErr.HTTPStatus()
	}
	c.JSON(status, Response{
		Success:   false,
		Timestamp: time.Now(),
		Error:     err.Error(),
	})
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a successful login
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
}

// SetValueRequest represents a request to set a single configuration value
type SetValueRequest struct {
	Key   string      `json:"key" binding:"required"`
	Value interface{} `json:"value"`
}

// CreateVersionRequest represents a request to create a configuration version
type CreateVersionRequest struct {
	Description string `json:"description"`
	Author      string `json:"author"`
}

// CleanupRequest represents a request to prune old versions
type CleanupRequest struct {
	Keep int `json:"keep"`
}
