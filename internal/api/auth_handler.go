package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"qconf/internal/auth"
	"qconf/internal/config"
)

// AuthHandler handles authentication API requests. Admin credentials come
// from the QCONF_ADMIN_USER and QCONF_ADMIN_PASSWORD environment variables;
// the password may be stored encrypted with the ENC: prefix.
type AuthHandler struct {
	jwt *auth.JWTManager
	env *config.EnvManager
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(jwt *auth.JWTManager) *AuthHandler {
	return &AuthHandler{
		jwt: jwt,
		env: config.NewEnvManager("", ""),
	}
}

// Login authenticates and issues a JWT token
// @Summary Login
// @Description Authenticates against the configured admin credentials and returns a bearer token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	if h.jwt == nil {
		respondError(c, http.StatusServiceUnavailable, fmt.Errorf("authentication is not enabled"))
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	wantUser := h.env.GetString("ADMIN_USER", "admin")
	wantPass := h.env.GetEncryptedString("ADMIN_PASSWORD", "")

	// 未配置管理员密码时禁止登录
	if wantPass == "" || !auth.VerifyCredentials(req.Username, req.Password, wantUser, wantPass) {
		respondError(c, http.StatusUnauthorized, fmt.Errorf("invalid credentials"))
		return
	}

	token, err := h.jwt.GenerateToken("admin", req.Username, "admin")
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	respondOK(c, LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.jwt.TokenDuration()),
		Username:  req.Username,
		Role:      "admin",
	})
}

// Refresh issues a fresh token for an authenticated caller
// @Summary Refresh token
// @Description Issues a new bearer token using the claims of the current one
// @Tags Auth
// @Produce json
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Security BearerAuth
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	if h.jwt == nil {
		respondError(c, http.StatusServiceUnavailable, fmt.Errorf("authentication is not enabled"))
		return
	}

	userID := c.GetString("user_id")
	username := c.GetString("username")
	role := c.GetString("role")
	if username == "" {
		respondError(c, http.StatusUnauthorized, fmt.Errorf("not authenticated"))
		return
	}

	token, err := h.jwt.GenerateToken(userID, username, role)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	respondOK(c, LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.jwt.TokenDuration()),
		Username:  username,
		Role:      role,
	})
}
