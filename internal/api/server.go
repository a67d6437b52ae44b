package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/time/rate"

	"qconf/internal/auth"
	"qconf/internal/cache"
	"qconf/internal/config"
	"qconf/internal/database"
	"qconf/internal/hotreload"
	"qconf/internal/logging"
	"qconf/internal/monitoring"
	"qconf/internal/version"
)

// Server represents the HTTP API server
type Server struct {
	config   *config.Config
	router   *gin.Engine
	server   *http.Server
	metrics  *monitoring.Metrics
	jwt      *auth.JWTManager
	registry *config.Manager
	reloader *hotreload.Manager
	versions *version.Manager
	db       *database.DB
	cache    cache.Cache
	hub      *Hub
	started  time.Time
}

// NewServer creates a new API server. db may be nil when the database is
// disabled or unavailable; the server degrades gracefully.
func NewServer(
	cfg *config.Config,
	registry *config.Manager,
	reloader *hotreload.Manager,
	versions *version.Manager,
	db *database.DB,
	cacheClient cache.Cache,
) *Server {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:   cfg,
		router:   gin.New(),
		metrics:  monitoring.NewMetrics(),
		registry: registry,
		reloader: reloader,
		versions: versions,
		db:       db,
		cache:    cacheClient,
		hub:      NewHub(),
		started:  time.Now(),
	}

	if cfg.Auth.Enabled {
		s.jwt = auth.NewJWTManager(cfg.Auth.SecretKey, cfg.Auth.Duration.Duration())
	}

	s.setupRoutes()
	return s
}

// Hub returns the WebSocket hub so change notifications can be wired in
func (s *Server) Hub() *Hub {
	return s.hub
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(s.corsMiddleware())
	s.router.Use(s.rateLimitMiddleware())
	s.router.Use(s.metrics.MetricsMiddleware())

	// Swagger 文档仅在开发环境开放
	if s.config.App.Environment == "development" {
		s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if s.config.Monitoring.PrometheusEnabled {
		s.router.GET(s.config.Monitoring.PrometheusPath, monitoring.PrometheusHandler())
	}

	s.router.GET("/health", s.handleHealth)

	authHandler := NewAuthHandler(s.jwt)
	configHandler := NewConfigHandler(s.registry, s.reloader, s.versions)
	versionHandler := NewVersionHandler(s.versions)
	reloadHandler := NewHotReloadHandler(s.reloader)
	systemHandler := NewSystemHandler(s.config, s.db, s.cache, s.reloader, s.versions, s.started)

	s.router.POST("/api/v1/auth/login", authHandler.Login)

	v1 := s.router.Group("/api/v1")
	if s.jwt != nil {
		v1.Use(s.jwt.AuthMiddleware())
	}
	{
		v1.POST("/auth/refresh", authHandler.Refresh)

		configs := v1.Group("/configs")
		{
			configs.GET("", configHandler.ListConfigs)
			configs.POST("/reload", configHandler.ReloadAll)
			configs.GET("/:name", configHandler.GetConfig)
			configs.PUT("/:name", configHandler.SetConfig)
			configs.DELETE("/:name", configHandler.DeleteConfig)
			configs.GET("/:name/value", configHandler.GetValue)
			configs.PUT("/:name/value", configHandler.SetValue)
			configs.POST("/:name/reload", configHandler.ReloadConfig)
			configs.POST("/:name/rollback", configHandler.RollbackConfig)
		}

		versions := v1.Group("/versions")
		{
			versions.POST("", versionHandler.CreateVersion)
			versions.GET("", versionHandler.ListVersions)
			versions.GET("/diff", versionHandler.DiffVersions)
			versions.GET("/stats", versionHandler.GetStats)
			versions.POST("/cleanup", versionHandler.Cleanup)
			versions.GET("/:id", versionHandler.GetVersion)
			versions.POST("/:id/rollback", versionHandler.Rollback)
		}

		reload := v1.Group("/hotreload")
		{
			reload.GET("/status", reloadHandler.GetStatus)
			reload.GET("/stats", reloadHandler.GetStats)
			reload.GET("/changes", reloadHandler.GetChanges)
		}

		system := v1.Group("/system")
		{
			system.GET("/status", systemHandler.GetStatus)
		}
	}

	ws := s.router.Group("/ws")
	{
		ws.GET("/changes", s.hub.HandleWebSocket)
	}
}

// handleHealth reports the health of the server and its dependencies
// @Summary Health check
// @Description Returns the health status of the service and its dependencies
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	services := gin.H{}
	healthy := true

	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			services["database"] = "error"
			healthy = false
		} else {
			services["database"] = "ok"
		}
	} else {
		services["database"] = "unavailable"
	}

	if s.cache != nil {
		if err := s.cache.HealthCheck(ctx); err != nil {
			services["cache"] = "error"
			healthy = false
		} else {
			services["cache"] = "ok"
		}
	} else {
		services["cache"] = "unavailable"
	}

	if s.reloader != nil && s.reloader.IsRunning() {
		services["hot_reload"] = "ok"
	} else {
		services["hot_reload"] = "stopped"
	}

	status := http.StatusOK
	statusText := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		statusText = "degraded"
	}

	c.JSON(status, gin.H{
		"status":    statusText,
		"timestamp": time.Now(),
		"version":   s.config.App.Version,
		"services":  services,
	})
}

// corsMiddleware handles cross-origin requests
func (s *Server) corsMiddleware() gin.HandlerFunc {
	cfg := s.config.CORS

	origins := "*"
	if len(cfg.AllowedOrigins) > 0 {
		origins = strings.Join(cfg.AllowedOrigins, ", ")
	}
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(cfg.AllowedMethods) > 0 {
		methods = strings.Join(cfg.AllowedMethods, ", ")
	}
	headers := "Origin, Content-Type, Authorization"
	if len(cfg.AllowedHeaders) > 0 {
		headers = strings.Join(cfg.AllowedHeaders, ", ")
	}

	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origins)
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", headers)
		if cfg.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// rateLimitMiddleware enforces a per-client request rate
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	cfg := s.config.RateLimit
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	perSecond := rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	if perSecond <= 0 {
		perSecond = rate.Limit(10)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 20
	}

	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		limiter, exists := limiters[ip]
		if !exists {
			// 客户端过多时重置，避免无界增长
			if len(limiters) > 10000 {
				limiters = make(map[string]*rate.Limiter)
			}
			limiter = rate.NewLimiter(perSecond, burst)
			limiters[ip] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, Response{
				Success:   false,
				Timestamp: time.Now(),
				Error:     "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout.Duration(),
		WriteTimeout:   s.config.Server.WriteTimeout.Duration(),
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	go s.hub.Run()

	logging.WithField("addr", addr).Info("API server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	if s.server == nil {
		return nil
	}
	logging.Info("API server stopping")
	return s.server.Shutdown(ctx)
}

// Router exposes the gin engine, primarily for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}
