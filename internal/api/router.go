// Package api wires together all HTTP routes for the Kafka self-service portal.
//
// Route grouping philosophy:
//   - /healthz, /readyz, and /version are unauthenticated so load balancers and
//     orchestrators can probe the process without credentials.
//   - /api/v1/auth/login is unauthenticated by nature but sits behind a strict
//     per-client rate limit because it fronts the corporate directory.
//   - Everything else under /api/v1/ requires a valid session token; the
//     /api/v1/admin/ subtree additionally requires the admin flag.
package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/kafka-portal/kafka-portal/internal/audit"
	"github.com/kafka-portal/kafka-portal/internal/config"
	"github.com/kafka-portal/kafka-portal/internal/db/repositories"
	"github.com/kafka-portal/kafka-portal/internal/kafka"
	"github.com/kafka-portal/kafka-portal/internal/ldap"
	"github.com/kafka-portal/kafka-portal/internal/middleware"
	"github.com/kafka-portal/kafka-portal/internal/services"
)

// BackgroundServices holds references to background resources that must be
// stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
	auditShipper audit.Shipper
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.auditShipper != nil {
		if err := bg.auditShipper.Close(); err != nil {
			slog.Warn("failed to close audit shipper", "error", err)
		}
	}
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB, provisioner kafka.Provisioner, version string) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	settingsRepo := repositories.NewSettingsRepository(db)

	// Wrap *sql.DB with sqlx for the request repository
	sqlxDB := sqlx.NewDb(db, "postgres")
	requestRepo := repositories.NewRequestRepository(sqlxDB)

	// External audit shipping is optional; a config error disables it rather
	// than blocking startup, since Postgres remains the system of record.
	auditShipper, err := audit.NewShipper(cfg.Audit)
	if err != nil {
		slog.Warn("audit shipping disabled", "error", err)
		auditShipper = nil
	}

	// Initialize services
	auditRecorder := services.NewAuditRecorder(auditRepo, auditShipper)
	requestService := services.NewRequestService(requestRepo, auditRecorder, provisioner)
	directory := ldap.NewDirectory(cfg.LDAP)
	loginService := services.NewLoginService(userRepo, auditRecorder, directory, cfg.Auth.TokenTTL)
	bootstrapService := services.NewBootstrapService(userRepo, settingsRepo, auditRecorder)

	// Initialize handlers
	authHandlers := NewAuthHandlers(loginService, bootstrapService)
	requestHandlers := NewRequestHandlers(requestService)
	adminHandlers := NewAdminHandlers(requestService, auditRecorder, provisioner)
	healthHandlers := NewHealthHandlers(db, provisioner, version)

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Probes and version
	router.GET("/healthz", healthHandlers.LivenessHandler())
	router.GET("/readyz", healthHandlers.ReadinessHandler())
	router.GET("/version", versionHandler(version))

	// Initialize rate limiters
	loginRateLimiter := middleware.NewRateLimiter(
		middleware.LoginRateLimitConfig(cfg.Security.RateLimiting.LoginAttemptsPerMinute))
	generalRateLimiter := middleware.NewRateLimiter(generalRateLimitConfig(cfg))

	apiV1 := router.Group("/api/v1")
	{
		// Login is public but strictly rate limited per client IP
		loginGroup := apiV1.Group("/auth")
		loginGroup.Use(middleware.RateLimitMiddleware(loginRateLimiter))
		{
			loginGroup.POST("/login", authHandlers.LoginHandler())
		}

		// Everything else requires a valid session token
		protected := apiV1.Group("")
		protected.Use(middleware.RateLimitMiddleware(generalRateLimiter))
		protected.Use(middleware.AuthMiddleware(userRepo))
		{
			protected.GET("/users/me", authHandlers.MeHandler())
			protected.POST("/auth/logout", authHandlers.LogoutHandler())
			protected.POST("/bootstrap/claim-admin", authHandlers.ClaimAdminHandler())

			protected.POST("/requests/topic", requestHandlers.SubmitTopicHandler())
			protected.POST("/requests/acl", requestHandlers.SubmitACLHandler())
			protected.GET("/requests", requestHandlers.ListHandler())
			protected.GET("/requests/:id", requestHandlers.GetHandler())
			protected.POST("/requests/:id/cancel", requestHandlers.CancelHandler())

			// Admin review queue, audit trail, and broker inspection
			adminGroup := protected.Group("/admin")
			adminGroup.Use(middleware.RequireAdmin())
			{
				adminGroup.GET("/requests", adminHandlers.ListRequestsHandler())
				adminGroup.GET("/requests/pending", adminHandlers.ListPendingHandler())
				adminGroup.PATCH("/requests/:id/approve", adminHandlers.ApproveHandler())
				adminGroup.PATCH("/requests/:id/reject", adminHandlers.RejectHandler())
				adminGroup.GET("/audit", adminHandlers.AuditHandler())
				adminGroup.GET("/kafka/topics", adminHandlers.TopicsHandler())
				adminGroup.GET("/kafka/acls", adminHandlers.ACLsHandler())
				adminGroup.GET("/kafka/cluster", adminHandlers.ClusterHandler())
			}
		}
	}

	bg := &BackgroundServices{
		rateLimiters: []*middleware.RateLimiter{loginRateLimiter, generalRateLimiter},
		auditShipper: auditShipper,
	}

	return router, bg
}

// generalRateLimitConfig builds the authenticated-surface limits from config,
// falling back to the defaults when rate limiting is not configured.
func generalRateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	limits := middleware.DefaultRateLimitConfig()
	if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
		limits.RequestsPerMinute = cfg.Security.RateLimiting.RequestsPerMinute
	}
	if cfg.Security.RateLimiting.Burst > 0 {
		limits.BurstSize = cfg.Security.RateLimiting.Burst
	}
	return limits
}

func versionHandler(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": version})
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
