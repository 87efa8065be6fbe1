package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/celery8911/InnerLedger/internal/app"
	"github.com/celery8911/InnerLedger/internal/config"
	"github.com/celery8911/InnerLedger/internal/handlers"
	"github.com/celery8911/InnerLedger/internal/middleware"
)

// corsMiddleware allow-list from config; no origins configured means any origin
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", "Idempotency-Key", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Idempotent-Replayed", middleware.RequestIDHeader},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           time.Hour,
	}
	if cfg.MaxAge > 0 {
		corsCfg.MaxAge = time.Duration(cfg.MaxAge) * time.Second
	}

	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		// browsers refuse credentials with a wildcard origin
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = origins
	}
	return cors.New(corsCfg)
}

// SetupRouter wires every route of the relay backend onto a gin engine.
func SetupRouter(c *app.ServiceContainer) *gin.Engine {
	cfg := c.Config
	logger := c.Logger

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(corsMiddleware(cfg.CORS))

	if len(cfg.Admin.AllowedIPs) > 0 {
		logger.WithFields(logrus.Fields{
			"allowed_ips": cfg.Admin.AllowedIPs,
			"count":       len(cfg.Admin.AllowedIPs),
		}).Info("Admin API IP whitelist configured")
	} else {
		logger.Info("No admin.allowedIPs configured, using localhost-only mode")
	}
	localhostOnly := middleware.NewLocalhostOnly(logger, cfg.Admin.AllowedIPs)
	authMiddleware := middleware.NewAuthMiddleware(c.WalletAuth, logger)
	adminAuthMiddleware := middleware.NewAdminAuthMiddleware(c.AdminAuth, logger)

	// ============ Health & Metrics ============
	health := handlers.NewHealthHandler("innerledger-relayer", healthProbes(c))
	r.GET("/ping", health.PingHandler)
	r.GET("/health", health.HealthHandler)
	r.GET("/metrics", localhostOnly.Restrict(), gin.WrapH(promhttp.Handler()))

	// ============ WebSocket ============
	ws := handlers.NewWebSocketHandler(c.Push)
	r.GET("/ws", ws.HandleWebSocket)

	api := r.Group("/api")
	{
		// ============ Relay ============
		var status handlers.TxStatusReader
		if c.Watcher != nil {
			status = c.Watcher
		}
		relay := handlers.NewRelayHandler(c.Relay, status, c.Registry, cfg.Chain.ChainID,
			time.Duration(cfg.Chain.WriteTimeout)*time.Second, logger)
		relayGroup := api.Group("/relay")
		relayGroup.Use(c.IPLimiter.Middleware(), authMiddleware.OptionalAuth())
		{
			relayGroup.POST("", relay.RelayHandler)
			relayGroup.POST("/submit", relay.RelayHandler)
		}
		api.GET("/relay/tx/:hash", relay.TxStatusHandler)

		// ============ Forwarder ============
		var reader handlers.ForwarderReader
		if c.Forwarder != nil {
			reader = c.Forwarder
		}
		forwarder := handlers.NewForwarderHandler(reader, c.Domain, time.Duration(cfg.Chain.ReadTimeout)*time.Second, logger)
		api.GET("/forwarder/nonce/:address", forwarder.NonceHandler)
		api.GET("/forwarder/domain", forwarder.DomainHandler)

		// ============ Journey ============
		journey := handlers.NewJourneyHandler(c.Journeys, logger)
		api.GET("/journey/:address", journey.JourneyHandler)
		api.GET("/records/:address", journey.RecordsHandler)

		// ============ AI ============
		ai := handlers.NewAIHandler(c.AI, logger)
		api.POST("/ai/understand", c.IPLimiter.Middleware(), ai.UnderstandHandler)

		// ============ Wallet auth ============
		authHandler := handlers.NewAuthHandler(c.WalletAuth, logger)
		auth := api.Group("/auth")
		{
			auth.GET("/nonce", authHandler.GenerateNonceHandler)
			auth.POST("/login", authHandler.AuthenticateHandler)
			auth.GET("/me", authMiddleware.RequireAuth(), authHandler.MeHandler)
		}

		// ============ Admin ============
		adminAuth := handlers.NewAdminAuthHandler(c.AdminAuth, logger)
		api.POST("/admin/login", localhostOnly.Restrict(), adminAuth.AdminLoginHandler)

		admin := handlers.NewAdminHandler(c.Relay, c.RelayerAddress(), cfg.Chain.ChainID, c.Monitoring, c.TxRepo, logger)
		adminGroup := api.Group("/admin")
		adminGroup.Use(localhostOnly.Restrict(), adminAuthMiddleware.RequireAdminAuth())
		{
			adminGroup.GET("/relayer", admin.RelayerInfoHandler)
			adminGroup.DELETE("/ratelimit/:address", admin.ResetRateLimitHandler)
			adminGroup.GET("/relay/stats", admin.RelayStatsHandler)
			adminGroup.GET("/relay/sender/:address", admin.SenderHistoryHandler)
		}
	}

	r.NoRoute(func(ctx *gin.Context) {
		path := ctx.Request.URL.Path
		if strings.HasPrefix(path, "/api") {
			ctx.JSON(http.StatusNotFound, gin.H{
				"error": "API endpoint not found",
				"path":  path,
			})
			return
		}
		ctx.JSON(http.StatusNotFound, gin.H{
			"error": "Endpoint not found",
			"path":  path,
		})
	})

	return r
}

func healthProbes(c *app.ServiceContainer) map[string]handlers.HealthProbe {
	probes := map[string]handlers.HealthProbe{
		"relayer": c.Relay.Configured,
	}
	if c.DB != nil {
		probes["database"] = func() bool {
			sqlDB, err := c.DB.DB()
			return err == nil && sqlDB.Ping() == nil
		}
	}
	if c.NATS != nil {
		probes["nats"] = c.NATS.IsConnected
	}
	if c.KMS != nil {
		probes["kms"] = func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return c.KMS.HealthCheck(ctx) == nil
		}
	}
	if c.Redis != nil {
		probes["redis"] = func() bool {
			return c.Redis.Ping(context.Background()).Err() == nil
		}
	}
	return probes
}
