package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gitpix/gitpix/internal/auth"
	"github.com/gitpix/gitpix/internal/capacity"
	"github.com/gitpix/gitpix/internal/settings"
	"github.com/gitpix/gitpix/internal/uploads"
	"github.com/gitpix/gitpix/pkg/config"
	"github.com/rs/zerolog"
)

// services bundles everything the handlers close over.
type services struct {
	auth        *auth.Service
	settings    *settings.Service
	registry    *capacity.Registry
	estimator   *capacity.Estimator
	provisioner *capacity.Provisioner
	uploader    *uploads.Uploader
	manager     *uploads.Manager
}

func setupRouter(cfg *config.Config, svcs *services) *gin.Engine {
	if cfg.Server.Debug || zerolog.GlobalLevel() == zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "gitpix",
			"time":    time.Now().UTC(),
		})
	})

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/login", handleLogin(svcs.auth, cfg))
			authRoutes.POST("/logout", handleLogout(svcs.auth))
		}

		repos := api.Group("/repositories")
		repos.Use(adminMiddleware(svcs.auth))
		{
			repos.GET("", handleListBackends(svcs.registry))
			repos.POST("", handleCreateBackend(svcs.provisioner, svcs.settings))
			repos.POST("/create", handleCreateBackend(svcs.provisioner, svcs.settings))
			repos.PUT("/status/:id", handleUpdateStatus(svcs.registry))
			repos.POST("/sync-size/:id", handleSyncSize(svcs.estimator))
			repos.POST("/sync-all-sizes", handleSyncAllSizes(svcs.estimator))
			repos.POST("/:id/activate", handleActivate(svcs.registry))
		}

		settingsRoutes := api.Group("/settings")
		{
			settingsRoutes.GET("", handleGetSettings(svcs.settings))
			settingsRoutes.POST("", adminMiddleware(svcs.auth), handleUpdateSettings(svcs.settings))
		}

		// The upload surface is a single endpoint dispatching on
		// ?action=.
		api.POST("/upload", uploadGate(svcs.auth, svcs.settings), handleUpload(svcs, cfg))
	}

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
