// Package router builds the Gin engine from the application container,
// wiring global middleware, health checks and module route registration.
package router

import (
	"context"
	"net/http"
	"time"

	apphttp "hireline_backend/internal/http"
	"hireline_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// New assembles the HTTP engine: global middleware, health endpoint,
// versioned route groups and per-module route registration.
func New(app *apphttp.App) *gin.Engine {
	if app.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(cors.New(corsConfig(app)))

	limiter := httpkit.NewIPRateLimiter(rate.Limit(app.Config.GetRateLimitRPS()), app.Config.GetRateLimitBurst(), app.Logger)
	engine.Use(limiter.RateLimit())

	engine.GET("/healthz", healthHandler(app))

	v1 := engine.Group("/api/v1")

	authMiddleware := httpkit.AuthRequired(app.Config)
	protected := v1.Group("")
	protected.Use(authMiddleware)

	admin := v1.Group("/admin")
	admin.Use(authMiddleware, httpkit.RequireRole("admin"))

	webhook := v1.Group("/webhooks")

	routerCtx := &apphttp.RouterContext{
		Engine:              engine,
		V1:                  v1,
		Protected:           protected,
		Admin:               admin,
		Webhook:             webhook,
		Config:              app.Config,
		AuthMiddleware:      authMiddleware,
		DispatchRateLimiter: httpkit.NewDispatchRateLimiter(app.Logger),
	}

	for _, module := range app.Modules {
		module.RegisterRoutes(routerCtx)
		app.Logger.Info("registered module routes", "module", module.Name())
	}

	return engine
}

func corsConfig(app *apphttp.App) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: app.Config.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}

	if app.Config.GetCORSAllowAll() {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = app.Config.GetCORSOrigins()
	}
	return cfg
}

func healthHandler(app *apphttp.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := app.Health.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  "database unreachable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
