package api

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/wordrush/backend/internal/api/handlers"
	"github.com/wordrush/backend/internal/config"
	"github.com/wordrush/backend/internal/middleware"
	"github.com/wordrush/backend/internal/ws"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, db *sqlx.DB, cfg *config.Config, gateway *ws.Gateway) {
	router.Use(middleware.CORSMiddleware(cfg))

	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Next()
		})
		log.Println("[DEV MODE] No-cache headers enabled for all routes")
	}

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)

		auth := v1.Group("/auth")
		{
			auth.POST("/register", handlers.Register(db, cfg))
			auth.POST("/login", handlers.Login(db, cfg))
		}

		v1.GET("/leaderboard", handlers.Leaderboard(db))

		authed := v1.Group("", middleware.RequireAuth(cfg.AuthTokenSecret))
		{
			authed.GET("/users/me", handlers.Me(db))
			authed.GET("/matches/recent", handlers.RecentMatches(db))
		}

		// Realtime gateway; the token rides in the query string.
		v1.GET("/ws", gateway.Handle)
	}
}
