package app

import (
	"log/slog"
	"net/http"

	"identity-link/internal/auth/handler"
	"identity-link/internal/logger"
	"identity-link/internal/middleware"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"
)

func setupHTTP(svc *Services) *gin.Engine {
	authHandler := handler.NewHandler(svc.Linkers, AdminTypes()...)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(sloggin.New(slog.Default().WithGroup("http")))
	router.Use(gin.Recovery())

	// ----------------------------
	// Public Routes
	// ----------------------------

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ----------------------------
	// Protected API Routes
	// ----------------------------

	api := router.Group("/api")
	api.Use(middleware.GinRequireAuth(svc.Authenticator))
	authHandler.RegisterRoutes(api)

	for _, r := range router.Routes() {
		logger.Debug("route registered", map[string]any{
			"method": r.Method,
			"path":   r.Path,
		})
	}

	return router
}
