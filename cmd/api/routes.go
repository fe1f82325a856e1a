package main

import (
	"log/slog"
	"net/http"

	"leadgen-platform/internal/config"
	"leadgen-platform/internal/httpapi"
	"leadgen-platform/internal/metrics"
	"leadgen-platform/internal/webhook"
	"leadgen-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
)

// newRouter builds the gin engine and wraps it with CORS.
// Keep this file free of business logic. Routes live in internal/httpapi.
func newRouter(cfg config.Config, log *slog.Logger, h httpapi.Handlers) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(metrics.Middleware())

	httpapi.Register(r, h)

	origins := cfg.App.CORSOrigins
	if len(origins) == 0 && cfg.IsDevelopment() {
		origins = []string{"http://localhost:3000"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id", webhook.SecretHeader},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	})(r)
}
