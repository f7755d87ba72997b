package main

import (
	"log/slog"
	"net/http"

	"callshield/internal/auth"
	"callshield/internal/backendserver"
	"callshield/internal/httpapi"
	"callshield/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Keep this file free of business logic. Handlers delegate to internal packages.

func newEngine(log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func agentRoutes(log *slog.Logger, h httpapi.Handlers, m *auth.Manager) *gin.Engine {
	r := newEngine(log)
	h.Register(r, auth.RequireAccessToken(m))
	return r
}

func backendRoutes(log *slog.Logger, s *backendserver.Server) *gin.Engine {
	r := newEngine(log)
	s.Routes(r)
	return r
}
