package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"callshield/internal/auth"
	"callshield/internal/calls"
	"callshield/internal/detection"
	"callshield/internal/history"
	"callshield/internal/rbac"
	"callshield/internal/routing"
	"callshield/internal/settings"
	"callshield/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups the agent control API handlers for dependency injection.
// Keep these thin: parse/validate input, call the orchestrator, return JSON.
type Handlers struct {
	DeviceID string
	Routing  *routing.Orchestrator
	History  *history.Service
	// Feed is nil when the agent uses a source that is not push-driven.
	Feed *detection.Feed
}

// Register mounts /v1 on r. authMW must verify the access token.
func (h Handlers) Register(r gin.IRouter, authMW gin.HandlerFunc) {
	v1 := r.Group("/v1")
	v1.Use(authMW, rbac.RequireDevice(h.DeviceID))

	read := v1.Group("")
	read.Use(rbac.RequireRole(rbac.RoleViewer))
	{
		read.GET("/status", h.Status)
		read.GET("/config", h.GetConfig)
		read.GET("/stats", h.Stats)
		read.POST("/backend/test", h.TestBackend)
		read.GET("/backend/routing-config", h.BackendRoutingConfig)
		read.GET("/history", h.ListHistory)
	}

	write := v1.Group("")
	write.Use(rbac.RequireRole(rbac.RoleOperator))
	{
		write.PATCH("/config", h.PatchConfig)
		write.POST("/routing/start", h.Start)
		write.POST("/routing/stop", h.Stop)
		write.POST("/stats/reset", h.ResetStats)
		write.POST("/events", h.InjectEvent)
	}
}

func (h Handlers) Status(c *gin.Context) {
	cfg, err := h.Routing.Configuration(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "settings unavailable"})
		return
	}
	subject, _ := auth.Subject(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"running":       h.Routing.Running(),
		"device_id":     h.DeviceID,
		"subject":       subject,
		"pending_calls": h.Routing.Stats().Pending(),
		"config":        cfg.Masked(),
	})
}

func (h Handlers) GetConfig(c *gin.Context) {
	cfg, err := h.Routing.Configuration(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "settings unavailable"})
		return
	}
	c.JSON(http.StatusOK, cfg.Masked())
}

func (h Handlers) PatchConfig(c *gin.Context) {
	var p settings.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cfg, err := h.Routing.UpdateConfiguration(c.Request.Context(), p)
	if err != nil {
		if errors.Is(err, settings.ErrInvalidConfig) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.FromGin(c).Error("config update failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "config update failed"})
		return
	}
	c.JSON(http.StatusOK, cfg.Masked())
}

func (h Handlers) Start(c *gin.Context) {
	err := h.Routing.Start(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"running": true})
	case errors.Is(err, routing.ErrDisabled),
		errors.Is(err, routing.ErrUnsupportedPlatform),
		errors.Is(err, routing.ErrPermissionDenied):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error(), "running": false})
	default:
		logger.FromGin(c).Error("routing start failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "running": false})
	}
}

func (h Handlers) Stop(c *gin.Context) {
	h.Routing.Stop()
	c.JSON(http.StatusOK, gin.H{"running": false})
}

func (h Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Routing.Stats())
}

func (h Handlers) ResetStats(c *gin.Context) {
	h.Routing.ResetStats()
	c.JSON(http.StatusOK, h.Routing.Stats())
}

func (h Handlers) TestBackend(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reachable": h.Routing.TestBackendConnection(c.Request.Context())})
}

func (h Handlers) BackendRoutingConfig(c *gin.Context) {
	blob, ok := h.Routing.RoutingConfig(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "backend routing config unavailable"})
		return
	}
	c.JSON(http.StatusOK, blob)
}

// ListHistory returns recent terminal actions, newest first.
func (h Handlers) ListHistory(c *gin.Context) {
	if h.History == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "history not configured"})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	entries, err := h.History.Recent(c.Request.Context(), limit)
	if err != nil {
		logger.FromGin(c).Error("history lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (h Handlers) InjectEvent(c *gin.Context) {
	if h.Feed == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "event source does not accept injected events"})
		return
	}
	var ev calls.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Feed.Emit(c.Request.Context(), ev); err != nil {
		switch {
		case errors.Is(err, detection.ErrInvalidEvent):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, detection.ErrNotRunning):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call routing is not running"})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusAccepted, h.Routing.Stats())
}
