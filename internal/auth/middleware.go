package auth

import (
	"net/http"
	"strings"
	"time"

	"callshield/pkg/logger"

	"github.com/gin-gonic/gin"
)

const bearerPrefix = "Bearer "

// RequireAccessToken verifies the control API token and stores the caller's
// Identity on the request context. The request logger gains subject,
// token_device_id and role so every later log line names the operator.
// Device and role checks belong to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := m.Verify(tok, time.Now())
		if err != nil {
			logger.FromGin(c).Warn("control api token rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		id := Identity{Subject: claims.Subject, DeviceID: claims.DeviceID, Role: claims.Role}
		scoped := logger.FromGin(c).With(
			"subject", id.Subject,
			"token_device_id", id.DeviceID,
			"role", id.Role,
		)
		logger.SetGin(c, scoped)

		ctx := logger.With(WithIdentity(c.Request.Context(), id), scoped)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	raw := strings.TrimSpace(header)
	if !strings.HasPrefix(raw, bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
	return tok, tok != ""
}
