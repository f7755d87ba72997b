package rbac

import (
	"net/http"

	"callshield/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireDevice enforces that the token was issued for this agent's device.
func RequireDevice(deviceID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		did, err := auth.DeviceID(c.Request.Context())
		if err != nil || did == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "device_id required"})
			return
		}
		if did != deviceID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token issued for another device"})
			return
		}
		c.Next()
	}
}

// RequireRole allows access if the caller's role is at least required.
// operator satisfies viewer; unknown roles satisfy nothing.
func RequireRole(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if !Satisfies(role, required) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
