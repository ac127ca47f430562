package handler

import (
	"net/http"
	"strings"

	"github.com/Sp1ker2/rat/internal/auth"
	"github.com/gin-gonic/gin"
)

const (
	ctxAdminKey  = "admin_username"
	ctxDeviceKey = "device"
)

// AdminAuth requires a valid Bearer admin session token.
func AdminAuth(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		username := verifier.DecodeAdminToken(token)
		if username == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(ctxAdminKey, username)
		c.Next()
	}
}

// DeviceAuth requires a device token in the X-Device-Token header or the
// token query parameter and attaches the resolved profile to the context.
func DeviceAuth(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Device-Token")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "device token required"})
			return
		}
		device, err := verifier.VerifyDeviceToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid device token"})
			return
		}
		c.Set(ctxDeviceKey, device)
		c.Next()
	}
}
