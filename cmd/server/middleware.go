package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gitpix/gitpix/internal/auth"
	"github.com/gitpix/gitpix/internal/settings"
	"github.com/gitpix/gitpix/pkg/types"
)

// isAuthenticated accepts either the session_id cookie or a bearer JWT.
func isAuthenticated(c *gin.Context, authSvc *auth.Service) bool {
	if cookie, err := c.Cookie("session_id"); err == nil && cookie != "" {
		if authSvc.ValidateSession(c.Request.Context(), cookie) {
			return true
		}
	}

	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return authSvc.ValidateToken(c.Request.Context(), token)
	}
	return false
}

// adminMiddleware rejects unauthenticated requests.
func adminMiddleware(authSvc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAuthenticated(c, authSvc) {
			c.JSON(http.StatusForbidden, types.APIResponse{
				Success: false,
				Error:   "admin session required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// uploadGate admits admins always, and guests only when the guest-upload
// setting is on.
func uploadGate(authSvc *auth.Service, settingsSvc *settings.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isAuthenticated(c, authSvc) {
			c.Next()
			return
		}
		if settingsSvc.GuestUploadAllowed(c.Request.Context()) {
			c.Next()
			return
		}
		c.JSON(http.StatusForbidden, types.APIResponse{
			Success: false,
			Error:   "guest upload is disabled",
		})
		c.Abort()
	}
}
