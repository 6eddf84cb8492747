package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gitpix/gitpix/internal/auth"
	"github.com/gitpix/gitpix/pkg/config"
	"github.com/gitpix/gitpix/pkg/types"
	"github.com/rs/zerolog/log"
)

func handleLogin(authSvc *auth.Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "password is required",
			})
			return
		}

		creds, err := authSvc.Login(c.Request.Context(), req.Password)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusForbidden, types.APIResponse{
				Success: false,
				Error:   "invalid password",
			})
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("login failed")
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   "login failed",
			})
			return
		}

		maxAge := int(cfg.Auth.SessionTTL.Seconds())
		c.SetCookie("session_id", creds.SessionID, maxAge, "/", "", false, true)
		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: creds})
	}
}

func handleLogout(authSvc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cookie, err := c.Cookie("session_id"); err == nil && cookie != "" {
			if err := authSvc.Logout(c.Request.Context(), cookie); err != nil {
				log.Warn().Err(err).Msg("failed to remove session")
			}
		}

		c.SetCookie("session_id", "", -1, "/", "", false, true)
		c.JSON(http.StatusOK, types.APIResponse{Success: true})
	}
}
