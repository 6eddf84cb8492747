package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gitpix/gitpix/internal/settings"
	"github.com/gitpix/gitpix/pkg/types"
	"github.com/rs/zerolog/log"
)

func handleGetSettings(settingsSvc *settings.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := settingsSvc.All(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Msg("failed to load settings")
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   "failed to load settings",
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: all})
	}
}

func handleUpdateSettings(settingsSvc *settings.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var values map[string]string
		if err := c.ShouldBindJSON(&values); err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "invalid request body",
			})
			return
		}

		if err := settingsSvc.Update(c.Request.Context(), values); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, settings.ErrInvalidValue) {
				status = http.StatusBadRequest
			}
			c.JSON(status, types.APIResponse{Success: false, Error: err.Error()})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{Success: true, Message: "settings updated"})
	}
}
