package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gitpix/gitpix/internal/capacity"
	"github.com/gitpix/gitpix/internal/settings"
	"github.com/gitpix/gitpix/pkg/types"
	"github.com/rs/zerolog/log"
)

func handleListBackends(registry *capacity.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		backends, err := registry.List(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Msg("failed to list backends")
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   "failed to list repositories",
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: backends})
	}
}

type createBackendRequest struct {
	BaseName string `json:"baseName"`
}

func handleCreateBackend(provisioner *capacity.Provisioner, settingsSvc *settings.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createBackendRequest
		// Body is optional; an empty base falls back to the template.
		_ = c.ShouldBindJSON(&req)

		base := req.BaseName
		if base == "" {
			base = settingsSvc.NameTemplate(c.Request.Context())
		}
		if base == "" {
			base = "images-repo"
		}

		backend, err := provisioner.Provision(c.Request.Context(), base, true)
		if err != nil {
			log.Error().Err(err).Str("base", base).Msg("failed to create backend")

			var cfgErr *capacity.ConfigurationError
			if errors.As(err, &cfgErr) {
				c.JSON(http.StatusInternalServerError, types.APIResponse{
					Success: false,
					Error:   "server configuration error: " + cfgErr.Missing,
				})
				return
			}
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   "failed to create repository",
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: backend})
	}
}

type updateStatusRequest struct {
	Status types.BackendStatus `json:"status"`
}

func handleUpdateStatus(registry *capacity.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "invalid repository id",
			})
			return
		}

		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "invalid request body",
			})
			return
		}

		err = registry.UpdateStatus(c.Request.Context(), uint(id), req.Status)
		switch {
		case errors.Is(err, capacity.ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "status must be active, inactive or full",
			})
		case errors.Is(err, capacity.ErrBackendNotFound):
			c.JSON(http.StatusNotFound, types.APIResponse{
				Success: false,
				Error:   "repository not found",
			})
		case err != nil:
			log.Error().Err(err).Uint64("id", id).Msg("failed to update backend status")
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   "failed to update status",
			})
		default:
			c.JSON(http.StatusOK, types.APIResponse{
				Success: true,
				Message: "repository status updated",
			})
		}
	}
}

func handleSyncSize(estimator *capacity.Estimator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "invalid repository id",
			})
			return
		}

		result, err := estimator.Reconcile(c.Request.Context(), uint(id))
		if errors.Is(err, capacity.ErrBackendNotFound) {
			c.JSON(http.StatusNotFound, types.APIResponse{
				Success: false,
				Error:   "repository not found",
			})
			return
		}
		if err != nil {
			log.Error().Err(err).Uint64("id", id).Msg("failed to sync backend size")
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   "failed to sync repository size",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"size":      result.Size,
			"threshold": result.Threshold,
			"isFull":    result.IsFull,
		})
	}
}

func handleSyncAllSizes(estimator *capacity.Estimator) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := estimator.ReconcileAll(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Msg("failed to sync all backend sizes")
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   "failed to sync repository sizes",
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: results})
	}
}

func handleActivate(registry *capacity.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "invalid repository id",
			})
			return
		}

		err = registry.Activate(c.Request.Context(), uint(id))
		if errors.Is(err, capacity.ErrBackendNotFound) {
			c.JSON(http.StatusNotFound, types.APIResponse{
				Success: false,
				Error:   "repository not found",
			})
			return
		}
		if err != nil {
			log.Error().Err(err).Uint64("id", id).Msg("failed to activate backend")
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   "failed to activate repository",
			})
			return
		}

		c.JSON(http.StatusOK, types.APIResponse{
			Success: true,
			Message: "repository activated",
		})
	}
}
