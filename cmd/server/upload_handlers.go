package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gitpix/gitpix/internal/capacity"
	"github.com/gitpix/gitpix/internal/uploads"
	"github.com/gitpix/gitpix/pkg/config"
	"github.com/gitpix/gitpix/pkg/types"
	"github.com/rs/zerolog/log"
)

// handleUpload dispatches the session lifecycle and direct uploads on
// the ?action= query parameter, so clients talk to a single endpoint.
func handleUpload(svcs *services, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Opportunistic expiry enforcement on every request into the
		// upload surface.
		svcs.manager.Sweep(c.Request.Context())

		switch c.Query("action") {
		case "create-session":
			handleCreateSession(c, svcs.manager)
		case "chunk":
			handleChunk(c, svcs.manager)
		case "complete":
			handleComplete(c, svcs.manager, cfg)
		case "cancel":
			handleCancel(c, svcs.manager)
		case "upload":
			handleDirectUpload(c, svcs.uploader, cfg)
		default:
			c.JSON(http.StatusBadRequest, types.APIResponse{
				Success: false,
				Error:   "invalid action, expected create-session, chunk, complete, cancel or upload",
			})
		}
	}
}

type createSessionRequest struct {
	Filename    string `json:"filename" binding:"required"`
	TotalSize   int64  `json:"totalSize"`
	TotalChunks int    `json:"totalChunks" binding:"required"`
}

func handleCreateSession(c *gin.Context, manager *uploads.Manager) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.APIResponse{
			Success: false,
			Error:   "filename and totalChunks are required",
		})
		return
	}

	id, err := manager.CreateSession(c.Request.Context(), req.Filename, req.TotalSize, req.TotalChunks)
	if err != nil {
		log.Error().Err(err).Msg("failed to create upload session")
		c.JSON(http.StatusInternalServerError, types.APIResponse{
			Success: false,
			Error:   "failed to create upload session",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "sessionId": id})
}

func handleChunk(c *gin.Context, manager *uploads.Manager) {
	sessionID := c.PostForm("sessionId")
	indexStr := c.PostForm("chunkIndex")
	file, err := c.FormFile("chunk")
	if sessionID == "" || err != nil {
		c.JSON(http.StatusBadRequest, types.APIResponse{
			Success: false,
			Error:   "sessionId and chunk are required",
		})
		return
	}

	index, err := strconv.Atoi(indexStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.APIResponse{
			Success: false,
			Error:   "invalid chunk index",
		})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, types.APIResponse{
			Success: false,
			Error:   "failed to read chunk",
		})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.APIResponse{
			Success: false,
			Error:   "failed to read chunk",
		})
		return
	}

	receipt, err := manager.ReceiveChunk(c.Request.Context(), sessionID, index, data)
	if err != nil {
		status, msg := uploadErrorResponse(err)
		c.JSON(status, types.APIResponse{Success: false, Error: msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"uploadedChunks": receipt.ReceivedCount,
		"totalChunks":    receipt.TotalChunks,
	})
}

type sessionRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

func handleComplete(c *gin.Context, manager *uploads.Manager, cfg *config.Config) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.APIResponse{
			Success: false,
			Error:   "sessionId is required",
		})
		return
	}

	result, err := manager.CompleteSession(c.Request.Context(), req.SessionID)
	if err != nil {
		log.Error().Err(err).Str("session", req.SessionID).Msg("failed to complete upload")
		status, msg := uploadErrorResponse(err)
		if cfg.Server.Debug {
			msg = msg + ": " + err.Error()
		}
		c.JSON(status, types.APIResponse{Success: false, Error: msg})
		return
	}

	c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: result})
}

func handleCancel(c *gin.Context, manager *uploads.Manager) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.APIResponse{
			Success: false,
			Error:   "sessionId is required",
		})
		return
	}

	if err := manager.CancelSession(c.Request.Context(), req.SessionID); err != nil {
		log.Error().Err(err).Str("session", req.SessionID).Msg("failed to cancel upload")
		c.JSON(http.StatusInternalServerError, types.APIResponse{
			Success: false,
			Error:   "failed to cancel upload",
		})
		return
	}

	c.JSON(http.StatusOK, types.APIResponse{Success: true})
}

func handleDirectUpload(c *gin.Context, uploader *uploads.Uploader, cfg *config.Config) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, types.APIResponse{
			Success: false,
			Error:   "no file in request",
		})
		return
	}
	skipDeploy := c.PostForm("skipDeploy") == "true"

	mimeType := file.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		c.JSON(http.StatusBadRequest, types.APIResponse{
			Success: false,
			Error:   "only image files are accepted",
		})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, types.APIResponse{
			Success: false,
			Error:   "failed to read file",
		})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.APIResponse{
			Success: false,
			Error:   "failed to read file",
		})
		return
	}

	result, err := uploader.Upload(c.Request.Context(), file.Filename, mimeType, data, skipDeploy)
	if err != nil {
		log.Error().Err(err).Str("file", file.Filename).Msg("direct upload failed")
		status, msg := uploadErrorResponse(err)
		if cfg.Server.Debug {
			msg = msg + ": " + err.Error()
		}
		c.JSON(status, types.APIResponse{Success: false, Error: msg})
		return
	}

	c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: result})
}

// uploadErrorResponse maps write-path errors to HTTP statuses:
// conflicts are 409, client mistakes 400, capacity and provisioning
// failures 500.
func uploadErrorResponse(err error) (int, string) {
	var capErr *capacity.CapacityError
	var cfgErr *capacity.ConfigurationError

	switch {
	case errors.Is(err, uploads.ErrFileExists):
		return http.StatusConflict, "file already exists, rename and retry"
	case errors.Is(err, uploads.ErrSessionNotFound):
		return http.StatusBadRequest, "invalid session id"
	case errors.Is(err, uploads.ErrIncompleteUpload):
		return http.StatusBadRequest, "upload is incomplete"
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError, "server configuration error"
	case errors.As(err, &capErr):
		return http.StatusInternalServerError, "failed to allocate storage space"
	default:
		return http.StatusInternalServerError, "upload failed"
	}
}
