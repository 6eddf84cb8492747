package uploads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gitpix/gitpix/internal/blobstore"
	"github.com/gitpix/gitpix/internal/capacity"
	"github.com/gitpix/gitpix/internal/common"
	"github.com/gitpix/gitpix/internal/deploy"
	"github.com/gitpix/gitpix/internal/settings"
	"github.com/gitpix/gitpix/pkg/config"
	"github.com/gitpix/gitpix/pkg/types"
	"github.com/gitpix/gitpix/pkg/utils"
	"github.com/rs/zerolog/log"
)

// ErrFileExists is returned when the target path already holds a file.
// Surfaced to the client as a 409 so they can rename and retry.
var ErrFileExists = errors.New("file already exists")

// Uploader is the write path shared by direct and chunked uploads:
// allocate a backend, write the file, settle the bookkeeping.
type Uploader struct {
	db       *common.Database
	router   *capacity.Router
	registry *capacity.Registry
	settings *settings.Service
	store    blobstore.Factory
	deploy   *deploy.Service
	github   *config.GitHubConfig
	siteURL  string
}

// NewUploader creates the upload write path.
func NewUploader(db *common.Database, router *capacity.Router, registry *capacity.Registry,
	settingsSvc *settings.Service, store blobstore.Factory, deploySvc *deploy.Service,
	github *config.GitHubConfig, siteURL string) *Uploader {
	return &Uploader{
		db:       db,
		router:   router,
		registry: registry,
		settings: settingsSvc,
		store:    store,
		deploy:   deploySvc,
		github:   github,
		siteURL:  siteURL,
	}
}

func (u *Uploader) token(b *types.Backend) string {
	if b.Token != "" {
		return b.Token
	}
	return u.github.Token
}

// Upload writes one file to an allocated backend and returns its public
// link formats. skipDeploy suppresses the deploy-hook trigger, used by
// batch clients that deploy once after the last file.
func (u *Uploader) Upload(ctx context.Context, filename, mimeType string, data []byte, skipDeploy bool) (*types.UploadResult, error) {
	size := int64(len(data))

	allocation, err := u.router.Allocate(ctx, size)
	if err != nil {
		return nil, err
	}
	backend := allocation.Backend

	now := time.Now()
	path := utils.ImagePath(now, filename)
	client := u.store(u.token(backend))

	// An existing file at the target path is a hard conflict. Any error
	// other than "not found" on the check is logged and the write is
	// attempted anyway.
	_, _, err = client.GetFile(ctx, backend.Owner, backend.Name, path, u.github.Branch)
	if err == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileExists, filename)
	}
	if !errors.Is(err, blobstore.ErrNotFound) {
		log.Warn().Err(err).Str("path", path).Msg("existence check failed, attempting write")
	}

	message := fmt.Sprintf("Upload %s (%s)", filename, utils.DatePath(now))
	result, err := client.PutFile(ctx, backend.Owner, backend.Name, path, u.github.Branch, message, data)
	if err != nil {
		return nil, fmt.Errorf("failed to store %s on backend %s: %w", filename, backend.Name, err)
	}

	log.Info().Str("file", filename).Str("backend", backend.Name).
		Int64("size", size).Str("sha", result.SHA).Msg("file uploaded")

	u.settle(ctx, backend, filename, mimeType, path, result.SHA, size, now)

	if !skipDeploy {
		if results := u.deploy.TriggerAll(ctx); len(results) > 0 {
			log.Debug().Int("hooks", len(results)).Msg("deploy hooks triggered after upload")
		}
	}

	url, markdown, html, bbcode := utils.LinkFormats(u.siteURL, now, filename)
	return &types.UploadResult{URL: url, Markdown: markdown, HTML: html, BBCode: bbcode}, nil
}

// settle applies post-write bookkeeping: size estimate, the image row,
// and a threshold demotion when the write pushed the backend over. All
// advisory, none of it can fail the upload.
func (u *Uploader) settle(ctx context.Context, backend *types.Backend, filename, mimeType, path, sha string, size int64, now time.Time) {
	if err := u.registry.AdjustSizeEstimate(ctx, backend.ID, size); err != nil {
		log.Error().Err(err).Str("backend", backend.Name).Msg("failed to adjust size estimate")
	}

	image := &types.Image{
		Filename:  filename,
		Size:      size,
		MimeType:  mimeType,
		Path:      path,
		SHA:       sha,
		BackendID: backend.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.db.WithContext(ctx).Create(image).Error; err != nil {
		log.Error().Err(err).Str("file", filename).Msg("failed to record image row")
	}

	updated, err := u.registry.GetByID(ctx, backend.ID)
	if err != nil {
		return
	}
	threshold := u.settings.Threshold(ctx)
	if updated.SizeEstimate >= threshold && updated.Status == types.BackendActive {
		if err := u.registry.UpdateStatus(ctx, backend.ID, types.BackendInactive); err != nil {
			log.Error().Err(err).Str("backend", backend.Name).Msg("failed to demote full backend")
			return
		}
		log.Info().Str("backend", backend.Name).Int64("size", updated.SizeEstimate).
			Msg("backend crossed threshold after upload, demoted")
	}
}
