package capacity

import (
	"context"

	"github.com/gitpix/gitpix/internal/blobstore"
	"github.com/gitpix/gitpix/internal/settings"
	"github.com/gitpix/gitpix/pkg/config"
	"github.com/gitpix/gitpix/pkg/types"
	"github.com/rs/zerolog/log"
)

// Estimator reconciles locally tracked backend sizes against the
// authoritative size reported by the blob store. Reconciliation is
// on-demand only; there is no background poller.
type Estimator struct {
	registry *Registry
	settings *settings.Service
	store    blobstore.Factory
	github   *config.GitHubConfig
}

// NewEstimator creates a capacity estimator.
func NewEstimator(registry *Registry, settingsSvc *settings.Service, store blobstore.Factory, github *config.GitHubConfig) *Estimator {
	return &Estimator{
		registry: registry,
		settings: settingsSvc,
		store:    store,
		github:   github,
	}
}

// token resolves the credential for a backend, falling back to the
// process-wide default.
func (e *Estimator) token(b *types.Backend) string {
	if b.Token != "" {
		return b.Token
	}
	return e.github.Token
}

// FetchAuthoritativeSize asks the blob store for a backend's true stored
// size. A remote failure is soft: it is logged and 0 is returned, never
// an error, because reconciliation is advisory bookkeeping.
func (e *Estimator) FetchAuthoritativeSize(ctx context.Context, b *types.Backend) int64 {
	owner := b.Owner
	if owner == "" {
		owner = e.github.Owner
	}

	size, err := e.store(e.token(b)).GetRepoSize(ctx, owner, b.Name)
	if err != nil {
		log.Warn().Err(err).Str("backend", b.Name).
			Msg("failed to fetch authoritative backend size")
		return 0
	}
	return size
}

// Reconcile overwrites a backend's size estimate with the authoritative
// value and flips its status across the threshold: at or above ⇒ full,
// below while marked full ⇒ active. No other transitions happen here.
func (e *Estimator) Reconcile(ctx context.Context, id uint) (*types.ReconcileResult, error) {
	backend, err := e.registry.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	size := e.FetchAuthoritativeSize(ctx, backend)
	if err := e.registry.SetSizeEstimate(ctx, id, size); err != nil {
		return nil, err
	}

	threshold := e.settings.Threshold(ctx)
	isFull := size >= threshold
	status := backend.Status

	switch {
	case isFull && backend.Status != types.BackendFull:
		if err := e.registry.UpdateStatus(ctx, id, types.BackendFull); err != nil {
			return nil, err
		}
		status = types.BackendFull
		log.Info().Str("backend", backend.Name).Int64("size", size).
			Int64("threshold", threshold).Msg("backend reached size threshold, marked full")
	case !isFull && backend.Status == types.BackendFull:
		if err := e.registry.UpdateStatus(ctx, id, types.BackendActive); err != nil {
			return nil, err
		}
		status = types.BackendActive
		log.Info().Str("backend", backend.Name).Int64("size", size).
			Int64("threshold", threshold).Msg("backend back under threshold, marked active")
	}

	return &types.ReconcileResult{
		BackendID: backend.ID,
		Name:      backend.Name,
		Size:      size,
		Threshold: threshold,
		IsFull:    isFull,
		Status:    status,
	}, nil
}

// ReconcileAll syncs every registered backend and returns per-backend
// results. Individual failures are reported in place, not fatal to the
// sweep.
func (e *Estimator) ReconcileAll(ctx context.Context) ([]types.ReconcileResult, error) {
	backends, err := e.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]types.ReconcileResult, 0, len(backends))
	for _, b := range backends {
		res, err := e.Reconcile(ctx, b.ID)
		if err != nil {
			log.Error().Err(err).Str("backend", b.Name).Msg("failed to reconcile backend")
			results = append(results, types.ReconcileResult{
				BackendID: b.ID,
				Name:      b.Name,
				Status:    b.Status,
			})
			continue
		}
		results = append(results, *res)
	}
	return results, nil
}
