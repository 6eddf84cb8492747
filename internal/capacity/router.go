package capacity

import (
	"context"
	"errors"

	"github.com/gitpix/gitpix/internal/settings"
	"github.com/gitpix/gitpix/pkg/types"
	"github.com/rs/zerolog/log"
)

// defaultBaseName seeds the very first backend when no name template is
// configured and no backend exists to derive a base from.
const defaultBaseName = "images-repo"

// Router chooses a backend for incoming uploads. Selection is advisory:
// threshold checks are unlocked read-modify-write, so two concurrent
// allocations can both see room and briefly overshoot. Accepted, not
// prevented.
type Router struct {
	registry    *Registry
	settings    *settings.Service
	provisioner *Provisioner
}

// NewRouter creates a capacity router.
func NewRouter(registry *Registry, settingsSvc *settings.Service, provisioner *Provisioner) *Router {
	return &Router{
		registry:    registry,
		settings:    settingsSvc,
		provisioner: provisioner,
	}
}

// baseNameFor picks the provisioning base: the operator template when
// set, otherwise the reference name with its numeric suffix stripped.
func (r *Router) baseNameFor(ctx context.Context, reference string) string {
	if tpl := r.settings.NameTemplate(ctx); tpl != "" {
		return tpl
	}
	if reference != "" {
		return BaseName(reference)
	}
	return defaultBaseName
}

// Allocate picks a backend with room for size bytes, provisioning a new
// one when every active backend is full. The caller never receives a
// backend it cannot use: provisioning failure fails the whole
// allocation.
func (r *Router) Allocate(ctx context.Context, size int64) (*types.Allocation, error) {
	threshold := r.settings.Threshold(ctx)

	preferred, err := r.registry.Preferred(ctx)
	if errors.Is(err, ErrBackendNotFound) {
		// Bootstrap: nothing is registered or active yet.
		log.Info().Msg("no active backend, provisioning initial backend")
		backend, perr := r.provisioner.Provision(ctx, r.baseNameFor(ctx, ""), true)
		if perr != nil {
			return nil, &CapacityError{Requested: size, Err: perr}
		}
		return &types.Allocation{Backend: backend, Provisioned: true}, nil
	}
	if err != nil {
		return nil, err
	}

	remaining := threshold - preferred.SizeEstimate
	if remaining >= size {
		return &types.Allocation{Backend: preferred}, nil
	}

	// The preferred backend is out of room: scan the other active
	// backends in preference order.
	others, err := r.registry.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range others {
		if others[i].ID == preferred.ID {
			continue
		}
		if threshold-others[i].SizeEstimate >= size {
			log.Info().Str("backend", others[i].Name).Int64("size", size).
				Msg("routed upload to alternate backend")
			return &types.Allocation{Backend: &others[i]}, nil
		}
	}

	// Nothing has room: provision. Siblings keep their status here; the
	// demotion rule below decides what happens to the old preferred
	// backend.
	backend, perr := r.provisioner.Provision(ctx, r.baseNameFor(ctx, preferred.Name), false)
	if perr != nil {
		return nil, &CapacityError{Requested: size, Err: perr}
	}

	// Hysteresis: only demote the old preferred backend when its
	// leftover space is under 10% of the threshold, so a backend with a
	// usable sliver keeps taking small uploads.
	if remaining < threshold/10 {
		if err := r.registry.UpdateStatus(ctx, preferred.ID, types.BackendInactive); err != nil {
			log.Error().Err(err).Str("backend", preferred.Name).
				Msg("failed to demote exhausted backend")
		} else {
			log.Info().Str("backend", preferred.Name).Int64("remaining", remaining).
				Msg("backend near threshold, demoted to inactive")
		}
	}

	return &types.Allocation{Backend: backend, Provisioned: true}, nil
}
