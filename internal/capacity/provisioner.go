package capacity

import (
	"context"
	"errors"
	"fmt"

	"github.com/gitpix/gitpix/internal/blobstore"
	"github.com/gitpix/gitpix/internal/deploy"
	"github.com/gitpix/gitpix/pkg/config"
	"github.com/gitpix/gitpix/pkg/types"
	"github.com/rs/zerolog/log"
)

// markerPath is written into every new backend so the expected image
// path layout exists before the first upload.
const markerPath = "public/images/.gitkeep"

// Provisioner creates brand-new backends: the remote repository, its
// minimal structure, and the registry record.
type Provisioner struct {
	registry *Registry
	store    blobstore.Factory
	github   *config.GitHubConfig
	deploy   *deploy.Service
}

// NewProvisioner creates a backend provisioner. deploySvc may be nil to
// skip deploy-surface notification.
func NewProvisioner(registry *Registry, store blobstore.Factory, github *config.GitHubConfig, deploySvc *deploy.Service) *Provisioner {
	return &Provisioner{
		registry: registry,
		store:    store,
		github:   github,
		deploy:   deploySvc,
	}
}

// Provision creates the next backend for baseName and registers it as
// the preferred one: the new record starts active at min(priority)-1.
// With exclusive set, every other backend is deactivated too; the
// router's exhaustion path passes false and applies its own demotion
// rule instead.
//
// The remote-first ordering is deliberate: if the registry insert fails
// after the remote repository exists, the backend is still returned so
// the caller can use it, and the bookkeeping gap is logged loudly.
func (p *Provisioner) Provision(ctx context.Context, baseName string, exclusive bool) (*types.Backend, error) {
	if p.github.Token == "" {
		return nil, &ConfigurationError{Missing: "github token"}
	}
	if p.github.Owner == "" {
		return nil, &ConfigurationError{Missing: "github owner"}
	}

	name, err := p.registry.NextName(ctx, BaseName(baseName))
	if err != nil {
		return nil, err
	}

	client := p.store(p.github.Token)

	// A 404 here is the happy path: the name is free.
	_, err = client.GetRepoSize(ctx, p.github.Owner, name)
	switch {
	case err == nil:
		log.Info().Str("backend", name).Msg("remote repository already exists, skipping creation")
	case errors.Is(err, blobstore.ErrNotFound):
		desc := fmt.Sprintf("Image storage backend %s", name)
		if err := client.CreateRepo(ctx, p.github.Owner, name, desc, true); err != nil {
			log.Warn().Err(err).Str("backend", name).
				Msg("org-scoped creation failed, retrying user-scoped")
			if err := client.CreateRepo(ctx, p.github.Owner, name, desc, false); err != nil {
				return nil, &ProvisionError{Name: name, Err: err}
			}
		}
		p.initStructure(ctx, client, name)
	default:
		return nil, &ProvisionError{Name: name, Err: err}
	}

	minPriority, err := p.registry.MinPriority(ctx)
	if err != nil {
		return nil, err
	}

	backend := &types.Backend{
		Name:     name,
		Owner:    p.github.Owner,
		Status:   types.BackendActive,
		Priority: minPriority - 1,
	}

	created, err := p.registry.Create(ctx, backend)
	if err != nil {
		// The remote repository exists even though bookkeeping failed.
		// Hand the backend to the caller anyway.
		log.Error().Err(err).Str("backend", name).
			Msg("remote backend created but registry insert failed, returning unregistered backend")
		return backend, nil
	}

	if exclusive {
		if err := p.registry.DeactivateOthers(ctx, created.ID); err != nil {
			log.Error().Err(err).Uint("id", created.ID).
				Msg("failed to deactivate sibling backends")
		}
	}

	if p.deploy != nil {
		if err := p.deploy.Trigger(ctx, p.github.DeployHook); err != nil {
			log.Warn().Err(err).Str("backend", name).
				Msg("failed to notify deploy surface of new backend")
		}
	}

	log.Info().Str("backend", name).Uint("id", created.ID).
		Int("priority", created.Priority).Msg("backend provisioned")
	return created, nil
}

// initStructure writes the placeholder marker so the backend is
// immediately writable under the expected layout. Best-effort.
func (p *Provisioner) initStructure(ctx context.Context, client blobstore.Client, name string) {
	_, err := client.PutFile(ctx, p.github.Owner, name, markerPath, p.github.Branch,
		"Initialize image directory", []byte{})
	if err != nil {
		log.Warn().Err(err).Str("backend", name).Msg("failed to initialize backend structure")
	}
}
