package deploy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gitpix/gitpix/pkg/types"
	"github.com/rs/zerolog/log"
)

// BackendLister is the slice of the backend registry this package needs.
type BackendLister interface {
	List(ctx context.Context) ([]types.Backend, error)
}

// Result reports the outcome of one webhook trigger.
type Result struct {
	BackendID uint   `json:"id"`
	Name      string `json:"name"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// Service fires deploy webhooks. Every call here is best-effort: a
// failed hook is logged and reported, never surfaced as an upload
// failure.
type Service struct {
	client     *http.Client
	globalHook string
	backends   BackendLister
}

// NewService creates a deploy webhook service. globalHook is the
// fallback used for backends without their own hook.
func NewService(backends BackendLister, globalHook string) *Service {
	return &Service{
		client:     &http.Client{Timeout: 30 * time.Second},
		globalHook: globalHook,
		backends:   backends,
	}
}

// Trigger posts to a single hook URL. An empty URL is a no-op.
func (s *Service) Trigger(ctx context.Context, hookURL string) error {
	if hookURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hookURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build deploy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deploy hook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("deploy hook returned status %d", resp.StatusCode)
	}
	return nil
}

// TriggerAll fires the hook of every backend that is not inactive,
// falling back to the global hook where a backend has none.
func (s *Service) TriggerAll(ctx context.Context) []Result {
	backends, err := s.backends.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list backends for deploy trigger")
		return nil
	}

	var results []Result
	for _, b := range backends {
		if b.Status == types.BackendInactive {
			continue
		}

		hook := b.DeployHook
		if hook == "" {
			hook = s.globalHook
		}
		if hook == "" {
			results = append(results, Result{
				BackendID: b.ID, Name: b.Name,
				Success: false, Error: "no deploy hook configured",
			})
			continue
		}

		if err := s.Trigger(ctx, hook); err != nil {
			log.Warn().Err(err).Str("backend", b.Name).Msg("deploy hook failed")
			results = append(results, Result{
				BackendID: b.ID, Name: b.Name,
				Success: false, Error: err.Error(),
			})
			continue
		}
		results = append(results, Result{BackendID: b.ID, Name: b.Name, Success: true})
	}
	return results
}
