package deploy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gitpix/gitpix/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLister struct {
	backends []types.Backend
}

func (s *staticLister) List(ctx context.Context) ([]types.Backend, error) {
	return s.backends, nil
}

func TestTrigger(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := NewService(&staticLister{}, "")
	require.NoError(t, svc.Trigger(context.Background(), server.URL))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// An empty hook is a configured no-op, not an error.
	require.NoError(t, svc.Trigger(context.Background(), ""))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestTrigger_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	svc := NewService(&staticLister{}, "")
	err := svc.Trigger(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestTriggerAll(t *testing.T) {
	var hookHits, globalHits int32
	hookServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hookHits, 1)
	}))
	defer hookServer.Close()
	globalServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&globalHits, 1)
	}))
	defer globalServer.Close()

	lister := &staticLister{backends: []types.Backend{
		{ID: 1, Name: "own-hook", Status: types.BackendActive, DeployHook: hookServer.URL},
		{ID: 2, Name: "global-fallback", Status: types.BackendFull},
		{ID: 3, Name: "skipped", Status: types.BackendInactive, DeployHook: hookServer.URL},
		{ID: 4, Name: "no-hook", Status: types.BackendActive},
	}}

	t.Run("with global fallback", func(t *testing.T) {
		svc := NewService(lister, globalServer.URL)
		results := svc.TriggerAll(context.Background())

		// Inactive backends are skipped outright.
		require.Len(t, results, 3)
		assert.Equal(t, int32(1), atomic.LoadInt32(&hookHits))
		assert.Equal(t, int32(2), atomic.LoadInt32(&globalHits))
		for _, r := range results {
			assert.True(t, r.Success, r.Name)
		}
	})

	t.Run("without global fallback", func(t *testing.T) {
		svc := NewService(lister, "")
		results := svc.TriggerAll(context.Background())

		require.Len(t, results, 3)
		for _, r := range results {
			switch r.Name {
			case "own-hook":
				assert.True(t, r.Success)
			default:
				assert.False(t, r.Success)
			}
		}
	})
}
