package capacity

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/gitpix/gitpix/internal/blobstore"
	"github.com/gitpix/gitpix/internal/settings"
	"github.com/gitpix/gitpix/pkg/config"
	"github.com/gitpix/gitpix/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBlobClient implements blobstore.Client for testing
type MockBlobClient struct {
	mock.Mock
}

func (m *MockBlobClient) GetRepoSize(ctx context.Context, owner, repo string) (int64, error) {
	args := m.Called(ctx, owner, repo)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBlobClient) CreateRepo(ctx context.Context, owner, repo, description string, inOrg bool) error {
	args := m.Called(ctx, owner, repo, description, inOrg)
	return args.Error(0)
}

func (m *MockBlobClient) GetFile(ctx context.Context, owner, repo, path, ref string) ([]byte, string, error) {
	args := m.Called(ctx, owner, repo, path, ref)
	var content []byte
	if args.Get(0) != nil {
		content = args.Get(0).([]byte)
	}
	return content, args.String(1), args.Error(2)
}

func (m *MockBlobClient) PutFile(ctx context.Context, owner, repo, path, branch, message string, content []byte) (*blobstore.PutResult, error) {
	args := m.Called(ctx, owner, repo, path, branch, message, content)
	var res *blobstore.PutResult
	if args.Get(0) != nil {
		res = args.Get(0).(*blobstore.PutResult)
	}
	return res, args.Error(1)
}

func mockFactory(client *MockBlobClient) blobstore.Factory {
	return func(token string) blobstore.Client { return client }
}

func testGitHubConfig() *config.GitHubConfig {
	return &config.GitHubConfig{
		Token:  "test-token",
		Owner:  "acme",
		Branch: "main",
	}
}

func newTestEstimator(t *testing.T, client *MockBlobClient, threshold int64) (*Estimator, *Registry, *settings.Service) {
	db := setupTestDB(t)
	registry := NewRegistry(db)
	settingsSvc := settings.NewService(db, nil)
	if threshold > 0 {
		require.NoError(t, settingsSvc.Set(context.Background(),
			settings.KeyThreshold, strconv.FormatInt(threshold, 10)))
	}
	return NewEstimator(registry, settingsSvc, mockFactory(client), testGitHubConfig()), registry, settingsSvc
}

func TestEstimator_ReconcileMarksFull(t *testing.T) {
	client := &MockBlobClient{}
	estimator, registry, _ := newTestEstimator(t, client, 900*1024*1024)
	ctx := context.Background()

	backend, err := registry.Create(ctx, &types.Backend{Name: "img-1", Owner: "acme"})
	require.NoError(t, err)

	client.On("GetRepoSize", mock.Anything, "acme", "img-1").
		Return(int64(950*1024*1024), nil).Once()

	result, err := estimator.Reconcile(ctx, backend.ID)
	require.NoError(t, err)

	assert.True(t, result.IsFull)
	assert.Equal(t, types.BackendFull, result.Status)
	assert.Equal(t, int64(950*1024*1024), result.Size)

	updated, err := registry.GetByID(ctx, backend.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BackendFull, updated.Status)
	assert.Equal(t, int64(950*1024*1024), updated.SizeEstimate)

	// Back under the threshold the backend recovers.
	client.On("GetRepoSize", mock.Anything, "acme", "img-1").
		Return(int64(800*1024*1024), nil).Once()

	result, err = estimator.Reconcile(ctx, backend.ID)
	require.NoError(t, err)
	assert.False(t, result.IsFull)
	assert.Equal(t, types.BackendActive, result.Status)

	client.AssertExpectations(t)
}

func TestEstimator_ReconcileLeavesInactiveAlone(t *testing.T) {
	client := &MockBlobClient{}
	estimator, registry, _ := newTestEstimator(t, client, 900*1024*1024)
	ctx := context.Background()

	_, err := registry.Create(ctx, &types.Backend{Name: "seed", Owner: "acme"})
	require.NoError(t, err)
	backend, err := registry.Create(ctx, &types.Backend{
		Name: "img-2", Owner: "acme", Status: types.BackendInactive,
	})
	require.NoError(t, err)

	client.On("GetRepoSize", mock.Anything, "acme", "img-2").
		Return(int64(100), nil).Once()

	result, err := estimator.Reconcile(ctx, backend.ID)
	require.NoError(t, err)

	// Under-threshold only flips full backends back, never inactive ones.
	assert.Equal(t, types.BackendInactive, result.Status)
	client.AssertExpectations(t)
}

func TestEstimator_FetchFailureIsSoft(t *testing.T) {
	client := &MockBlobClient{}
	estimator, registry, _ := newTestEstimator(t, client, 0)
	ctx := context.Background()

	backend, err := registry.Create(ctx, &types.Backend{
		Name: "img-1", Owner: "acme", SizeEstimate: 12345,
	})
	require.NoError(t, err)

	client.On("GetRepoSize", mock.Anything, "acme", "img-1").
		Return(int64(0), errors.New("api unreachable")).Once()

	result, err := estimator.Reconcile(ctx, backend.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Size)

	updated, err := registry.GetByID(ctx, backend.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated.SizeEstimate)

	client.AssertExpectations(t)
}

func TestEstimator_BackendTokenOverridesDefault(t *testing.T) {
	client := &MockBlobClient{}
	db := setupTestDB(t)
	registry := NewRegistry(db)
	settingsSvc := settings.NewService(db, nil)

	var seenToken string
	factory := func(token string) blobstore.Client {
		seenToken = token
		return client
	}
	estimator := NewEstimator(registry, settingsSvc, factory, testGitHubConfig())
	ctx := context.Background()

	backend, err := registry.Create(ctx, &types.Backend{
		Name: "img-1", Owner: "acme", Token: "per-backend-token",
	})
	require.NoError(t, err)

	client.On("GetRepoSize", mock.Anything, "acme", "img-1").
		Return(int64(1), nil).Once()

	_, err = estimator.Reconcile(ctx, backend.ID)
	require.NoError(t, err)
	assert.Equal(t, "per-backend-token", seenToken)
}
