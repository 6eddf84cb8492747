package uploads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gitpix/gitpix/internal/blobstore"
	"github.com/gitpix/gitpix/internal/capacity"
	"github.com/gitpix/gitpix/internal/common"
	"github.com/gitpix/gitpix/internal/deploy"
	"github.com/gitpix/gitpix/internal/settings"
	"github.com/gitpix/gitpix/pkg/config"
	"github.com/gitpix/gitpix/pkg/types"
	"github.com/gitpix/gitpix/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
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

type uploadFixture struct {
	client   *MockBlobClient
	db       *common.Database
	registry *capacity.Registry
	store    *MemoryStore
	uploader *Uploader
	manager  *Manager
}

func newUploadFixture(t *testing.T, ttl time.Duration) *uploadFixture {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&types.Backend{}, &types.Setting{}, &types.Image{}))
	db := &common.Database{DB: gdb}

	client := &MockBlobClient{}
	factory := func(token string) blobstore.Client { return client }
	github := &config.GitHubConfig{Token: "tok", Owner: "acme", Branch: "main"}

	registry := capacity.NewRegistry(db)
	settingsSvc := settings.NewService(db, nil)
	deploySvc := deploy.NewService(registry, "")
	provisioner := capacity.NewProvisioner(registry, factory, github, deploySvc)
	router := capacity.NewRouter(registry, settingsSvc, provisioner)
	uploader := NewUploader(db, router, registry, settingsSvc, factory, deploySvc, github, "https://img.example.com")

	store := NewMemoryStore()
	return &uploadFixture{
		client:   client,
		db:       db,
		registry: registry,
		store:    store,
		uploader: uploader,
		manager:  NewManager(store, uploader, ttl),
	}
}

// seedBackend registers one active backend so uploads never provision.
func (f *uploadFixture) seedBackend(t *testing.T) *types.Backend {
	backend, err := f.registry.Create(context.Background(), &types.Backend{
		Name: "img-1", Owner: "acme",
	})
	require.NoError(t, err)
	return backend
}

// expectWrite wires the happy-path remote calls for one upload: target
// path is free, write succeeds.
func (f *uploadFixture) expectWrite() {
	f.client.On("GetFile", mock.Anything, "acme", "img-1", mock.Anything, "main").
		Return(nil, "", blobstore.ErrNotFound).Once()
	f.client.On("PutFile", mock.Anything, "acme", "img-1", mock.Anything, "main", mock.Anything, mock.Anything).
		Return(&blobstore.PutResult{SHA: "deadbeef"}, nil).Once()
}

func TestManager_ChunkedUploadLifecycle(t *testing.T) {
	f := newUploadFixture(t, time.Minute)
	f.seedBackend(t)
	ctx := context.Background()

	id, err := f.manager.CreateSession(ctx, "cat.png", 9, 3)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	receipt, err := f.manager.ReceiveChunk(ctx, id, 0, []byte("aaa"))
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.ReceivedCount)
	assert.Equal(t, 3, receipt.TotalChunks)

	receipt, err = f.manager.ReceiveChunk(ctx, id, 1, []byte("bbb"))
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.ReceivedCount)

	// Two of three chunks: completion must refuse and keep the session.
	_, err = f.manager.CompleteSession(ctx, id)
	assert.ErrorIs(t, err, ErrIncompleteUpload)

	session, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, session.Received)

	receipt, err = f.manager.ReceiveChunk(ctx, id, 2, []byte("ccc"))
	require.NoError(t, err)
	assert.Equal(t, 3, receipt.ReceivedCount)

	f.expectWrite()

	result, err := f.manager.CompleteSession(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, result.URL, "cat.png")
	assert.Contains(t, result.Markdown, result.URL)

	// The reassembled bytes are the chunks in index order.
	putCall := f.client.Calls[len(f.client.Calls)-1]
	assert.Equal(t, []byte("aaabbbccc"), putCall.Arguments.Get(6).([]byte))

	// Completion deletes the session.
	_, err = f.store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	f.client.AssertExpectations(t)
}

func TestManager_DuplicateChunkOverwrites(t *testing.T) {
	f := newUploadFixture(t, time.Minute)
	ctx := context.Background()

	id, err := f.manager.CreateSession(ctx, "cat.png", 6, 2)
	require.NoError(t, err)

	receipt, err := f.manager.ReceiveChunk(ctx, id, 0, []byte("old"))
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.ReceivedCount)

	// Retried chunk: last write wins, count stays put.
	receipt, err = f.manager.ReceiveChunk(ctx, id, 0, []byte("new"))
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.ReceivedCount)

	chunks, err := f.store.Chunks(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), chunks[0])
}

func TestManager_ChunkIndexOutOfRange(t *testing.T) {
	f := newUploadFixture(t, time.Minute)
	ctx := context.Background()

	id, err := f.manager.CreateSession(ctx, "cat.png", 6, 2)
	require.NoError(t, err)

	_, err = f.manager.ReceiveChunk(ctx, id, 2, []byte("x"))
	assert.Error(t, err)
	_, err = f.manager.ReceiveChunk(ctx, id, -1, []byte("x"))
	assert.Error(t, err)
}

func TestManager_RejectsInvalidSessionParameters(t *testing.T) {
	f := newUploadFixture(t, time.Minute)
	ctx := context.Background()

	_, err := f.manager.CreateSession(ctx, "", 10, 2)
	assert.Error(t, err)
	_, err = f.manager.CreateSession(ctx, "cat.png", 10, 0)
	assert.Error(t, err)
}

func TestManager_SessionExpiry(t *testing.T) {
	f := newUploadFixture(t, 20*time.Millisecond)
	ctx := context.Background()

	id, err := f.manager.CreateSession(ctx, "cat.png", 3, 1)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	// Past expiry the session is gone for every operation.
	_, err = f.manager.ReceiveChunk(ctx, id, 0, []byte("abc"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.manager.CompleteSession(ctx, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Equal(t, 1, f.store.SweepExpired(ctx))
	assert.Equal(t, 0, f.store.SweepExpired(ctx))
}

func TestManager_SlidingExpiry(t *testing.T) {
	f := newUploadFixture(t, 60*time.Millisecond)
	ctx := context.Background()

	id, err := f.manager.CreateSession(ctx, "cat.png", 4, 2)
	require.NoError(t, err)

	// Keep the session alive past its original expiry by trickling
	// chunks in.
	for i := 0; i < 3; i++ {
		time.Sleep(40 * time.Millisecond)
		_, err = f.manager.ReceiveChunk(ctx, id, 0, []byte("ab"))
		require.NoError(t, err)
	}

	_, err = f.store.Get(ctx, id)
	assert.NoError(t, err)
}

func TestManager_CancelIsIdempotent(t *testing.T) {
	f := newUploadFixture(t, time.Minute)
	ctx := context.Background()

	id, err := f.manager.CreateSession(ctx, "cat.png", 3, 1)
	require.NoError(t, err)

	require.NoError(t, f.manager.CancelSession(ctx, id))
	_, err = f.store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Absent session, unknown session: still fine.
	assert.NoError(t, f.manager.CancelSession(ctx, id))
	assert.NoError(t, f.manager.CancelSession(ctx, "no-such-session"))
}

func TestUploader_ConflictOnExistingFile(t *testing.T) {
	f := newUploadFixture(t, time.Minute)
	f.seedBackend(t)
	ctx := context.Background()

	f.client.On("GetFile", mock.Anything, "acme", "img-1", mock.Anything, "main").
		Return([]byte("occupied"), "oldsha", nil).Once()

	_, err := f.uploader.Upload(ctx, "cat.png", "image/png", []byte("data"), true)
	assert.ErrorIs(t, err, ErrFileExists)

	f.client.AssertNotCalled(t, "PutFile", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUploader_SettlesBookkeeping(t *testing.T) {
	f := newUploadFixture(t, time.Minute)
	backend := f.seedBackend(t)
	ctx := context.Background()

	f.expectWrite()

	payload := []byte("0123456789")
	result, err := f.uploader.Upload(ctx, "cat.png", "image/png", payload, true)
	require.NoError(t, err)

	now := time.Now()
	assert.Equal(t,
		"https://img.example.com/images/"+utils.DatePath(now)+"/cat.png",
		result.URL)

	updated, err := f.registry.GetByID(ctx, backend.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), updated.SizeEstimate)
	assert.Equal(t, int64(1), updated.FileCount)

	var image types.Image
	require.NoError(t, f.db.Where("filename = ?", "cat.png").First(&image).Error)
	assert.Equal(t, backend.ID, image.BackendID)
	assert.Equal(t, "deadbeef", image.SHA)
}

func TestUploader_DemotesBackendCrossingThreshold(t *testing.T) {
	f := newUploadFixture(t, time.Minute)
	backend := f.seedBackend(t)
	ctx := context.Background()

	settingsSvc := settings.NewService(f.db, nil)
	require.NoError(t, settingsSvc.Set(ctx, settings.KeyThreshold, "100"))

	f.expectWrite()

	data := make([]byte, 100)
	_, err := f.uploader.Upload(ctx, "big.png", "image/png", data, true)
	require.NoError(t, err)

	updated, err := f.registry.GetByID(ctx, backend.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BackendInactive, updated.Status)
}

func TestUploader_WriteFailureKeepsSession(t *testing.T) {
	f := newUploadFixture(t, time.Minute)
	f.seedBackend(t)
	ctx := context.Background()

	id, err := f.manager.CreateSession(ctx, "cat.png", 3, 1)
	require.NoError(t, err)
	_, err = f.manager.ReceiveChunk(ctx, id, 0, []byte("abc"))
	require.NoError(t, err)

	f.client.On("GetFile", mock.Anything, "acme", "img-1", mock.Anything, "main").
		Return(nil, "", blobstore.ErrNotFound).Once()
	f.client.On("PutFile", mock.Anything, "acme", "img-1", mock.Anything, "main", mock.Anything, mock.Anything).
		Return(nil, errors.New("api rate limited")).Once()

	_, err = f.manager.CompleteSession(ctx, id)
	require.Error(t, err)

	// The session survives a failed write, and a retried completion
	// succeeds.
	f.expectWrite()
	_, err = f.manager.CompleteSession(ctx, id)
	require.NoError(t, err)

	f.client.AssertExpectations(t)
}
