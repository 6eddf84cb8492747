package settings

import (
	"context"
	"testing"

	"github.com/gitpix/gitpix/internal/common"
	"github.com/gitpix/gitpix/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestService(t *testing.T) *Service {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Setting{}))
	return NewService(&common.Database{DB: db}, nil)
}

func TestService_GetUnsetKeyIsEmpty(t *testing.T) {
	svc := setupTestService(t)

	v, err := svc.Get(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestService_SetUpserts(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, KeyNameTemplate, "img"))
	require.NoError(t, svc.Set(ctx, KeyNameTemplate, "pics"))

	v, err := svc.Get(ctx, KeyNameTemplate)
	require.NoError(t, err)
	assert.Equal(t, "pics", v)

	all, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestService_ThresholdDefaults(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	assert.Equal(t, int64(DefaultThreshold), svc.Threshold(ctx))

	require.NoError(t, svc.Set(ctx, KeyThreshold, "not-a-number"))
	assert.Equal(t, int64(DefaultThreshold), svc.Threshold(ctx))

	require.NoError(t, svc.Set(ctx, KeyThreshold, "52428800"))
	assert.Equal(t, int64(52428800), svc.Threshold(ctx))
}

func TestService_UpdateValidatesThreshold(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	err := svc.Update(ctx, map[string]string{KeyThreshold: "abc"})
	assert.ErrorIs(t, err, ErrInvalidValue)

	err = svc.Update(ctx, map[string]string{KeyThreshold: "-5"})
	assert.ErrorIs(t, err, ErrInvalidValue)

	// Above the 1GiB policy cap.
	err = svc.Update(ctx, map[string]string{KeyThreshold: "1073741825"})
	assert.ErrorIs(t, err, ErrInvalidValue)

	// A rejected batch writes nothing.
	v, gerr := svc.Get(ctx, KeyThreshold)
	require.NoError(t, gerr)
	assert.Equal(t, "", v)

	err = svc.Update(ctx, map[string]string{
		KeyThreshold:   "1073741824",
		KeyGuestUpload: "true",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1073741824), svc.Threshold(ctx))
	assert.True(t, svc.GuestUploadAllowed(ctx))
}

func TestService_GuestUploadDefaultsClosed(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	assert.False(t, svc.GuestUploadAllowed(ctx))

	require.NoError(t, svc.Set(ctx, KeyGuestUpload, "false"))
	assert.False(t, svc.GuestUploadAllowed(ctx))

	require.NoError(t, svc.Set(ctx, KeyGuestUpload, "true"))
	assert.True(t, svc.GuestUploadAllowed(ctx))
}
