package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gitpix/gitpix/internal/common"
	"github.com/gitpix/gitpix/pkg/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/clause"
)

// Well-known setting keys. The table is free-form key/value; these are
// the keys the capacity and upload subsystems read.
const (
	KeyThreshold    = "repository_size_threshold"
	KeyNameTemplate = "repository_name_template"
	KeyGuestUpload  = "allow_guest_upload"
)

const (
	// DefaultThreshold is the per-backend byte ceiling used when no
	// override is stored.
	DefaultThreshold = 900 * 1024 * 1024

	// MaxThreshold is the policy cap: the threshold can never be raised
	// above this.
	MaxThreshold = 1024 * 1024 * 1024

	cachePrefix = "settings:"
	cacheTTL    = 30 * time.Second
)

// ErrInvalidValue marks a rejected setting value (bad number, above the
// policy cap). Surfaced to clients as a 400.
var ErrInvalidValue = errors.New("invalid setting value")

// Service reads and writes the settings table. A short read-through
// cache sits in front of the threshold, which is consulted on every
// allocation.
type Service struct {
	db    *common.Database
	cache *common.Cache
}

// NewService creates a settings service. cache may be nil, in which case
// every read hits the database.
func NewService(db *common.Database, cache *common.Cache) *Service {
	return &Service{db: db, cache: cache}
}

// Get returns the raw value for key, or "" when unset.
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	if s.cache != nil {
		if v, err := s.cache.GetString(ctx, cachePrefix+key); err == nil {
			return v, nil
		}
	}

	var setting types.Setting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if err != nil {
		if common.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}

	if s.cache != nil {
		if err := s.cache.SetString(ctx, cachePrefix+key, setting.Value, cacheTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to cache setting")
		}
	}
	return setting.Value, nil
}

// Set upserts a single key.
func (s *Service) Set(ctx context.Context, key, value string) error {
	setting := types.Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, cachePrefix+key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to invalidate cached setting")
		}
	}
	return nil
}

// All returns every stored setting as a map.
func (s *Service) All(ctx context.Context) (map[string]string, error) {
	var rows []types.Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

// Update applies a batch of settings. The threshold key is validated
// against the policy cap before anything is written.
func (s *Service) Update(ctx context.Context, values map[string]string) error {
	if raw, ok := values[KeyThreshold]; ok {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: threshold %q", ErrInvalidValue, raw)
		}
		if n > MaxThreshold {
			return fmt.Errorf("%w: threshold %d exceeds the 1GiB cap", ErrInvalidValue, n)
		}
	}

	for key, value := range values {
		if err := s.Set(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// Threshold returns the configured per-backend byte ceiling, falling
// back to the default when unset or unparsable.
func (s *Service) Threshold(ctx context.Context) int64 {
	raw, err := s.Get(ctx, KeyThreshold)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read size threshold, using default")
		return DefaultThreshold
	}
	if raw == "" {
		return DefaultThreshold
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		log.Warn().Str("value", raw).Msg("unparsable size threshold, using default")
		return DefaultThreshold
	}
	return n
}

// NameTemplate returns the operator-configured base name for new
// backends, or "" when unset.
func (s *Service) NameTemplate(ctx context.Context) string {
	v, err := s.Get(ctx, KeyNameTemplate)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read name template")
		return ""
	}
	return v
}

// GuestUploadAllowed reports whether unauthenticated uploads are
// permitted. Errors default to closed.
func (s *Service) GuestUploadAllowed(ctx context.Context) bool {
	v, err := s.Get(ctx, KeyGuestUpload)
	if err != nil {
		return false
	}
	return v == "true"
}
