package capacity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gitpix/gitpix/internal/common"
	"github.com/gitpix/gitpix/pkg/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Registry stores backend records. It is deliberately dumb: ordering is
// always (priority ASC, id ASC), status transitions are explicit, and
// nothing here enforces a single active backend. That convention lives
// in the provisioner and the explicit Activate path.
type Registry struct {
	db *common.Database
}

// NewRegistry creates a backend registry over the given database.
func NewRegistry(db *common.Database) *Registry {
	return &Registry{db: db}
}

// List returns all backends ordered by (priority, id).
func (r *Registry) List(ctx context.Context) ([]types.Backend, error) {
	var backends []types.Backend
	err := r.db.WithContext(ctx).
		Order("priority ASC, id ASC").
		Find(&backends).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list backends: %w", err)
	}
	return backends, nil
}

// ListActive returns active backends ordered by (priority, id).
func (r *Registry) ListActive(ctx context.Context) ([]types.Backend, error) {
	var backends []types.Backend
	err := r.db.WithContext(ctx).
		Where("status = ?", types.BackendActive).
		Order("priority ASC, id ASC").
		Find(&backends).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active backends: %w", err)
	}
	return backends, nil
}

// Preferred returns the first active backend by (priority, id), or
// ErrBackendNotFound when none is active.
func (r *Registry) Preferred(ctx context.Context) (*types.Backend, error) {
	var backend types.Backend
	err := r.db.WithContext(ctx).
		Where("status = ?", types.BackendActive).
		Order("priority ASC, id ASC").
		First(&backend).Error
	if err != nil {
		if common.IsNotFound(err) {
			return nil, ErrBackendNotFound
		}
		return nil, fmt.Errorf("failed to get preferred backend: %w", err)
	}
	return &backend, nil
}

// GetByID returns a backend by id.
func (r *Registry) GetByID(ctx context.Context, id uint) (*types.Backend, error) {
	var backend types.Backend
	err := r.db.WithContext(ctx).First(&backend, id).Error
	if err != nil {
		if common.IsNotFound(err) {
			return nil, ErrBackendNotFound
		}
		return nil, fmt.Errorf("failed to get backend %d: %w", id, err)
	}
	return &backend, nil
}

// Create inserts a backend record. The create is idempotent on name: if
// a record with the same name already exists it is returned as-is, so
// retried provisioning never duplicates rows.
//
// The very first backend in an empty registry is forced active with
// priority 0; later creates keep whatever fields the caller set and do
// not touch siblings.
func (r *Registry) Create(ctx context.Context, backend *types.Backend) (*types.Backend, error) {
	var existing types.Backend
	err := r.db.WithContext(ctx).Where("name = ?", backend.Name).First(&existing).Error
	if err == nil {
		log.Info().Str("name", backend.Name).Uint("id", existing.ID).
			Msg("backend already registered, returning existing record")
		return &existing, nil
	}
	if !common.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check for existing backend: %w", err)
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&types.Backend{}).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to count backends: %w", err)
	}
	if count == 0 {
		backend.Status = types.BackendActive
		backend.Priority = 0
	}
	if backend.Status == "" {
		backend.Status = types.BackendActive
	}

	if err := r.db.WithContext(ctx).Create(backend).Error; err != nil {
		return nil, fmt.Errorf("failed to create backend %s: %w", backend.Name, err)
	}

	log.Info().Str("name", backend.Name).Uint("id", backend.ID).
		Int("priority", backend.Priority).Msg("backend registered")
	return backend, nil
}

// UpdateStatus transitions a backend to the given status.
func (r *Registry) UpdateStatus(ctx context.Context, id uint, status types.BackendStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	result := r.db.WithContext(ctx).Model(&types.Backend{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to update backend %d status: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrBackendNotFound
	}

	log.Info().Uint("id", id).Str("status", string(status)).Msg("backend status updated")
	return nil
}

// AdjustSizeEstimate adds delta bytes to a backend's tracked size and
// bumps its file count. There is no decrement path: deletions do not
// reconcile the estimate, only an authoritative sync does.
func (r *Registry) AdjustSizeEstimate(ctx context.Context, id uint, delta int64) error {
	result := r.db.WithContext(ctx).Model(&types.Backend{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"size_estimate": gorm.Expr("size_estimate + ?", delta),
			"file_count":    gorm.Expr("file_count + 1"),
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to adjust size estimate for backend %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrBackendNotFound
	}
	return nil
}

// SetSizeEstimate overwrites a backend's tracked size with an
// authoritative value.
func (r *Registry) SetSizeEstimate(ctx context.Context, id uint, size int64) error {
	result := r.db.WithContext(ctx).Model(&types.Backend{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"size_estimate": size, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to set size estimate for backend %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrBackendNotFound
	}
	return nil
}

// Activate marks the target backend active and every other backend
// inactive. This is the explicit single-active path; plain creates never
// deactivate siblings.
func (r *Registry) Activate(ctx context.Context, id uint) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}

	err := r.db.WithContext(ctx).Model(&types.Backend{}).
		Where("status = ?", types.BackendActive).
		Updates(map[string]interface{}{"status": types.BackendInactive, "updated_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("failed to deactivate backends: %w", err)
	}

	err = r.db.WithContext(ctx).Model(&types.Backend{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": types.BackendActive, "updated_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("failed to activate backend %d: %w", id, err)
	}

	log.Info().Uint("id", id).Msg("backend activated, siblings deactivated")
	return nil
}

// DeactivateOthers marks every backend except keep inactive. Used by the
// provisioner after a successful create so the newest backend becomes
// the sole active one.
func (r *Registry) DeactivateOthers(ctx context.Context, keep uint) error {
	err := r.db.WithContext(ctx).Model(&types.Backend{}).
		Where("id != ? AND status = ?", keep, types.BackendActive).
		Updates(map[string]interface{}{"status": types.BackendInactive, "updated_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("failed to deactivate sibling backends: %w", err)
	}
	return nil
}

// MinPriority returns the lowest priority across all backends, or 0 for
// an empty registry. New backends sort before everything at
// MinPriority-1.
func (r *Registry) MinPriority(ctx context.Context) (int, error) {
	var min sql.NullInt64
	err := r.db.WithContext(ctx).Model(&types.Backend{}).
		Select("MIN(priority)").Scan(&min).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read min priority: %w", err)
	}
	if !min.Valid {
		return 0, nil
	}
	return int(min.Int64), nil
}

// NamesLike returns backend names matching the SQL LIKE pattern.
func (r *Registry) NamesLike(ctx context.Context, pattern string) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).Model(&types.Backend{}).
		Where("name LIKE ?", pattern).
		Pluck("name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query backend names: %w", err)
	}
	return names, nil
}
