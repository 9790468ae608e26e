package license

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// acquireAttempts bounds the candidate retry loop under contention.
const acquireAttempts = 5

// ErrContention is returned when every candidate key was taken by a
// concurrent caller before our conditional update landed.
var ErrContention = errors.New("license acquisition contention")

// Repository describes database operations available for the license pool.
// Both acquire operations are compare-and-set on the used flag: two
// concurrent callers can never both flag the same key.
type Repository interface {
	AcquireFree(ctx context.Context) (*License, error)
	Acquire(ctx context.Context, key string) (*License, error)
	Release(ctx context.Context, key string) error
	BatchCreate(ctx context.Context, licenses []*License) error
	CountFree(ctx context.Context) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// AcquireFree returns (nil, nil) when the pool is exhausted.
func (r *gormRepository) AcquireFree(ctx context.Context) (*License, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	for attempt := 0; attempt < acquireAttempts; attempt++ {
		var candidate License
		err := r.db.WithContext(ctx).
			Where("used = ?", false).
			Order("license_key ASC").
			First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		res := r.db.WithContext(ctx).Model(&License{}).
			Where("license_key = ? AND used = ?", candidate.LicenseKey, false).
			Update("used", true)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			candidate.Used = true
			return &candidate, nil
		}
		// lost the race for this candidate, pick another
	}

	return nil, ErrContention
}

// Acquire flags the exact key used if it is still free. Returns (nil, nil)
// when the key is absent or already used.
func (r *gormRepository) Acquire(ctx context.Context, key string) (*License, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).Model(&License{}).
		Where("license_key = ? AND used = ?", key, false).
		Update("used", true)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var out License
	if err := r.db.WithContext(ctx).Where("license_key = ?", key).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// Release is idempotent; releasing an unknown key is a no-op.
func (r *gormRepository) Release(ctx context.Context, key string) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	return r.db.WithContext(ctx).Model(&License{}).
		Where("license_key = ?", key).
		Update("used", false).Error
}

func (r *gormRepository) BatchCreate(ctx context.Context, licenses []*License) error {
	if len(licenses) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(licenses, 500).Error
}

func (r *gormRepository) CountFree(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&License{}).
		Where("used = ?", false).
		Count(&count).Error
	return count, err
}
