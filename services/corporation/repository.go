package corporation

import (
	"context"
	"errors"
	"time"

	"librix-licensing/pkg/db/option"
	"librix-licensing/pkg/db/pagination"

	"gorm.io/gorm"
)

// Repository describes database operations for corporations and their
// embedded client attachments.
type Repository interface {
	Create(ctx context.Context, corp *Corporation) error
	GetByID(ctx context.Context, id string) (*Corporation, error)
	GetByCode(ctx context.Context, code string) (*Corporation, error)
	List(ctx context.Context, p pagination.Pagination) ([]*Corporation, error)
	CodeTaken(ctx context.Context, code, excludeID string) (bool, error)
	UpdateFields(ctx context.Context, id string, values map[string]any) error
	CountActiveClients(ctx context.Context, corporationID string) (int64, error)

	ActiveAttachment(ctx context.Context, consumerKey string) (*ClientAttachment, error)
	AppendAttachment(ctx context.Context, att *ClientAttachment, period *EntitlementPeriod) error
	DisableAttachment(ctx context.Context, attachmentID string, when time.Time) (bool, error)
	LastUnlinkedByLicense(ctx context.Context, licenseKey string) (*ClientAttachment, error)
	LastPeriod(ctx context.Context, attachmentID string) (*EntitlementPeriod, error)

	AttachmentByToken(ctx context.Context, token string, now time.Time) (*ClientAttachment, error)
	SetAttachmentToken(ctx context.Context, attachmentID, token string, given, end time.Time) (bool, error)
	ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, corp *Corporation) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Create(corp).Error
}

func (r *gormRepository) GetByID(ctx context.Context, id string) (*Corporation, error) {
	var corp Corporation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&corp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &corp, nil
}

func (r *gormRepository) GetByCode(ctx context.Context, code string) (*Corporation, error) {
	var corp Corporation
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&corp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &corp, nil
}

func (r *gormRepository) List(ctx context.Context, p pagination.Pagination) ([]*Corporation, error) {
	var out []*Corporation
	tx := option.ApplyPagination(p)(r.db.WithContext(ctx).Model(&Corporation{}))
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gormRepository) CodeTaken(ctx context.Context, code, excludeID string) (bool, error) {
	var count int64
	tx := r.db.WithContext(ctx).Model(&Corporation{}).Where("code = ?", code)
	if excludeID != "" {
		tx = tx.Where("id <> ?", excludeID)
	}
	if err := tx.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormRepository) UpdateFields(ctx context.Context, id string, values map[string]any) error {
	res := r.db.WithContext(ctx).Model(&Corporation{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) CountActiveClients(ctx context.Context, corporationID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ClientAttachment{}).
		Where("corporation_id = ? AND NOT disabled", corporationID).
		Count(&count).Error
	return count, err
}

// ActiveAttachment scans the whole directory: a consumer active anywhere
// blocks a new grant or link. Returns (nil, nil) when none is active.
func (r *gormRepository) ActiveAttachment(ctx context.Context, consumerKey string) (*ClientAttachment, error) {
	var att ClientAttachment
	err := r.db.WithContext(ctx).
		Where("consumer_key = ? AND NOT disabled", consumerKey).
		First(&att).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// AppendAttachment persists a new attachment and its opening period in one
// transaction, so the registry never holds an attachment without a period.
func (r *gormRepository) AppendAttachment(ctx context.Context, att *ClientAttachment, period *EntitlementPeriod) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(att).Error; err != nil {
			return err
		}
		period.AttachmentID = att.ID
		return tx.Create(period).Error
	})
}

// DisableAttachment is a compare-and-set on the disabled flag: concurrent
// unlinks of the same attachment succeed exactly once.
func (r *gormRepository) DisableAttachment(ctx context.Context, attachmentID string, when time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&ClientAttachment{}).
		Where("id = ? AND NOT disabled", attachmentID).
		Updates(map[string]any{
			"disabled":    true,
			"unlink_date": when,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// LastUnlinkedByLicense finds the most recently unlinked attachment carrying
// the license key, across all corporations. Bounded by the
// (license_key, unlink_date) index.
func (r *gormRepository) LastUnlinkedByLicense(ctx context.Context, licenseKey string) (*ClientAttachment, error) {
	var att ClientAttachment
	err := r.db.WithContext(ctx).
		Where("license_key = ? AND unlink_date IS NOT NULL", licenseKey).
		Order("unlink_date DESC").
		First(&att).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// LastPeriod returns the governing period, the most recently appended one.
// Ordered by created_at with id as tiebreak: ids are strings, so ordering
// by id alone would be lexicographic.
func (r *gormRepository) LastPeriod(ctx context.Context, attachmentID string) (*EntitlementPeriod, error) {
	var period EntitlementPeriod
	err := r.db.WithContext(ctx).
		Where("attachment_id = ?", attachmentID).
		Order("created_at DESC, id DESC").
		First(&period).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &period, nil
}

// AttachmentByToken matches only non-disabled attachments whose token has
// not expired; the expiry boundary is exclusive.
func (r *gormRepository) AttachmentByToken(ctx context.Context, token string, now time.Time) (*ClientAttachment, error) {
	var att ClientAttachment
	err := r.db.WithContext(ctx).
		Where("token = ? AND NOT disabled AND token_end_date > ?", token, now).
		First(&att).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// SetAttachmentToken overwrites any prior token; issuing a new token
// silently invalidates the old one. Guarded on NOT disabled so an unlink
// racing the issue wins.
func (r *gormRepository) SetAttachmentToken(ctx context.Context, attachmentID, token string, given, end time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&ClientAttachment{}).
		Where("id = ? AND NOT disabled", attachmentID).
		Updates(map[string]any{
			"token":            token,
			"token_given_date": given,
			"token_end_date":   end,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormRepository) ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&ClientAttachment{}).
		Where("token IS NOT NULL AND token_end_date <= ?", now).
		Updates(map[string]any{
			"token":            nil,
			"token_given_date": nil,
			"token_end_date":   nil,
		})
	return res.RowsAffected, res.Error
}
