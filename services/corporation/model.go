package corporation

import (
	"time"

	"gorm.io/gorm"
)

// Corporation is the aggregate root: it exclusively owns its client
// attachments, and every attachment mutation goes through it.
type Corporation struct {
	ID          string    `gorm:"column:id;primaryKey"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
	Code        string    `gorm:"column:code;uniqueIndex;not null"`
	Description string    `gorm:"column:description"`
	Town        string    `gorm:"column:town"`
	City        string    `gorm:"column:city"`
	Banned      bool      `gorm:"column:banned;not null;default:false"`

	Clients []ClientAttachment `gorm:"foreignKey:CorporationID"`
}

// ClientAttachment links a consumer to a corporation. Attachments are never
// deleted: unlink soft-disables the row so continuity lookups can find it,
// and a re-link appends a fresh row instead of reviving the old one.
type ClientAttachment struct {
	ID            string     `gorm:"column:id;primaryKey"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
	CorporationID string     `gorm:"column:corporation_id;index;not null"`
	ConsumerKey   string     `gorm:"column:consumer_key;index;not null"`
	LicenseKey    string     `gorm:"column:license_key;index:idx_attachments_license_unlink,priority:1;not null"`
	Disabled      bool       `gorm:"column:disabled;not null;default:false"`
	UnlinkDate    *time.Time `gorm:"column:unlink_date;index:idx_attachments_license_unlink,priority:2"`

	Token          *string    `gorm:"column:token;index"`
	TokenGivenDate *time.Time `gorm:"column:token_given_date"`
	TokenEndDate   *time.Time `gorm:"column:token_end_date"`

	Periods []EntitlementPeriod `gorm:"foreignKey:AttachmentID"`
}

// EntitlementPeriod is append-only; rows are never updated. The governing
// period of an attachment is the most recently created one.
type EntitlementPeriod struct {
	ID           string    `gorm:"column:id;primaryKey"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	AttachmentID string    `gorm:"column:attachment_id;index;not null"`
	BegDate      time.Time `gorm:"column:beg_date;not null"`
	EndDate      time.Time `gorm:"column:end_date;not null"`
	IsDemo       bool      `gorm:"column:is_demo;not null;default:false"`
}

// Migrate creates the schema plus the partial unique index that enforces
// at-most-one active attachment per consumer at the storage layer. MySQL has
// no partial indexes, so there the serialized application check is the only
// guard.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Corporation{}, &ClientAttachment{}, &EntitlementPeriod{}); err != nil {
		return err
	}

	if db.Dialector.Name() == "mysql" {
		return nil
	}

	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_client_attachments_active_consumer
		 ON client_attachments (consumer_key) WHERE NOT disabled`,
	).Error
}
