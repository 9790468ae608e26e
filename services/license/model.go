package license

import "time"

// License is one inventory unit. The used flag is the only mutable field;
// a used key backs exactly one active client attachment at a time.
type License struct {
	ID         string    `gorm:"column:id;primaryKey"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
	LicenseKey string    `gorm:"column:license_key;uniqueIndex;not null"`
	Used       bool      `gorm:"column:used;not null;default:false"`
}
