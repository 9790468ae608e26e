package app

import (
	"time"

	"github.com/lib/pq"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// RegisteredApp is a consuming application allowed to open sessions. The
// app key is stored hashed; the plaintext is shown once at creation.
type RegisteredApp struct {
	ID         string         `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Name       string         `gorm:"not null" json:"name"`
	AppKeyHash string         `gorm:"not null" json:"-"`
	Scopes     pq.StringArray `gorm:"type:text[]" json:"scopes"`
	Status     Status         `gorm:"default:active" json:"status"`
}
