package option

import (
	"time"

	"librix-licensing/pkg/db/pagination"

	"gorm.io/gorm"
)

// QueryOption mutates a gorm query before it is executed.
type QueryOption func(tx *gorm.DB) *gorm.DB

func WithOrder(expr string) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Order(expr)
	}
}

func WithLimit(limit int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return tx
		}
		return tx.Limit(limit)
	}
}

func WithPreload(assoc string, args ...interface{}) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Preload(assoc, args...)
	}
}

// ApplyPagination applies cursor pagination: fetches limit+1 rows so the
// caller can detect a next page. Keyed on (created_at, id) — ids are stored
// as strings, so ordering by id alone would be lexicographic, not temporal.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		limit := p.Limit
		if limit <= 0 {
			limit = 10
		}

		if p.Cursor != "" {
			if cursor, err := pagination.DecodeCursor(p.Cursor); err == nil && cursor.ID != "" {
				if ts, terr := time.Parse(time.RFC3339Nano, cursor.CreatedAt); terr == nil {
					tx = tx.Where("created_at > ? OR (created_at = ? AND id > ?)", ts, ts, cursor.ID)
				} else {
					tx = tx.Where("id > ?", cursor.ID)
				}
			}
		}

		return tx.Order("created_at ASC, id ASC").Limit(limit + 1)
	}
}
