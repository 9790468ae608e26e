package corporation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"librix-licensing/pkg/db/pagination"
	"librix-licensing/services/testutil"
)

func newTestRepo(t *testing.T) (Repository, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t)
	require.NoError(t, Migrate(db))
	return NewRepository(db), db
}

func seedRepoCorporation(t *testing.T, repo Repository, id, code string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &Corporation{
		ID:        id,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Code:      code,
	}))
}

func TestAppendAttachmentRejectsSecondActiveConsumer(t *testing.T) {
	repo, _ := newTestRepo(t)
	now := time.Now()
	seedRepoCorporation(t, repo, "corp-1", "ACME", now)
	seedRepoCorporation(t, repo, "corp-2", "OTHER", now)

	first := &ClientAttachment{
		ID: "att-1", CreatedAt: now, UpdatedAt: now,
		CorporationID: "corp-1", ConsumerKey: "dup", LicenseKey: "KEY-A",
	}
	require.NoError(t, repo.AppendAttachment(context.Background(), first, &EntitlementPeriod{
		ID: "per-1", CreatedAt: now, BegDate: now, EndDate: now.AddDate(0, 0, 30),
	}))

	// the partial unique index backstops the application-level check:
	// one active attachment per consumer, even across corporations
	second := &ClientAttachment{
		ID: "att-2", CreatedAt: now, UpdatedAt: now,
		CorporationID: "corp-2", ConsumerKey: "dup", LicenseKey: "KEY-B",
	}
	err := repo.AppendAttachment(context.Background(), second, &EntitlementPeriod{
		ID: "per-2", CreatedAt: now, BegDate: now, EndDate: now.AddDate(0, 0, 30),
	})
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// disabled rows leave the index, so a later re-attach is allowed
	disabled, err := repo.DisableAttachment(context.Background(), "att-1", now)
	require.NoError(t, err)
	require.True(t, disabled)

	require.NoError(t, repo.AppendAttachment(context.Background(), second, &EntitlementPeriod{
		ID: "per-3", CreatedAt: now, BegDate: now, EndDate: now.AddDate(0, 0, 30),
	}))
}

func TestLastPeriodFollowsCreationNotStringOrder(t *testing.T) {
	repo, db := newTestRepo(t)
	now := time.Now()
	seedRepoCorporation(t, repo, "corp-1", "ACME", now)

	att := &ClientAttachment{
		ID: "att-1", CreatedAt: now, UpdatedAt: now,
		CorporationID: "corp-1", ConsumerKey: "consumer-1", LicenseKey: "KEY-A",
	}
	// id "9" sorts after id "10" lexicographically; creation time must win
	require.NoError(t, repo.AppendAttachment(context.Background(), att, &EntitlementPeriod{
		ID: "9", CreatedAt: now, BegDate: now, EndDate: now.AddDate(0, 0, 30),
	}))
	require.NoError(t, db.Create(&EntitlementPeriod{
		ID: "10", CreatedAt: now.Add(time.Second), AttachmentID: "att-1",
		BegDate: now, EndDate: now.AddDate(0, 1, 0),
	}).Error)

	period, err := repo.LastPeriod(context.Background(), "att-1")
	require.NoError(t, err)
	require.Equal(t, "10", period.ID)
}

func TestListPaginatesInCreationOrder(t *testing.T) {
	repo, _ := newTestRepo(t)
	base := time.Now()
	// string ids whose lexicographic order disagrees with creation order
	seedRepoCorporation(t, repo, "9", "CORP-9", base)
	seedRepoCorporation(t, repo, "10", "CORP-10", base.Add(time.Second))
	seedRepoCorporation(t, repo, "11", "CORP-11", base.Add(2*time.Second))

	page, err := repo.List(context.Background(), pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(page), 2)
	require.Equal(t, "9", page[0].ID)
	require.Equal(t, "10", page[1].ID)

	cursor, err := pagination.EncodeCursor(pagination.Cursor{
		CreatedAt: page[1].CreatedAt.Format(time.RFC3339Nano),
		ID:        page[1].ID,
	})
	require.NoError(t, err)

	next, err := repo.List(context.Background(), pagination.Pagination{Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, next, 1)
	require.Equal(t, "11", next[0].ID)
}
