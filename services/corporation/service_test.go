package corporation

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"librix-licensing/pkg/errutil"
	"librix-licensing/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakePool struct {
	free     map[string]bool
	acquired []string
	released []string
}

func newFakePool(keys ...string) *fakePool {
	free := make(map[string]bool, len(keys))
	for _, key := range keys {
		free[key] = true
	}
	return &fakePool{free: free}
}

func (p *fakePool) AcquireFree(context.Context) (string, error) {
	for key := range p.free {
		delete(p.free, key)
		p.acquired = append(p.acquired, key)
		return key, nil
	}
	return "", errutil.ResourceExhausted("License keys over.", nil)
}

func (p *fakePool) Acquire(_ context.Context, key string) (string, error) {
	if !p.free[key] {
		return "", errutil.NotFound("License key not found.", nil)
	}
	delete(p.free, key)
	p.acquired = append(p.acquired, key)
	return key, nil
}

func (p *fakePool) Release(_ context.Context, key string) error {
	p.free[key] = true
	p.released = append(p.released, key)
	return nil
}

func newTestService(t *testing.T, keys ...string) (*Service, *fakePool, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t)
	require.NoError(t, Migrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	pool := newFakePool(keys...)
	svc := &Service{
		node: node,
		repo: NewRepository(db),
		pool: pool,
	}
	return svc, pool, db
}

func strptr(s string) *string { return &s }

func seedCorporation(t *testing.T, svc *Service, code string, banned bool) {
	t.Helper()
	require.NoError(t, svc.Create(context.Background(), UpdateInput{
		Code:        code,
		Description: strptr("test corporation"),
		Town:        strptr("Reykjavik"),
		City:        strptr("Reykjavik"),
	}))
	if banned {
		flag := true
		require.NoError(t, svc.UpdateByCode(context.Background(), code, AdminUpdateInput{
			UpdateInput: UpdateInput{Code: code},
			Banned:      &flag,
		}))
	}
}

func requireStatus(t *testing.T, err error, want errutil.CoreStatus, msg string) {
	t.Helper()
	var base errutil.BaseError
	require.ErrorAs(t, err, &base)
	require.Equal(t, want, base.Code)
	require.Equal(t, msg, base.Message)
}

func TestCreateRequiresCode(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.Create(context.Background(), UpdateInput{Description: strptr("no code")})
	requireStatus(t, err, errutil.StatusValidationFailed, "Code unspecified.")
}

func TestCreateDuplicateCode(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedCorporation(t, svc, "ACME", false)

	err := svc.Create(context.Background(), UpdateInput{Code: "ACME"})
	requireStatus(t, err, errutil.StatusConflict, "Code already used.")
}

func TestGetUnknownCorporation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "NOPE")
	requireStatus(t, err, errutil.StatusNotFound, "Corporation not found.")
}

func TestGetCountsOnlyActiveClients(t *testing.T) {
	svc, _, _ := newTestService(t, "KEY-A", "KEY-B")
	seedCorporation(t, svc, "ACME", false)

	_, err := svc.GrantDemo(context.Background(), "consumer-1", "ACME")
	require.NoError(t, err)
	_, err = svc.GrantDemo(context.Background(), "consumer-2", "ACME")
	require.NoError(t, err)
	require.NoError(t, svc.Unlink(context.Background(), "consumer-2"))

	view, err := svc.Get(context.Background(), "ACME")
	require.NoError(t, err)
	require.EqualValues(t, 1, view.ActiveClients)
}

func TestGrantDemoThirtyDayPeriod(t *testing.T) {
	svc, pool, _ := newTestService(t, "KEY-A")
	seedCorporation(t, svc, "ACME", false)

	grant, err := svc.GrantDemo(context.Background(), "consumer-1", "ACME")
	require.NoError(t, err)
	require.Equal(t, "KEY-A", grant.LicenseKey)
	require.Equal(t, 30*24*time.Hour, grant.EndDate.Sub(grant.BegDate))
	require.GreaterOrEqual(t, grant.RemainDays, 29)
	require.LessOrEqual(t, grant.RemainDays, 30)
	require.Equal(t, []string{"KEY-A"}, pool.acquired)

	status, err := svc.GetClientStatus(context.Background(), "consumer-1")
	require.NoError(t, err)
	require.True(t, status.IsDemo)
	require.Equal(t, "ACME", status.Code)
}

func TestGrantDemoWhileActiveAnywhere(t *testing.T) {
	svc, _, _ := newTestService(t, "KEY-A", "KEY-B")
	seedCorporation(t, svc, "ACME", false)
	seedCorporation(t, svc, "OTHER", false)

	_, err := svc.GrantDemo(context.Background(), "consumer-1", "ACME")
	require.NoError(t, err)

	_, err = svc.GrantDemo(context.Background(), "consumer-1", "OTHER")
	requireStatus(t, err, errutil.StatusConflict, "Client not suitable for demo.")
}

func TestGrantDemoBannedCorporation(t *testing.T) {
	svc, _, _ := newTestService(t, "KEY-A")
	seedCorporation(t, svc, "ACME", true)

	_, err := svc.GrantDemo(context.Background(), "consumer-1", "ACME")
	requireStatus(t, err, errutil.StatusNotFound, "Corporation not found.")
}

func TestGrantDemoExhaustedPool(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedCorporation(t, svc, "ACME", false)

	_, err := svc.GrantDemo(context.Background(), "consumer-1", "ACME")
	var base errutil.BaseError
	require.ErrorAs(t, err, &base)
	require.Equal(t, errutil.StatusResourceExhausted, base.Code)
}

type failingRepo struct {
	Repository
	appendErr error
}

func (f *failingRepo) AppendAttachment(context.Context, *ClientAttachment, *EntitlementPeriod) error {
	return f.appendErr
}

func TestGrantDemoReleasesKeyWhenPersistFails(t *testing.T) {
	svc, pool, _ := newTestService(t, "KEY-A")
	seedCorporation(t, svc, "ACME", false)
	svc.repo = &failingRepo{Repository: svc.repo, appendErr: gorm.ErrDuplicatedKey}

	_, err := svc.GrantDemo(context.Background(), "consumer-1", "ACME")
	requireStatus(t, err, errutil.StatusConflict, "Client not suitable for demo.")
	require.Equal(t, []string{"KEY-A"}, pool.released)
}

func TestLinkYearPeriod(t *testing.T) {
	svc, _, _ := newTestService(t, "KEY-A")
	seedCorporation(t, svc, "ACME", false)

	require.NoError(t, svc.Link(context.Background(), "consumer-1", "ACME", "KEY-A"))

	status, err := svc.GetClientStatus(context.Background(), "consumer-1")
	require.NoError(t, err)
	require.Equal(t, "KEY-A", status.LicenseKey)
	require.False(t, status.IsDemo)
	require.Equal(t, 365*24*time.Hour, status.EndDate.Sub(status.BegDate))
}

func TestLinkUnknownKey(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedCorporation(t, svc, "ACME", false)

	err := svc.Link(context.Background(), "consumer-1", "ACME", "KEY-MISSING")
	requireStatus(t, err, errutil.StatusNotFound, "License key not found.")
}

func TestLinkWhileActive(t *testing.T) {
	svc, _, _ := newTestService(t, "KEY-A", "KEY-B")
	seedCorporation(t, svc, "ACME", false)

	require.NoError(t, svc.Link(context.Background(), "consumer-1", "ACME", "KEY-A"))

	err := svc.Link(context.Background(), "consumer-1", "ACME", "KEY-B")
	requireStatus(t, err, errutil.StatusConflict, "Client already linked to another corporation.")
}

func TestLinkResumesPriorWindow(t *testing.T) {
	svc, pool, _ := newTestService(t, "KEY-A")
	seedCorporation(t, svc, "ACME", false)
	seedCorporation(t, svc, "OTHER", false)

	require.NoError(t, svc.Link(context.Background(), "consumer-1", "ACME", "KEY-A"))

	first, err := svc.GetClientStatus(context.Background(), "consumer-1")
	require.NoError(t, err)

	require.NoError(t, svc.Unlink(context.Background(), "consumer-1"))
	require.Equal(t, []string{"KEY-A"}, pool.released)

	// a different consumer at a different corporation resumes the window
	require.NoError(t, svc.Link(context.Background(), "consumer-2", "OTHER", "KEY-A"))

	second, err := svc.GetClientStatus(context.Background(), "consumer-2")
	require.NoError(t, err)
	require.True(t, second.BegDate.Equal(first.BegDate))
	require.True(t, second.EndDate.Equal(first.EndDate))
}

func TestUnlinkWithoutActiveAttachment(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.Unlink(context.Background(), "consumer-1")
	requireStatus(t, err, errutil.StatusNotFound, "Client not found.")
}

func TestUnlinkTwice(t *testing.T) {
	svc, _, _ := newTestService(t, "KEY-A")
	seedCorporation(t, svc, "ACME", false)

	_, err := svc.GrantDemo(context.Background(), "consumer-1", "ACME")
	require.NoError(t, err)

	require.NoError(t, svc.Unlink(context.Background(), "consumer-1"))

	err = svc.Unlink(context.Background(), "consumer-1")
	requireStatus(t, err, errutil.StatusNotFound, "Client not found.")
}

func TestUnlinkedKeyCanBeReacquired(t *testing.T) {
	svc, pool, _ := newTestService(t, "KEY-A")
	seedCorporation(t, svc, "ACME", false)

	require.NoError(t, svc.Link(context.Background(), "consumer-1", "ACME", "KEY-A"))
	require.NoError(t, svc.Unlink(context.Background(), "consumer-1"))
	require.True(t, pool.free["KEY-A"])
}

func TestUpdateForConsumerNotLinked(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.UpdateForConsumer(context.Background(), "consumer-1", UpdateInput{Code: "ACME"})
	requireStatus(t, err, errutil.StatusNotFound, "Client not found.")
}

func TestUpdateForConsumerCodeCollision(t *testing.T) {
	svc, _, _ := newTestService(t, "KEY-A")
	seedCorporation(t, svc, "ACME", false)
	seedCorporation(t, svc, "OTHER", false)

	_, err := svc.GrantDemo(context.Background(), "consumer-1", "ACME")
	require.NoError(t, err)

	err = svc.UpdateForConsumer(context.Background(), "consumer-1", UpdateInput{Code: "OTHER"})
	requireStatus(t, err, errutil.StatusConflict, "Code already used.")
}

func TestUpdateForConsumerKeepingOwnCode(t *testing.T) {
	svc, _, _ := newTestService(t, "KEY-A")
	seedCorporation(t, svc, "ACME", false)

	_, err := svc.GrantDemo(context.Background(), "consumer-1", "ACME")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateForConsumer(context.Background(), "consumer-1", UpdateInput{
		Code: "ACME",
		Town: strptr("Akureyri"),
	}))

	view, err := svc.Get(context.Background(), "ACME")
	require.NoError(t, err)
	require.Equal(t, "Akureyri", view.Town)

	// fields absent from the update keep their stored values
	require.Equal(t, "test corporation", view.Description)
	require.Equal(t, "Reykjavik", view.City)
}

func TestAdminUpdateTogglesBan(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedCorporation(t, svc, "ACME", false)

	flag := true
	require.NoError(t, svc.UpdateByCode(context.Background(), "ACME", AdminUpdateInput{
		UpdateInput: UpdateInput{Code: "ACME"},
		Banned:      &flag,
	}))

	view, err := svc.Get(context.Background(), "ACME")
	require.NoError(t, err)
	require.True(t, view.Banned)
}
