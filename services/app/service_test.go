package app

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"librix-licensing/pkg/config"
	"librix-licensing/pkg/db/option"
	"librix-licensing/pkg/errutil"
	"librix-licensing/pkg/repository"
	"librix-licensing/pkg/security"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockStore struct {
	createFn  func(ctx context.Context, entity *RegisteredApp) error
	findOneFn func(ctx context.Context, query *RegisteredApp, opts ...option.QueryOption) (*RegisteredApp, error)
}

func (m *mockStore) WithTrx(*gorm.DB) repository.Repository[RegisteredApp] { return m }

func (m *mockStore) Find(context.Context, *RegisteredApp, ...option.QueryOption) ([]*RegisteredApp, error) {
	return nil, nil
}

func (m *mockStore) FindOne(ctx context.Context, query *RegisteredApp, opts ...option.QueryOption) (*RegisteredApp, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *mockStore) Create(ctx context.Context, entity *RegisteredApp) error {
	if m.createFn != nil {
		return m.createFn(ctx, entity)
	}
	return nil
}

func (m *mockStore) Update(context.Context, string, any) error            { return nil }
func (m *mockStore) BatchCreate(context.Context, []*RegisteredApp) error  { return nil }
func (m *mockStore) Count(context.Context, *RegisteredApp) (int64, error) { return 0, nil }

func newTestService(t *testing.T, store repository.Repository[RegisteredApp]) *Service {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Session.Secret = "test-session-secret"
	cfg.Session.TTL = 24 * time.Hour

	return &Service{
		cfg:  cfg,
		node: node,
		repo: store,
	}
}

func TestCreateAndAuthenticate(t *testing.T) {
	var stored *RegisteredApp
	store := &mockStore{
		createFn: func(_ context.Context, entity *RegisteredApp) error {
			stored = entity
			return nil
		},
		findOneFn: func(_ context.Context, query *RegisteredApp, _ ...option.QueryOption) (*RegisteredApp, error) {
			if stored != nil && query.ID == stored.ID {
				return stored, nil
			}
			return nil, nil
		},
	}
	svc := newTestService(t, store)

	created, err := svc.Create(context.Background(), "reader-app", []string{"client"})
	require.NoError(t, err)
	require.NotEmpty(t, created.AppKey)
	require.NotEqual(t, created.AppKey, stored.AppKeyHash)

	session, err := svc.Authenticate(context.Background(), created.ID, created.AppKey)
	require.NoError(t, err)

	claims, err := security.VerifySession("test-session-secret", session)
	require.NoError(t, err)
	require.Equal(t, created.ID, claims.AppID)
	require.Equal(t, []string{"client"}, claims.Scopes)
}

func TestCreateRequiresName(t *testing.T) {
	svc := newTestService(t, &mockStore{})

	_, err := svc.Create(context.Background(), "", nil)
	var base errutil.BaseError
	require.ErrorAs(t, err, &base)
	require.Equal(t, errutil.StatusValidationFailed, base.Code)
}

func TestAuthenticateUnknownApp(t *testing.T) {
	svc := newTestService(t, &mockStore{})

	_, err := svc.Authenticate(context.Background(), "missing", "key")
	var base errutil.BaseError
	require.ErrorAs(t, err, &base)
	require.Equal(t, errutil.StatusUnauthorized, base.Code)
	require.Equal(t, "App not found.", base.Message)
}

func TestAuthenticateWrongKey(t *testing.T) {
	hash, err := security.HashArgon2("right-key")
	require.NoError(t, err)

	store := &mockStore{
		findOneFn: func(context.Context, *RegisteredApp, ...option.QueryOption) (*RegisteredApp, error) {
			return &RegisteredApp{ID: "app-1", AppKeyHash: hash, Status: StatusActive}, nil
		},
	}
	svc := newTestService(t, store)

	_, err = svc.Authenticate(context.Background(), "app-1", "wrong-key")
	var base errutil.BaseError
	require.ErrorAs(t, err, &base)
	require.Equal(t, errutil.StatusUnauthorized, base.Code)
}

func TestAuthenticateRevokedApp(t *testing.T) {
	hash, err := security.HashArgon2("right-key")
	require.NoError(t, err)

	store := &mockStore{
		findOneFn: func(context.Context, *RegisteredApp, ...option.QueryOption) (*RegisteredApp, error) {
			return &RegisteredApp{ID: "app-1", AppKeyHash: hash, Status: StatusRevoked}, nil
		},
	}
	svc := newTestService(t, store)

	_, err = svc.Authenticate(context.Background(), "app-1", "right-key")
	var base errutil.BaseError
	require.ErrorAs(t, err, &base)
	require.Equal(t, errutil.StatusUnauthorized, base.Code)
}
