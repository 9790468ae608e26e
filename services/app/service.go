package app

import (
	"context"
	"time"

	"librix-licensing/pkg/config"
	"librix-licensing/pkg/errutil"
	"librix-licensing/pkg/repository"
	"librix-licensing/pkg/security"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const msgAppNotFound = "App not found."

// Created carries the one-time plaintext key returned at registration.
type Created struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	AppKey string   `json:"appKey"`
	Scopes []string `json:"scopes"`
}

type Service struct {
	cfg  *config.Config
	node *snowflake.Node
	repo repository.Repository[RegisteredApp]
}

type ServiceParams struct {
	fx.In
	Config *config.Config
	Node   *snowflake.Node
	Repo   repository.Repository[RegisteredApp]
}

func NewService(p ServiceParams) *Service {
	return &Service{
		cfg:  p.Config,
		node: p.Node,
		repo: p.Repo,
	}
}

// Create registers an application and returns its key exactly once. Only
// the argon2 hash is persisted.
func (s *Service) Create(ctx context.Context, name string, scopes []string) (*Created, error) {
	if name == "" {
		return nil, errutil.ValidationFailed("name is required", nil)
	}

	appKey, err := security.GenerateBase64Secret(32)
	if err != nil {
		return nil, errutil.Internal("failed to create app", err, errutil.WithErr(err))
	}

	hash, err := security.HashArgon2(appKey)
	if err != nil {
		return nil, errutil.Internal("failed to create app", err, errutil.WithErr(err))
	}

	now := time.Now()
	record := &RegisteredApp{
		ID:         s.node.Generate().String(),
		CreatedAt:  now,
		UpdatedAt:  now,
		Name:       name,
		AppKeyHash: hash,
		Scopes:     scopes,
		Status:     StatusActive,
	}

	if err := s.repo.Create(ctx, record); err != nil {
		zap.L().Error("failed to create app", zap.Error(err), zap.String("name", name))
		return nil, errutil.Internal("failed to create app", err, errutil.WithErr(err))
	}

	return &Created{
		ID:     record.ID,
		Name:   record.Name,
		AppKey: appKey,
		Scopes: scopes,
	}, nil
}

// Authenticate verifies an app id and key and mints a session token. All
// failure modes collapse into the same response so callers cannot probe
// which apps exist.
func (s *Service) Authenticate(ctx context.Context, appID, appKey string) (string, error) {
	record, err := s.repo.FindOne(ctx, &RegisteredApp{ID: appID})
	if err != nil {
		zap.L().Error("failed to load app", zap.Error(err), zap.String("app_id", appID))
		return "", errutil.Internal("failed to authenticate app", err, errutil.WithErr(err))
	}
	if record == nil || record.Status != StatusActive {
		return "", errutil.Unauthorized(msgAppNotFound, nil)
	}

	if !security.VerifyArgon2(appKey, record.AppKeyHash) {
		return "", errutil.Unauthorized(msgAppNotFound, nil)
	}

	session, err := security.SignSession(s.cfg.Session.Secret, record.ID, record.Scopes, s.cfg.Session.TTL)
	if err != nil {
		return "", errutil.Internal("failed to authenticate app", err, errutil.WithErr(err))
	}

	return session, nil
}
