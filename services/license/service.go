package license

import (
	"context"
	"errors"
	"time"

	"librix-licensing/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	msgLicenseKeysOver    = "License keys over."
	msgLicenseKeyNotFound = "License key not found."
)

type Service struct {
	node *snowflake.Node
	repo Repository
}

type ServiceParams struct {
	fx.In
	Node *snowflake.Node
	Repo Repository
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node: p.Node,
		repo: p.Repo,
	}
}

// AcquireFree atomically selects one free key and flags it used.
func (s *Service) AcquireFree(ctx context.Context) (*License, error) {
	span := trace.SpanFromContext(ctx)

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	lic, err := s.repo.AcquireFree(ctx)
	if err != nil {
		if errors.Is(err, ErrContention) {
			zapLog.Warn("license pool under contention")
			return nil, errutil.Internal(msgLicenseKeysOver, err, errutil.WithErr(err))
		}
		zapLog.Error("failed to acquire free license", zap.Error(err))
		return nil, errutil.Internal("failed to acquire license", err, errutil.WithErr(err))
	}
	if lic == nil {
		zapLog.Warn("license pool exhausted")
		return nil, errutil.ResourceExhausted(msgLicenseKeysOver, nil)
	}

	return lic, nil
}

// Acquire flags a specific key used if it is still free.
func (s *Service) Acquire(ctx context.Context, key string) (*License, error) {
	lic, err := s.repo.Acquire(ctx, key)
	if err != nil {
		zap.L().Error("failed to acquire license", zap.Error(err), zap.String("license_key", key))
		return nil, errutil.Internal("failed to acquire license", err, errutil.WithErr(err))
	}
	if lic == nil {
		return nil, errutil.NotFound(msgLicenseKeyNotFound, nil)
	}

	return lic, nil
}

// Release returns a key to the free pool. Unknown keys are a no-op so that
// unlink never fails because the key record was removed out-of-band.
func (s *Service) Release(ctx context.Context, key string) error {
	if err := s.repo.Release(ctx, key); err != nil {
		zap.L().Error("failed to release license", zap.Error(err), zap.String("license_key", key))
		return errutil.Internal("failed to release license", err, errutil.WithErr(err))
	}
	return nil
}

// CreateBatch loads keys into the inventory. Used by the out-of-band seeder.
func (s *Service) CreateBatch(ctx context.Context, keys []string) error {
	now := time.Now()
	licenses := make([]*License, 0, len(keys))
	for _, key := range keys {
		licenses = append(licenses, &License{
			ID:         s.node.Generate().String(),
			CreatedAt:  now,
			UpdatedAt:  now,
			LicenseKey: key,
		})
	}

	if err := s.repo.BatchCreate(ctx, licenses); err != nil {
		zap.L().Error("failed to load license keys", zap.Error(err), zap.Int("count", len(keys)))
		return errutil.Internal("failed to load license keys", err, errutil.WithErr(err))
	}

	zap.L().Info("license keys loaded", zap.Int("count", len(keys)))
	return nil
}

func (s *Service) CountFree(ctx context.Context) (int64, error) {
	return s.repo.CountFree(ctx)
}
