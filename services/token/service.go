package token

import (
	"context"
	"time"

	"librix-licensing/pkg/errutil"
	"librix-licensing/pkg/security"
	"librix-licensing/services/corporation"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// tokenTTL bounds how long an issued client token stays valid. Expiry is
// exclusive: a token is dead at exactly tokenEndDate.
const tokenTTL = 20 * time.Minute

const (
	msgClientNotFound = "Client not found."
	msgTokenNotFound  = "Token not found."
)

// Issued is the result of a successful token grant.
type Issued struct {
	Token     string    `json:"token"`
	GivenAt   time.Time `json:"tokenGivenDate"`
	ExpiresAt time.Time `json:"tokenEndDate"`
}

type Service struct {
	repo corporation.Repository
}

type ServiceParams struct {
	fx.In
	Repo corporation.Repository
}

func NewService(p ServiceParams) *Service {
	return &Service{repo: p.Repo}
}

// Issue mints a fresh opaque token for an active, entitled consumer. Any
// previously issued token on the attachment is overwritten.
func (s *Service) Issue(ctx context.Context, consumerKey string) (*Issued, error) {
	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("consumer_key", consumerKey),
	)

	att, err := s.repo.ActiveAttachment(ctx, consumerKey)
	if err != nil {
		zapLog.Error("failed to load attachment", zap.Error(err))
		return nil, errutil.Internal("failed to issue token", err, errutil.WithErr(err))
	}
	if att == nil {
		return nil, errutil.NotFound(msgClientNotFound, nil)
	}

	corp, err := s.repo.GetByID(ctx, att.CorporationID)
	if err != nil {
		return nil, errutil.Internal("failed to issue token", err, errutil.WithErr(err))
	}
	if corp == nil || corp.Banned {
		return nil, errutil.NotFound(msgClientNotFound, nil)
	}

	period, err := s.repo.LastPeriod(ctx, att.ID)
	if err != nil {
		return nil, errutil.Internal("failed to issue token", err, errutil.WithErr(err))
	}

	now := time.Now()
	if period == nil || !period.EndDate.After(now) {
		// entitlement lapsed; no token for expired periods
		return nil, errutil.NotFound(msgClientNotFound, nil)
	}

	raw, err := security.GenerateOpaqueToken()
	if err != nil {
		return nil, errutil.Internal("failed to issue token", err, errutil.WithErr(err))
	}

	ok, err := s.repo.SetAttachmentToken(ctx, att.ID, raw, now, now.Add(tokenTTL))
	if err != nil {
		return nil, errutil.Internal("failed to issue token", err, errutil.WithErr(err))
	}
	if !ok {
		// attachment was unlinked between the read and the write
		return nil, errutil.NotFound(msgClientNotFound, nil)
	}

	zapLog.Info("token issued", zap.Time("token_end_date", now.Add(tokenTTL)))

	return &Issued{
		Token:     raw,
		GivenAt:   now,
		ExpiresAt: now.Add(tokenTTL),
	}, nil
}

// Validate resolves a presented token to its consumer key. Tokens on
// disabled attachments or at/past their end date do not resolve.
func (s *Service) Validate(ctx context.Context, raw string) (string, error) {
	att, err := s.repo.AttachmentByToken(ctx, raw, time.Now())
	if err != nil {
		return "", errutil.Internal("failed to validate token", err, errutil.WithErr(err))
	}
	if att == nil {
		return "", errutil.NotFound(msgTokenNotFound, nil)
	}
	return att.ConsumerKey, nil
}
