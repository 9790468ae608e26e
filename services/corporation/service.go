package corporation

import (
	"context"
	"errors"
	"time"

	"librix-licensing/pkg/db/pagination"
	"librix-licensing/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// Demo grants run 30 days, paid links 365, unless the continuity rule
	// resumes a prior window.
	demoDuration    = 30 * 24 * time.Hour
	licenseDuration = 365 * 24 * time.Hour
)

const (
	msgCodeUnspecified     = "Code unspecified."
	msgCodeAlreadyUsed     = "Code already used."
	msgCorporationNotFound = "Corporation not found."
	msgClientNotFound      = "Client not found."
	msgClientNotSuitable   = "Client not suitable for demo."
	msgClientAlreadyLinked = "Client already linked to another corporation."
)

// LicensePool is the inventory collaborator. Implemented by the license
// service; acquisition is atomic under concurrent callers.
type LicensePool interface {
	AcquireFree(ctx context.Context) (string, error)
	Acquire(ctx context.Context, key string) (string, error)
	Release(ctx context.Context, key string) error
}

// View is the public-safe corporation projection.
type View struct {
	Code          string `json:"code"`
	Description   string `json:"description"`
	Town          string `json:"town"`
	City          string `json:"city"`
	Banned        bool   `json:"banned"`
	ActiveClients int64  `json:"activeClients"`
}

// Grant is the outcome of a successful demo grant.
type Grant struct {
	LicenseKey string    `json:"licenseKey"`
	BegDate    time.Time `json:"begDate"`
	EndDate    time.Time `json:"endDate"`
	RemainDays int       `json:"remainDays"`
}

// ClientStatus is the linked-consumer projection returned to status queries.
type ClientStatus struct {
	Code        string    `json:"code"`
	Description string    `json:"description"`
	Town        string    `json:"town"`
	City        string    `json:"city"`
	Banned      bool      `json:"banned"`
	LicenseKey  string    `json:"licenseKey"`
	BegDate     time.Time `json:"begDate"`
	EndDate     time.Time `json:"endDate"`
	IsDemo      bool      `json:"isDemo"`
	RemainDays  int       `json:"remainDays"`
}

// UpdateInput is the restricted field set a linked client may change on its
// own corporation. Nil fields are left untouched; only code is mandatory.
type UpdateInput struct {
	Code        string
	Description *string
	Town        *string
	City        *string
}

// AdminUpdateInput additionally allows toggling the ban flag.
type AdminUpdateInput struct {
	UpdateInput
	Banned *bool
}

type Service struct {
	node *snowflake.Node
	repo Repository
	pool LicensePool
}

type ServiceParams struct {
	fx.In
	Node *snowflake.Node
	Repo Repository
	Pool LicensePool
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node: p.Node,
		repo: p.Repo,
		pool: p.Pool,
	}
}

func traceLogger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}

// Create registers a new corporation. Code is required and globally unique;
// the storage layer backs the check with a unique index.
func (s *Service) Create(ctx context.Context, in UpdateInput) error {
	zapLog := traceLogger(ctx)

	if in.Code == "" {
		return errutil.ValidationFailed(msgCodeUnspecified, nil)
	}

	taken, err := s.repo.CodeTaken(ctx, in.Code, "")
	if err != nil {
		zapLog.Error("failed to check corporation code", zap.Error(err))
		return errutil.Internal("failed to create corporation", err, errutil.WithErr(err))
	}
	if taken {
		return errutil.Conflict(msgCodeAlreadyUsed, nil)
	}

	now := time.Now()
	corp := &Corporation{
		ID:          s.node.Generate().String(),
		CreatedAt:   now,
		UpdatedAt:   now,
		Code:        in.Code,
		Description: deref(in.Description),
		Town:        deref(in.Town),
		City:        deref(in.City),
	}

	if err := s.repo.Create(ctx, corp); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errutil.Conflict(msgCodeAlreadyUsed, nil)
		}
		zapLog.Error("failed to create corporation", zap.Error(err), zap.String("code", in.Code))
		return errutil.Internal("failed to create corporation", err, errutil.WithErr(err))
	}

	zapLog.Info("corporation created", zap.String("code", in.Code))
	return nil
}

// Get returns the public-safe view plus the derived active-client count.
func (s *Service) Get(ctx context.Context, code string) (*View, error) {
	corp, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		traceLogger(ctx).Error("failed to get corporation", zap.Error(err), zap.String("code", code))
		return nil, errutil.Internal("failed to get corporation", err, errutil.WithErr(err))
	}
	if corp == nil {
		return nil, errutil.NotFound(msgCorporationNotFound, nil)
	}

	active, err := s.repo.CountActiveClients(ctx, corp.ID)
	if err != nil {
		return nil, errutil.Internal("failed to get corporation", err, errutil.WithErr(err))
	}

	return &View{
		Code:          corp.Code,
		Description:   corp.Description,
		Town:          corp.Town,
		City:          corp.City,
		Banned:        corp.Banned,
		ActiveClients: active,
	}, nil
}

// List pages through the directory for administrative callers.
func (s *Service) List(ctx context.Context, p pagination.Pagination) ([]*View, *pagination.PageInfo, error) {
	corps, err := s.repo.List(ctx, p)
	if err != nil {
		traceLogger(ctx).Error("failed to list corporations", zap.Error(err))
		return nil, nil, errutil.Internal("failed to list corporations", err, errutil.WithErr(err))
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}
	pageInfo := pagination.BuildCursorPageInfo(corps, int32(limit), func(c *Corporation) string {
		cursor, _ := pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: c.CreatedAt.Format(time.RFC3339Nano),
			ID:        c.ID,
		})
		return cursor
	})
	if len(corps) > limit {
		corps = corps[:limit]
	}

	out := make([]*View, 0, len(corps))
	for _, corp := range corps {
		active, err := s.repo.CountActiveClients(ctx, corp.ID)
		if err != nil {
			return nil, nil, errutil.Internal("failed to list corporations", err, errutil.WithErr(err))
		}
		out = append(out, &View{
			Code:          corp.Code,
			Description:   corp.Description,
			Town:          corp.Town,
			City:          corp.City,
			Banned:        corp.Banned,
			ActiveClients: active,
		})
	}

	return out, pageInfo, nil
}

// UpdateForConsumer is the self-service update path: the caller must own an
// active attachment on the corporation being updated.
func (s *Service) UpdateForConsumer(ctx context.Context, consumerKey string, in UpdateInput) error {
	if in.Code == "" {
		return errutil.ValidationFailed(msgCodeUnspecified, nil)
	}

	att, err := s.repo.ActiveAttachment(ctx, consumerKey)
	if err != nil {
		return errutil.Internal("failed to update corporation", err, errutil.WithErr(err))
	}
	if att == nil {
		return errutil.NotFound(msgClientNotFound, nil)
	}

	return s.applyUpdate(ctx, att.CorporationID, in, nil)
}

// UpdateByCode is the administrative update path; it may toggle the ban flag.
func (s *Service) UpdateByCode(ctx context.Context, code string, in AdminUpdateInput) error {
	if in.Code == "" {
		return errutil.ValidationFailed(msgCodeUnspecified, nil)
	}

	corp, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return errutil.Internal("failed to update corporation", err, errutil.WithErr(err))
	}
	if corp == nil {
		return errutil.NotFound(msgCorporationNotFound, nil)
	}

	return s.applyUpdate(ctx, corp.ID, in.UpdateInput, in.Banned)
}

func (s *Service) applyUpdate(ctx context.Context, corporationID string, in UpdateInput, banned *bool) error {
	zapLog := traceLogger(ctx)

	taken, err := s.repo.CodeTaken(ctx, in.Code, corporationID)
	if err != nil {
		return errutil.Internal("failed to update corporation", err, errutil.WithErr(err))
	}
	if taken {
		return errutil.Conflict(msgCodeAlreadyUsed, nil)
	}

	// merge semantics: absent fields keep their stored value
	values := map[string]any{
		"code":       in.Code,
		"updated_at": time.Now(),
	}
	if in.Description != nil {
		values["description"] = *in.Description
	}
	if in.Town != nil {
		values["town"] = *in.Town
	}
	if in.City != nil {
		values["city"] = *in.City
	}
	if banned != nil {
		values["banned"] = *banned
	}

	if err := s.repo.UpdateFields(ctx, corporationID, values); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errutil.Conflict(msgCodeAlreadyUsed, nil)
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errutil.NotFound(msgCorporationNotFound, nil)
		}
		zapLog.Error("failed to update corporation", zap.Error(err))
		return errutil.Internal("failed to update corporation", err, errutil.WithErr(err))
	}

	return nil
}

// GrantDemo acquires a free license and attaches the consumer with a 30-day
// demo period. The consumer must not be active anywhere in the directory.
func (s *Service) GrantDemo(ctx context.Context, consumerKey, code string) (*Grant, error) {
	zapLog := traceLogger(ctx).With(
		zap.String("consumer_key", consumerKey),
		zap.String("code", code),
	)

	corp, err := s.guardNewAttachment(ctx, consumerKey, code, msgClientNotSuitable)
	if err != nil {
		return nil, err
	}

	key, err := s.pool.AcquireFree(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	period := &EntitlementPeriod{
		ID:        s.node.Generate().String(),
		CreatedAt: now,
		BegDate:   now,
		EndDate:   now.Add(demoDuration),
		IsDemo:    true,
	}

	if err := s.appendAttachment(ctx, corp.ID, consumerKey, key, period, msgClientNotSuitable); err != nil {
		return nil, err
	}

	zapLog.Info("demo granted", zap.String("license_key", key), zap.Time("end_date", period.EndDate))

	return &Grant{
		LicenseKey: key,
		BegDate:    period.BegDate,
		EndDate:    period.EndDate,
		RemainDays: remainDays(period.EndDate, now),
	}, nil
}

// Link attaches the consumer with an explicit license key. When the key was
// unlinked before, anywhere in the directory, the prior window resumes
// verbatim instead of granting a fresh 365-day term.
func (s *Service) Link(ctx context.Context, consumerKey, code, licenseKey string) error {
	zapLog := traceLogger(ctx).With(
		zap.String("consumer_key", consumerKey),
		zap.String("code", code),
		zap.String("license_key", licenseKey),
	)

	corp, err := s.guardNewAttachment(ctx, consumerKey, code, msgClientAlreadyLinked)
	if err != nil {
		return err
	}

	key, err := s.pool.Acquire(ctx, licenseKey)
	if err != nil {
		return err
	}

	now := time.Now()
	period := &EntitlementPeriod{
		ID:        s.node.Generate().String(),
		CreatedAt: now,
		BegDate:   now,
		EndDate:   now.Add(licenseDuration),
	}

	prior, err := s.repo.LastUnlinkedByLicense(ctx, key)
	if err != nil {
		s.compensateRelease(ctx, key, zapLog)
		return errutil.Internal("failed to link client", err, errutil.WithErr(err))
	}
	if prior != nil {
		last, err := s.repo.LastPeriod(ctx, prior.ID)
		if err != nil {
			s.compensateRelease(ctx, key, zapLog)
			return errutil.Internal("failed to link client", err, errutil.WithErr(err))
		}
		if last != nil {
			period.BegDate = last.BegDate
			period.EndDate = last.EndDate
		}
	}

	if err := s.appendAttachment(ctx, corp.ID, consumerKey, key, period, msgClientAlreadyLinked); err != nil {
		return err
	}

	zapLog.Info("client linked", zap.Time("end_date", period.EndDate))
	return nil
}

// Unlink soft-disables the consumer's single active attachment and returns
// its license key to the pool. Exactly one attachment transitions.
func (s *Service) Unlink(ctx context.Context, consumerKey string) error {
	zapLog := traceLogger(ctx).With(zap.String("consumer_key", consumerKey))

	att, err := s.repo.ActiveAttachment(ctx, consumerKey)
	if err != nil {
		return errutil.Internal("failed to unlink client", err, errutil.WithErr(err))
	}
	if att == nil {
		return errutil.NotFound(msgClientNotFound, nil)
	}

	disabled, err := s.repo.DisableAttachment(ctx, att.ID, time.Now())
	if err != nil {
		return errutil.Internal("failed to unlink client", err, errutil.WithErr(err))
	}
	if !disabled {
		// a concurrent unlink already took this attachment
		return errutil.NotFound(msgClientNotFound, nil)
	}

	if err := s.pool.Release(ctx, att.LicenseKey); err != nil {
		return err
	}

	zapLog.Info("client unlinked", zap.String("license_key", att.LicenseKey))
	return nil
}

// GetClientStatus returns the corporation profile, license key and governing
// period for an active consumer.
func (s *Service) GetClientStatus(ctx context.Context, consumerKey string) (*ClientStatus, error) {
	att, err := s.repo.ActiveAttachment(ctx, consumerKey)
	if err != nil {
		return nil, errutil.Internal("failed to get client", err, errutil.WithErr(err))
	}
	if att == nil {
		return nil, errutil.NotFound(msgClientNotFound, nil)
	}

	corp, err := s.repo.GetByID(ctx, att.CorporationID)
	if err != nil || corp == nil {
		return nil, errutil.Internal("failed to get client", err, errutil.WithErr(err))
	}

	period, err := s.repo.LastPeriod(ctx, att.ID)
	if err != nil {
		return nil, errutil.Internal("failed to get client", err, errutil.WithErr(err))
	}
	if period == nil {
		return nil, errutil.Internal("attachment has no entitlement period", nil)
	}

	return &ClientStatus{
		Code:        corp.Code,
		Description: corp.Description,
		Town:        corp.Town,
		City:        corp.City,
		Banned:      corp.Banned,
		LicenseKey:  att.LicenseKey,
		BegDate:     period.BegDate,
		EndDate:     period.EndDate,
		IsDemo:      period.IsDemo,
		RemainDays:  remainDays(period.EndDate, time.Now()),
	}, nil
}

// guardNewAttachment enforces the global at-most-one-active-attachment rule
// and resolves the target corporation, rejecting banned ones.
func (s *Service) guardNewAttachment(ctx context.Context, consumerKey, code, conflictMsg string) (*Corporation, error) {
	active, err := s.repo.ActiveAttachment(ctx, consumerKey)
	if err != nil {
		return nil, errutil.Internal("failed to check client", err, errutil.WithErr(err))
	}
	if active != nil {
		return nil, errutil.Conflict(conflictMsg, nil)
	}

	corp, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, errutil.Internal("failed to get corporation", err, errutil.WithErr(err))
	}
	if corp == nil || corp.Banned {
		return nil, errutil.NotFound(msgCorporationNotFound, nil)
	}

	return corp, nil
}

// appendAttachment persists the new attachment and releases the license key
// when the persist fails, so a flagged key is never leaked unattached.
func (s *Service) appendAttachment(ctx context.Context, corporationID, consumerKey, licenseKey string, period *EntitlementPeriod, conflictMsg string) error {
	now := time.Now()
	att := &ClientAttachment{
		ID:            s.node.Generate().String(),
		CreatedAt:     now,
		UpdatedAt:     now,
		CorporationID: corporationID,
		ConsumerKey:   consumerKey,
		LicenseKey:    licenseKey,
	}

	if err := s.repo.AppendAttachment(ctx, att, period); err != nil {
		s.compensateRelease(ctx, licenseKey, traceLogger(ctx))
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// the storage-level active-consumer constraint caught a racing link
			return errutil.Conflict(conflictMsg, nil)
		}
		return errutil.Internal("failed to attach client", err, errutil.WithErr(err))
	}

	return nil
}

func (s *Service) compensateRelease(ctx context.Context, key string, zapLog *zap.Logger) {
	if err := s.pool.Release(ctx, key); err != nil {
		zapLog.Error("failed to release license after aborted attach",
			zap.Error(err), zap.String("license_key", key))
	}
}

func remainDays(end, now time.Time) int {
	return int(end.Sub(now).Hours() / 24)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
