package corporation

import (
	"context"

	"librix-licensing/services/license"

	"go.uber.org/fx"
)

var Module = fx.Module("corporation.module",
	fx.Provide(
		NewRepository,
		NewLicensePool,
		NewService,
	),
)

type licensePool struct {
	svc *license.Service
}

// NewLicensePool adapts the license service to the inventory interface the
// corporation service consumes.
func NewLicensePool(svc *license.Service) LicensePool {
	return &licensePool{svc: svc}
}

func (p *licensePool) AcquireFree(ctx context.Context) (string, error) {
	l, err := p.svc.AcquireFree(ctx)
	if err != nil {
		return "", err
	}
	return l.LicenseKey, nil
}

func (p *licensePool) Acquire(ctx context.Context, key string) (string, error) {
	l, err := p.svc.Acquire(ctx, key)
	if err != nil {
		return "", err
	}
	return l.LicenseKey, nil
}

func (p *licensePool) Release(ctx context.Context, key string) error {
	return p.svc.Release(ctx, key)
}
