package license

import (
	"go.uber.org/fx"
)

var Module = fx.Module("license.module",
	fx.Provide(
		NewRepository,
		NewService,
	),
)
