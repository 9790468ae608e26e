package app

import (
	"librix-licensing/pkg/repository"

	"go.uber.org/fx"
)

var Module = fx.Module("app.module",
	fx.Provide(
		repository.ProvideStore[RegisteredApp],
		NewService,
	),
)
