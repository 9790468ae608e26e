package main

import (
	"log"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"librix-licensing/pkg/config"
	"librix-licensing/pkg/db"
	"librix-licensing/pkg/gen"
	"librix-licensing/pkg/logger"
	"librix-licensing/pkg/task"
	"librix-licensing/services/corporation"
	"librix-licensing/services/token"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		task.Client,
		task.Server,
		fx.Provide(corporation.NewRepository),
		token.TaskModule,
		fx.Invoke(registerHandlers),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func registerHandlers(mux *asynq.ServeMux, t *token.Task) {
	token.RegisterHandlers(mux, t)
}
