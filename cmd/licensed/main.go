package main

import (
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"librix-licensing/internal/httpapi"
	"librix-licensing/pkg/config"
	"librix-licensing/pkg/db"
	"librix-licensing/pkg/gen"
	"librix-licensing/pkg/health"
	"librix-licensing/pkg/logger"
	"librix-licensing/pkg/redis"
	"librix-licensing/pkg/server"
	"librix-licensing/services/app"
	"librix-licensing/services/corporation"
	"librix-licensing/services/license"
	"librix-licensing/services/token"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		fx.Provide(provideTracerProvider),
		fx.Invoke(
			migrate,
			db.Otel,
			db.Metric,
		),
		license.Module,
		corporation.Module,
		token.Module,
		app.Module,
		health.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
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

func provideTracerProvider() trace.TracerProvider {
	return otel.GetTracerProvider()
}

func migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(&license.License{}, &app.RegisteredApp{}); err != nil {
		return err
	}
	return corporation.Migrate(conn)
}
