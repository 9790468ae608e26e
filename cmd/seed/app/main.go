package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"librix-licensing/pkg/config"
	"librix-licensing/pkg/db"
	"librix-licensing/pkg/gen"
	"librix-licensing/pkg/logger"
	"librix-licensing/services/app"
)

var (
	name   = flag.String("name", "", "application name")
	scopes = flag.String("scopes", "client", "comma-separated scopes")
)

func main() {
	flag.Parse()

	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		app.Module,
		fx.Invoke(migrate, seed),
		fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
			return fxevent.NopLogger
		}),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

func migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(&app.RegisteredApp{})
}

func seed(svc *app.Service, shutdowner fx.Shutdowner) error {
	defer func() {
		_ = shutdowner.Shutdown()
	}()

	created, err := svc.Create(context.Background(), *name, strings.Split(*scopes, ","))
	if err != nil {
		zap.L().Error("failed to register app", zap.Error(err))
		return err
	}

	// the plaintext key is printed once and never stored
	fmt.Printf("app id:  %s\napp key: %s\n", created.ID, created.AppKey)
	return nil
}
