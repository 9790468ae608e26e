package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"librix-licensing/pkg/config"
	"librix-licensing/pkg/db"
	"librix-licensing/pkg/gen"
	"librix-licensing/pkg/logger"
	"librix-licensing/pkg/security"
	"librix-licensing/services/license"
)

const chunkSize = 500

var (
	keyFile  = flag.String("file", "", "load license keys from file, one per line")
	keyCount = flag.Int("count", 0, "generate this many random license keys")
	prefix   = flag.String("prefix", "LIC", "prefix for generated keys")
)

func main() {
	flag.Parse()

	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		license.Module,
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
	return conn.AutoMigrate(&license.License{})
}

func seed(svc *license.Service, shutdowner fx.Shutdowner) error {
	defer func() {
		_ = shutdowner.Shutdown()
	}()

	keys, err := collectKeys()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("nothing to seed: pass -file or -count")
	}

	ctx := context.Background()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for start := 0; start < len(keys); start += chunkSize {
		end := start + chunkSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		g.Go(func() error {
			return svc.CreateBatch(ctx, chunk)
		})
	}

	if err := g.Wait(); err != nil {
		zap.L().Error("license key seed failed", zap.Error(err))
		return err
	}

	zap.L().Info("license keys seeded", zap.Int("count", len(keys)))
	return nil
}

func collectKeys() ([]string, error) {
	if *keyFile != "" {
		return readKeys(*keyFile)
	}

	keys := make([]string, 0, *keyCount)
	for i := 0; i < *keyCount; i++ {
		raw, err := security.GenerateOpaqueToken()
		if err != nil {
			return nil, err
		}
		keys = append(keys, fmt.Sprintf("%s-%s", *prefix, strings.ToUpper(raw[:20])))
	}
	return keys, nil
}

func readKeys(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var keys []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key := strings.TrimSpace(scanner.Text())
		if key != "" {
			keys = append(keys, key)
		}
	}
	return keys, scanner.Err()
}
