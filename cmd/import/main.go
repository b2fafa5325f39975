package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/db"
	"licensing-controlplane/pkg/gen"
	"licensing-controlplane/pkg/logger"
	"licensing-controlplane/services/bootstrap"
	"licensing-controlplane/services/client"
	"licensing-controlplane/services/importer"
	"licensing-controlplane/services/license"
)

func main() {
	var opts importer.Options
	flags := pflag.NewFlagSet("import", pflag.ExitOnError)
	flags.BoolVar(&opts.Truncate, "truncate", false, "delete every client and license before importing")
	_ = flags.Parse(os.Args[1:])

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts importer.Options) error {
	var svc *importer.Service
	app := fx.New(
		config.VaultModule,
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		bootstrap.Module,
		license.Module,
		client.Module,
		importer.Module,
		fx.Populate(&svc),
		fxLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	res, err := svc.Import(context.Background(), opts)
	if err != nil {
		return err
	}

	zap.L().Info("clients imported",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int64("truncated", res.Truncated),
	)
	return nil
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
