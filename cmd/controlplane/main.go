package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/db"
	"licensing-controlplane/pkg/gen"
	"licensing-controlplane/pkg/health"
	"licensing-controlplane/pkg/httpapi"
	"licensing-controlplane/pkg/logger"
	"licensing-controlplane/pkg/mailer"
	"licensing-controlplane/pkg/otelcol"
	"licensing-controlplane/pkg/profiling"
	"licensing-controlplane/pkg/redis"
	"licensing-controlplane/pkg/server"
	pkgtask "licensing-controlplane/pkg/task"
	"licensing-controlplane/services/bootstrap"
	"licensing-controlplane/services/catalog"
	"licensing-controlplane/services/client"
	"licensing-controlplane/services/license"
	"licensing-controlplane/services/notification"
	"licensing-controlplane/services/task"
)

func main() {
	opts := []fx.Option{
		config.VaultModule,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		pkgtask.Client,
		gen.Module,
		mailer.Module,
		bootstrap.Module,
		health.Module,
		httpapi.Module,
		client.ServerModule,
		catalog.ServerModule,
		license.ServerModule,
		notification.Module,
		task.ServerModule,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
