package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/db"
	"licensing-controlplane/pkg/featureflags"
	"licensing-controlplane/pkg/gen"
	"licensing-controlplane/pkg/logger"
	"licensing-controlplane/pkg/mailer"
	"licensing-controlplane/pkg/otelcol"
	"licensing-controlplane/pkg/profiling"
	"licensing-controlplane/pkg/redis"
	pkgtask "licensing-controlplane/pkg/task"
	"licensing-controlplane/pkg/taskname"
	"licensing-controlplane/services/bootstrap"
	"licensing-controlplane/services/license"
	"licensing-controlplane/services/notification"
	"licensing-controlplane/services/task"
)

func main() {
	var (
		run       string
		worker    bool
		scheduler bool
	)
	flags := pflag.NewFlagSet("task", pflag.ExitOnError)
	flags.StringVar(&run, "run", "", "run one task in-process and exit (expired, pending, refresh)")
	flags.BoolVar(&worker, "worker", true, "serve queued tasks")
	flags.BoolVar(&scheduler, "scheduler", true, "enqueue tasks on their cron schedules")
	_ = flags.Parse(os.Args[1:])

	base := []fx.Option{
		config.VaultModule,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		gen.Module,
		mailer.Module,
		bootstrap.Module,
		license.Module,
		notification.Module,
		task.Module,
		fxLogger,
	}

	if run != "" {
		if err := runOnce(base, run); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	opts := append(base, redis.Module, pkgtask.Client)
	if worker {
		opts = append(opts, pkgtask.Server, task.WorkerModule)
	}
	if scheduler {
		opts = append(opts, featureflags.Module, task.SchedulerModule)
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

func runOnce(opts []fx.Option, short string) error {
	name, ok := taskname.Lookup(short)
	if !ok {
		return fmt.Errorf("unknown task %q", short)
	}

	var svc *task.Service
	app := fx.New(append(opts, fx.Populate(&svc))...)

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

	run, err := svc.Run(context.Background(), name, "cli")
	if err != nil {
		return err
	}
	zap.L().Info("task completed", zap.String("task", name), zap.String("run_id", run.ID), zap.ByteString("result", run.Metadata))
	return nil
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
