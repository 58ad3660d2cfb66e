package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ogurasousui/staff-status-engine/internal/adapters/scheduler"
	"github.com/ogurasousui/staff-status-engine/internal/app"
	"github.com/ogurasousui/staff-status-engine/internal/platform/config"
	"github.com/ogurasousui/staff-status-engine/internal/platform/logging"
	"github.com/ogurasousui/staff-status-engine/internal/platform/metrics"
	"github.com/ogurasousui/staff-status-engine/internal/platform/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := config.LoadEnvFiles(".env", ".env.local"); err != nil {
		logrus.Fatalf("failed to load env files: %v", err)
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "assets/local.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		logrus.Fatalf("failed to initialize logger: %v", err)
	}
	log := logging.Component(logger, "server")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	application, err := app.Build(ctx, cfg, logger, m, nil)
	if err != nil {
		log.WithError(err).Fatal("failed to build application")
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.WithError(err).Error("failed to close application")
		}
	}()

	grpcServer := server.New(cfg.Server.ListenAddr, logging.Component(logger, "grpc"))
	grpcServer.SetServing("", true)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(application.Status, scheduler.Options{
			Location: cfg.Engine.Location,
			Hour:     cfg.Scheduler.Hour,
			Minute:   cfg.Scheduler.Minute,
			CatchUp:  cfg.Scheduler.CatchUp,
			Metrics:  m,
			Logger:   logging.Component(logger, "scheduler"),
			OnRun: func(_ *scheduler.Run, err error) {
				grpcServer.SetServing(server.SchedulerService, err == nil)
			},
		})
		if err != nil {
			log.WithError(err).Fatal("failed to initialize scheduler")
		}
		grpcServer.SetServing(server.SchedulerService, true)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return grpcServer.Run(gctx)
	})
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics.ListenAddr, cfg.Metrics.Path, reg, logging.Component(logger, "metrics"))
		})
	}
	if sched != nil {
		sched.Start(gctx)
		defer sched.Stop()
	}

	log.WithFields(logrus.Fields{
		"storage":   cfg.Storage.Driver,
		"scheduler": cfg.Scheduler.Enabled,
	}).Info("staff status engine started")

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server stopped with error")
		return
	}
	log.Info("server stopped")
}
