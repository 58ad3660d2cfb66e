package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ogurasousui/staff-status-engine/internal/adapters/scheduler"
	"github.com/ogurasousui/staff-status-engine/internal/app"
	"github.com/ogurasousui/staff-status-engine/internal/platform/config"
	"github.com/ogurasousui/staff-status-engine/internal/platform/logging"
	"github.com/ogurasousui/staff-status-engine/internal/platform/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (defaults to CONFIG_PATH env or assets/local.yaml)")
		asOfRaw    = flag.String("as-of", "", "date to sweep as YYYY-MM-DD (defaults to today in engine.timezone)")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := config.LoadEnvFiles(".env", ".env.local"); err != nil {
		logrus.Fatalf("failed to load env files: %v", err)
	}

	cfg, err := config.Load(effectiveConfigPath(*configPath))
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		logrus.Fatalf("failed to initialize logger: %v", err)
	}

	if err := run(ctx, cfg, logger, *asOfRaw); err != nil {
		logger.WithError(err).Fatal("sweep failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger, asOfRaw string) error {
	m := metrics.New(prometheus.NewRegistry())

	application, err := app.Build(ctx, cfg, logger, m, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.WithError(err).Error("failed to close application")
		}
	}()

	sched, err := scheduler.New(application.Status, scheduler.Options{
		Location: cfg.Engine.Location,
		Metrics:  m,
		Logger:   logging.Component(logger, "sweep"),
	})
	if err != nil {
		return err
	}

	asOf, err := parseAsOf(asOfRaw, sched, time.Now())
	if err != nil {
		return err
	}

	result, err := sched.RunOnce(ctx, asOf)
	if err != nil {
		return err
	}
	if n := result.Failures(); n > 0 {
		return fmt.Errorf("%d employee(s) failed: %w", n, joinFailures(result))
	}
	return nil
}

func parseAsOf(raw string, sched *scheduler.Scheduler, now time.Time) (time.Time, error) {
	if raw == "" {
		return sched.AsOf(now), nil
	}
	asOf, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -as-of %q: %w", raw, err)
	}
	return asOf, nil
}

func joinFailures(run *scheduler.Run) error {
	if err := run.Apply.Err(); err != nil {
		if cerr := run.Complete.Err(); cerr != nil {
			return fmt.Errorf("%w; %w", err, cerr)
		}
		return err
	}
	return run.Complete.Err()
}

func effectiveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return "assets/local.yaml"
}
