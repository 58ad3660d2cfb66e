// Package app は設定からサービス群を組み立てます。
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ogurasousui/staff-status-engine/internal/adapters/directory"
	"github.com/ogurasousui/staff-status-engine/internal/adapters/notification"
	"github.com/ogurasousui/staff-status-engine/internal/adapters/repository/memory"
	"github.com/ogurasousui/staff-status-engine/internal/adapters/repository/postgres"
	"github.com/ogurasousui/staff-status-engine/internal/core/division"
	"github.com/ogurasousui/staff-status-engine/internal/core/employee"
	"github.com/ogurasousui/staff-status-engine/internal/core/status"
	"github.com/ogurasousui/staff-status-engine/internal/platform/config"
	pg "github.com/ogurasousui/staff-status-engine/internal/platform/db/postgres"
	"github.com/ogurasousui/staff-status-engine/internal/platform/logging"
	"github.com/ogurasousui/staff-status-engine/internal/platform/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// App は組み立て済みのサービス群です。
type App struct {
	Divisions  *division.Service
	Employees  *employee.Service
	Status     *status.Service
	Dispatcher *notification.Dispatcher
	Metrics    *metrics.Metrics

	closers []func() error
}

// Clock は各サービスに渡す時計です。nil の場合は実時間を使います。
type Clock interface {
	Now() time.Time
}

type transactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type repositories struct {
	tx        transactionManager
	divisions division.Repository
	employees employee.Repository
	statuses  status.Repository
	history   status.HistoryRepository
}

// Build は cfg に従って永続化先と通知先を選択し、サービスを接続します。
func Build(ctx context.Context, cfg *config.Config, logger *logrus.Logger, m *metrics.Metrics, clock Clock) (*App, error) {
	a := &App{Metrics: m}

	var (
		repos repositories
		pool  *pgxpool.Pool
	)
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		store := memory.NewStore()
		repos = repositories{
			tx:        memory.NewTransactionManager(store),
			divisions: memory.NewDivisionRepository(store),
			employees: memory.NewEmployeeRepository(store),
			statuses:  memory.NewStatusRepository(store),
			history:   memory.NewHistoryRepository(store),
		}
	default:
		p, err := pg.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		pool = p
		a.closers = append(a.closers, func() error { p.Close(); return nil })
		repos = repositories{
			tx:        pg.NewTransactionManager(p),
			divisions: postgres.NewDivisionRepository(p),
			employees: postgres.NewEmployeeRepository(p),
			statuses:  postgres.NewStatusRepository(p),
			history:   postgres.NewHistoryRepository(p),
		}
	}

	sinks, err := a.buildSinks(ctx, cfg.Notification, logger, pool, repos.tx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Dispatcher = notification.NewDispatcher(sinks, notification.Options{
		QueueSize: cfg.Notification.QueueSize,
		Workers:   cfg.Notification.Workers,
		Metrics:   m,
		Logger:    logging.Component(logger, "notification"),
	})
	// 接続を閉じる前に送出待ちを流し切る
	a.closers = append([]func() error{func() error { a.Dispatcher.Close(); return nil }}, a.closers...)

	var (
		divClock division.Clock
		empClock employee.Clock
	)
	statusOpts := []status.Option{
		status.WithTransactionManager(repos.tx),
		status.WithNotifier(a.Dispatcher),
		status.WithRules(status.Rules{MaxVacationDays: cfg.Engine.MaxVacationDays}),
		status.WithLocation(cfg.Engine.Location),
		status.WithSweepWorkers(cfg.Engine.SweepWorkers),
		status.WithLogger(logging.Component(logger, "status")),
	}
	if clock != nil {
		divClock, empClock = clock, clock
		statusOpts = append(statusOpts, status.WithClock(clock))
	}

	a.Divisions = division.NewService(repos.divisions, divClock, repos.tx)
	a.Employees = employee.NewService(repos.employees, empClock, repos.tx)
	statusOpts = append(statusOpts, status.WithDivisionDirectory(directory.NewDivisions(a.Divisions)))
	a.Status = status.NewService(repos.statuses, repos.history, directory.NewEmployees(a.Employees), statusOpts...)
	a.Employees.SetDismissalHandler(directory.NewDismissals(a.Status))

	return a, nil
}

func (a *App) buildSinks(ctx context.Context, cfg config.NotificationConfig, logger *logrus.Logger, pool *pgxpool.Pool, tx transactionManager) ([]notification.Sink, error) {
	sinks := make([]notification.Sink, 0, len(cfg.Sinks))
	for _, name := range cfg.Sinks {
		switch name {
		case config.SinkLog:
			sinks = append(sinks, notification.NewLogSink(logging.Component(logger, "notification.log")))
		case config.SinkFeed:
			if pool == nil {
				return nil, fmt.Errorf("app: notification sink %q requires postgres", name)
			}
			sinks = append(sinks, notification.NewFeedSink(pool, tx))
		case config.SinkRedis:
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if err := client.Ping(pingCtx).Err(); err != nil {
				logger.WithError(err).WithField("addr", cfg.Redis.Addr).Warn("app: redis is not reachable, notifications will be retried per event")
			}
			cancel()
			a.closers = append(a.closers, client.Close)
			sinks = append(sinks, notification.NewRedisSink(client, cfg.Redis.Channel))
		default:
			return nil, fmt.Errorf("app: unknown notification sink %q", name)
		}
	}
	return sinks, nil
}

// Close は通知キューを流し切ってから外部接続を閉じます。
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
