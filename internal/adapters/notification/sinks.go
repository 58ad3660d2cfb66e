package notification

import (
	"context"
	"fmt"

	pgdb "github.com/ogurasousui/staff-status-engine/internal/platform/db/postgres"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// LogSink は通知をログに出力します。
type LogSink struct {
	log *logrus.Entry
}

// NewLogSink は LogSink を生成します。
func NewLogSink(log *logrus.Entry) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, ev Event) error {
	s.log.WithFields(logrus.Fields{
		"kind":        ev.Kind,
		"status_id":   ev.Record.ID,
		"employee_id": ev.Record.EmployeeID,
		"status_type": ev.Record.Type,
		"state":       ev.Record.State,
	}).Info("notification")
	return nil
}

type transactor interface {
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

// FeedSink は通知を status_notifications テーブルに書き込み、レコードの notified を立てます。
type FeedSink struct {
	pool pgdb.Queryer
	tx   transactor
}

// NewFeedSink は FeedSink を生成します。
func NewFeedSink(pool pgdb.Queryer, tx transactor) *FeedSink {
	return &FeedSink{pool: pool, tx: tx}
}

func (s *FeedSink) Name() string { return "feed" }

func (s *FeedSink) Deliver(ctx context.Context, ev Event) error {
	body, err := encodeEvent(ev)
	if err != nil {
		return fmt.Errorf("notification: encode: %w", err)
	}

	return s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		exec := pgdb.QueryerFromContext(txCtx, s.pool)
		if _, err := exec.Exec(txCtx, `
            INSERT INTO status_notifications (kind, status_id, employee_id, status_type, state, payload, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
        `, string(ev.Kind), ev.Record.ID, ev.Record.EmployeeID, string(ev.Record.Type), string(ev.Record.State), body, ev.OccurredAt); err != nil {
			return fmt.Errorf("notification: insert feed: %w", err)
		}
		if _, err := exec.Exec(txCtx, `UPDATE status_records SET notified = true WHERE id = $1`, ev.Record.ID); err != nil {
			return fmt.Errorf("notification: mark notified: %w", err)
		}
		return nil
	})
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink は通知を Redis Pub/Sub チャネルへ publish します。
type RedisSink struct {
	client  publisher
	channel string
}

// NewRedisSink は RedisSink を生成します。client には *redis.Client を渡します。
func NewRedisSink(client publisher, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, ev Event) error {
	body, err := encodeEvent(ev)
	if err != nil {
		return fmt.Errorf("notification: encode: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, body).Err(); err != nil {
		return fmt.Errorf("notification: publish: %w", err)
	}
	return nil
}

var (
	_ Sink      = (*LogSink)(nil)
	_ Sink      = (*FeedSink)(nil)
	_ Sink      = (*RedisSink)(nil)
	_ publisher = (*redis.Client)(nil)
)
