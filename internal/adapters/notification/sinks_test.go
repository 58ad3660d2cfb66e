package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ogurasousui/staff-status-engine/internal/core/status"
	pgdb "github.com/ogurasousui/staff-status-engine/internal/platform/db/postgres"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	channel string
	message interface{}
	err     error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	p.message = message
	cmd := redis.NewIntCmd(ctx)
	if p.err != nil {
		cmd.SetErr(p.err)
		return cmd
	}
	cmd.SetVal(1)
	return cmd
}

func testEvent() Event {
	rec := testRecord("rec-1")
	end := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	rec.EndDate = &end
	return Event{Kind: status.NotifyStatusApplied, Record: rec, OccurredAt: time.Date(2025, 3, 10, 0, 5, 0, 0, time.UTC)}
}

func TestRedisSink_PublishesPayload(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	sink := NewRedisSink(pub, "status-notifications")

	require.NoError(t, sink.Deliver(context.Background(), testEvent()))
	assert.Equal(t, "status-notifications", pub.channel)

	body, ok := pub.message.([]byte)
	require.True(t, ok, "expected a JSON body")

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "status_applied", got["kind"])
	assert.Equal(t, "vacation", got["status_type"])
	assert.Equal(t, "2025-03-14", got["end_date"])
	assert.NotContains(t, got, "actual_end_date")
}

func TestRedisSink_PublishError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	sink := NewRedisSink(&fakePublisher{err: boom}, "ch")
	assert.ErrorIs(t, sink.Deliver(context.Background(), testEvent()), boom)
}

func TestFeedSink_InsertsAndMarksNotified(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ev := testEvent()
	sink := NewFeedSink(mock, pgdb.NewTransactionManager(mock))

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO status_notifications`)).
		WithArgs("status_applied", "rec-1", "emp-1", "vacation", "active", pgxmock.AnyArg(), ev.OccurredAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE status_records SET notified = true WHERE id = $1`)).
		WithArgs("rec-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, sink.Deliver(context.Background(), ev))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedSink_RollsBackOnFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink := NewFeedSink(mock, pgdb.NewTransactionManager(mock))

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO status_notifications`)).
		WillReturnError(errors.New("relation does not exist"))
	mock.ExpectRollback()

	assert.Error(t, sink.Deliver(context.Background(), testEvent()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogSink_WritesFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	sink := NewLogSink(logrus.NewEntry(logger))
	require.NoError(t, sink.Deliver(context.Background(), testEvent()))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "status_applied", line["kind"])
	assert.Equal(t, "rec-1", line["status_id"])
}
