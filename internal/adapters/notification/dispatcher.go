// Package notification はステータス変更通知を非同期に送出先へ配送します。
package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ogurasousui/staff-status-engine/internal/core/status"
	"github.com/ogurasousui/staff-status-engine/internal/platform/metrics"
	"github.com/sirupsen/logrus"
)

const (
	defaultQueueSize = 256
	defaultWorkers   = 2
	deliveryTimeout  = 10 * time.Second
)

// ErrClosed は停止済みのディスパッチャに通知を渡した場合の破棄理由です。
var ErrClosed = errors.New("notification: dispatcher closed")

// Event は送出先に渡される通知 1 件です。
type Event struct {
	Kind       status.NotificationKind
	Record     *status.Record
	OccurredAt time.Time
}

// Sink は通知の送出先です。
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// Options はディスパッチャの設定です。
type Options struct {
	QueueSize int
	Workers   int
	Metrics   *metrics.Metrics
	Logger    *logrus.Entry
	Now       func() time.Time
}

func (o *Options) setDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		o.Logger = logrus.NewEntry(l)
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
}

// Dispatcher は status.Notifier の実装です。
// Notify は呼び出し元をブロックせず、キューが満杯なら通知を破棄します。
type Dispatcher struct {
	sinks []Sink
	opts  Options
	queue chan Event

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher はワーカーを起動した Dispatcher を返します。Close で停止します。
func NewDispatcher(sinks []Sink, opts Options) *Dispatcher {
	opts.setDefaults()
	d := &Dispatcher{
		sinks: sinks,
		opts:  opts,
		queue: make(chan Event, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Notify は通知をキューに積みます。
func (d *Dispatcher) Notify(_ context.Context, kind status.NotificationKind, rec *status.Record) {
	ev := Event{Kind: kind, Record: rec, OccurredAt: d.opts.Now()}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ev, ErrClosed)
		return
	}

	select {
	case d.queue <- ev:
		d.opts.Metrics.SetQueueDepth(len(d.queue))
	default:
		d.drop(ev, errors.New("notification: queue full"))
	}
}

// Close は新規の受付を止め、キューに残った通知を配送し終えるまで待ちます。
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.opts.Metrics.SetQueueDepth(0)
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for ev := range d.queue {
		d.opts.Metrics.SetQueueDepth(len(d.queue))
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev Event) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		err := sink.Deliver(ctx, ev)
		cancel()

		d.opts.Metrics.NotificationDelivered(string(ev.Kind), sink.Name(), err)
		if err != nil {
			d.opts.Logger.WithError(err).WithFields(logrus.Fields{
				"sink":      sink.Name(),
				"kind":      ev.Kind,
				"status_id": ev.Record.ID,
			}).Warn("notification: delivery failed")
		}
	}
}

func (d *Dispatcher) drop(ev Event, reason error) {
	d.opts.Metrics.NotificationDropped()
	d.opts.Logger.WithError(reason).WithFields(logrus.Fields{
		"kind":      ev.Kind,
		"status_id": ev.Record.ID,
	}).Warn("notification: dropped")
}

var _ status.Notifier = (*Dispatcher)(nil)
