package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "status"

// Metrics はステータスエンジンの Prometheus メトリクスです。nil の場合は何も記録しません。
type Metrics struct {
	sweepRecords  *prometheus.CounterVec
	sweepFailures *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	dropped       prometheus.Counter
	queueDepth    prometheus.Gauge
}

// New は reg にメトリクスを登録します。
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sweepRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_records_total",
			Help:      "Total number of status records changed by scheduled sweeps.",
		}, []string{"sweep"}),
		sweepFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Total number of per-employee failures in scheduled sweeps.",
		}, []string{"sweep"}),
		sweepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of scheduled sweeps.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"sweep"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of notification deliveries by kind, sink and result.",
		}, []string{"kind", "sink", "result"}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Total number of notifications dropped because the queue was full or closed.",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notification_queue_depth",
			Help:      "Current number of queued notifications.",
		}),
	}
}

// ObserveSweep はバッチ 1 回分の結果を記録します。
func (m *Metrics) ObserveSweep(sweep string, changed, failures int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sweepRecords.WithLabelValues(sweep).Add(float64(changed))
	m.sweepFailures.WithLabelValues(sweep).Add(float64(failures))
	m.sweepDuration.WithLabelValues(sweep).Observe(elapsed.Seconds())
}

// NotificationDelivered は送出先ごとの配送結果を記録します。
func (m *Metrics) NotificationDelivered(kind, sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.notifications.WithLabelValues(kind, sink, result).Inc()
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// Handler は gatherer の内容を公開する HTTP ハンドラを返します。
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve は ctx がキャンセルされるまでメトリクスエンドポイントを提供します。
func Serve(ctx context.Context, addr, path string, g prometheus.Gatherer, log *logrus.Entry) error {
	mux := http.NewServeMux()
	mux.Handle(path, Handler(g))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("metrics: listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics: shutdown: %w", err)
		}
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("metrics: serve: %w", err)
	}
}
