// Package scheduler は日次のステータス自動遷移バッチを起動します。
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ogurasousui/staff-status-engine/internal/core/status"
	"github.com/ogurasousui/staff-status-engine/internal/platform/logging"
	"github.com/ogurasousui/staff-status-engine/internal/platform/metrics"
	"github.com/sirupsen/logrus"
)

const (
	sweepApply    = "apply_planned"
	sweepComplete = "complete_expired"
)

// Sweeper は日次バッチの実体です。status.Service が実装します。
type Sweeper interface {
	ApplyPlannedStatuses(ctx context.Context, asOf time.Time) (*status.SweepResult, error)
	CompleteExpiredStatuses(ctx context.Context, asOf time.Time) (*status.SweepResult, error)
}

// Run は 1 回分の実行結果です。
type Run struct {
	AsOf       time.Time
	Apply      *status.SweepResult
	Complete   *status.SweepResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failures は両バッチの社員単位の失敗件数です。
func (r *Run) Failures() int {
	n := 0
	if r.Apply != nil {
		n += len(r.Apply.Failures)
	}
	if r.Complete != nil {
		n += len(r.Complete.Failures)
	}
	return n
}

// Options はスケジューラの設定です。
type Options struct {
	Location *time.Location
	Hour     int
	Minute   int
	// CatchUp が true の場合、起動直後に当日分を一度実行します。
	CatchUp bool
	Metrics *metrics.Metrics
	Logger  *logrus.Entry
	// OnRun は各実行の終了後に呼び出されます。
	OnRun func(run *Run, err error)

	Now   func() time.Time
	After func(d time.Duration) <-chan time.Time
}

func (o *Options) setDefaults() {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.After == nil {
		o.After = time.After
	}
}

// Scheduler は設定時刻に ApplyPlannedStatuses と CompleteExpiredStatuses を順に実行します。
type Scheduler struct {
	sweeper Sweeper
	opts    Options

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	last    *Run

	// 手動実行と定時実行を直列化する
	runMu sync.Mutex
}

// New は Scheduler を生成します。
func New(sweeper Sweeper, opts Options) (*Scheduler, error) {
	if sweeper == nil {
		return nil, errors.New("scheduler: sweeper is required")
	}
	if opts.Hour < 0 || opts.Hour > 23 || opts.Minute < 0 || opts.Minute > 59 {
		return nil, fmt.Errorf("scheduler: invalid run time %02d:%02d", opts.Hour, opts.Minute)
	}
	opts.setDefaults()
	return &Scheduler{sweeper: sweeper, opts: opts}, nil
}

// Start はバックグラウンドでスケジュールを開始します。二重起動は無視されます。
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(runCtx, s.done)

	s.opts.Logger.WithFields(logrus.Fields{
		"run_at":   fmt.Sprintf("%02d:%02d", s.opts.Hour, s.opts.Minute),
		"timezone": s.opts.Location.String(),
		"catch_up": s.opts.CatchUp,
	}).Info("scheduler: started")
}

// Stop はスケジュールを止め、実行中のバッチの終了を待ちます。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.opts.Logger.Info("scheduler: stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if s.opts.CatchUp {
		s.trigger(ctx, s.opts.Now())
	}

	for {
		now := s.opts.Now()
		next := s.NextRun(now)
		select {
		case <-ctx.Done():
			return
		case fired := <-s.opts.After(next.Sub(now)):
			s.trigger(ctx, fired)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, at time.Time) {
	if _, err := s.RunOnce(ctx, s.AsOf(at)); err != nil && !errors.Is(err, context.Canceled) {
		s.opts.Logger.WithError(err).Error("scheduler: run failed")
	}
}

// NextRun は now より後の直近の実行予定時刻を返します。
func (s *Scheduler) NextRun(now time.Time) time.Time {
	local := now.In(s.opts.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.opts.Hour, s.opts.Minute, 0, 0, s.opts.Location)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.opts.Hour, s.opts.Minute, 0, 0, s.opts.Location)
	}
	return next
}

// AsOf は実行時刻を設定タイムゾーンの暦日に変換します。
func (s *Scheduler) AsOf(at time.Time) time.Time {
	local := at.In(s.opts.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// RunOnce は asOf を基準に予定の適用、期限切れの完了の順で一度だけ実行します。
// 社員単位の失敗は Run に集約され、戻り値のエラーにはバッチ自体の失敗のみが入ります。
func (s *Scheduler) RunOnce(ctx context.Context, asOf time.Time) (*Run, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	run := &Run{AsOf: asOf, StartedAt: s.opts.Now()}
	log := s.opts.Logger.WithField("as_of", asOf.Format("2006-01-02"))

	var errs []error

	started := time.Now()
	apply, err := s.sweeper.ApplyPlannedStatuses(ctx, asOf)
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", sweepApply, err))
	}
	run.Apply = apply
	s.observe(sweepApply, apply, time.Since(started))

	if ctx.Err() == nil {
		started = time.Now()
		complete, err := s.sweeper.CompleteExpiredStatuses(ctx, asOf)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sweepComplete, err))
		}
		run.Complete = complete
		s.observe(sweepComplete, complete, time.Since(started))
	} else {
		errs = append(errs, ctx.Err())
	}

	run.FinishedAt = s.opts.Now()
	runErr := errors.Join(errs...)

	s.mu.Lock()
	s.last = run
	s.mu.Unlock()

	entry := log.WithFields(logrus.Fields{
		"applied":   affected(run.Apply),
		"completed": affected(run.Complete),
		"created":   created(run.Complete),
		"failures":  run.Failures(),
	})
	if runErr != nil {
		entry.WithError(runErr).Warn("scheduler: run finished with errors")
	} else {
		entry.Info("scheduler: run finished")
	}

	if s.opts.OnRun != nil {
		s.opts.OnRun(run, runErr)
	}
	return run, runErr
}

// LastRun は直近の実行結果を返します。未実行なら nil です。
func (s *Scheduler) LastRun() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) observe(sweep string, res *status.SweepResult, elapsed time.Duration) {
	if res == nil {
		s.opts.Metrics.ObserveSweep(sweep, 0, 0, elapsed)
		return
	}
	s.opts.Metrics.ObserveSweep(sweep, len(res.Affected), len(res.Failures), elapsed)
}

func affected(res *status.SweepResult) int {
	if res == nil {
		return 0
	}
	return len(res.Affected)
}

func created(res *status.SweepResult) int {
	if res == nil {
		return 0
	}
	return len(res.Created)
}
