package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ogurasousui/staff-status-engine/internal/core/status"
	"github.com/ogurasousui/staff-status-engine/internal/platform/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	mu    sync.Mutex
	calls []string
	asOf  []time.Time

	applyErr    error
	completeErr error
	applyResult *status.SweepResult
	ran         chan struct{}
}

func (f *fakeSweeper) ApplyPlannedStatuses(_ context.Context, asOf time.Time) (*status.SweepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sweepApply)
	f.asOf = append(f.asOf, asOf)
	if f.applyResult != nil {
		return f.applyResult, f.applyErr
	}
	return &status.SweepResult{AsOf: asOf}, f.applyErr
}

func (f *fakeSweeper) CompleteExpiredStatuses(_ context.Context, asOf time.Time) (*status.SweepResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sweepComplete)
	f.asOf = append(f.asOf, asOf)
	f.mu.Unlock()
	if f.ran != nil {
		f.ran <- struct{}{}
	}
	return &status.SweepResult{AsOf: asOf, Affected: []*status.Record{{ID: "s-1"}}}, f.completeErr
}

func (f *fakeSweeper) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return loc
}

func TestNew_RejectsInvalidRunTime(t *testing.T) {
	t.Parallel()

	_, err := New(&fakeSweeper{}, Options{Hour: 24})
	assert.Error(t, err)

	_, err = New(&fakeSweeper{}, Options{Minute: -1})
	assert.Error(t, err)

	_, err = New(nil, Options{})
	assert.Error(t, err)
}

func TestNextRun(t *testing.T) {
	t.Parallel()

	loc := tokyo(t)
	s, err := New(&fakeSweeper{}, Options{Location: loc, Hour: 0, Minute: 5})
	require.NoError(t, err)

	cases := map[string]struct {
		now  time.Time
		want time.Time
	}{
		"before run time": {
			now:  time.Date(2025, 3, 10, 0, 1, 0, 0, loc),
			want: time.Date(2025, 3, 10, 0, 5, 0, 0, loc),
		},
		"exactly at run time": {
			now:  time.Date(2025, 3, 10, 0, 5, 0, 0, loc),
			want: time.Date(2025, 3, 11, 0, 5, 0, 0, loc),
		},
		"after run time": {
			now:  time.Date(2025, 3, 10, 9, 0, 0, 0, loc),
			want: time.Date(2025, 3, 11, 0, 5, 0, 0, loc),
		},
		"utc input is converted": {
			now:  time.Date(2025, 3, 9, 15, 1, 0, 0, time.UTC),
			want: time.Date(2025, 3, 10, 0, 5, 0, 0, loc),
		},
		"month boundary": {
			now:  time.Date(2025, 3, 31, 12, 0, 0, 0, loc),
			want: time.Date(2025, 4, 1, 0, 5, 0, 0, loc),
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.True(t, tc.want.Equal(s.NextRun(tc.now)), "got %v", s.NextRun(tc.now))
		})
	}
}

func TestAsOf_UsesLocalCalendarDate(t *testing.T) {
	t.Parallel()

	s, err := New(&fakeSweeper{}, Options{Location: tokyo(t)})
	require.NoError(t, err)

	got := s.AsOf(time.Date(2025, 3, 9, 15, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), got)
}

func TestRunOnce_AppliesThenCompletes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	sweeper := &fakeSweeper{applyResult: &status.SweepResult{
		Affected: []*status.Record{{ID: "a-1"}, {ID: "a-2"}},
		Failures: []status.SweepFailure{{EmployeeID: "e-9", Err: status.ErrMissingEndDate}},
	}}

	var hooked *Run
	s, err := New(sweeper, Options{Metrics: m, OnRun: func(run *Run, _ error) { hooked = run }})
	require.NoError(t, err)

	asOf := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	run, err := s.RunOnce(context.Background(), asOf)
	require.NoError(t, err)

	assert.Equal(t, []string{sweepApply, sweepComplete}, sweeper.snapshot())
	assert.Equal(t, asOf, run.AsOf)
	assert.Len(t, run.Apply.Affected, 2)
	assert.Len(t, run.Complete.Affected, 1)
	assert.Equal(t, 1, run.Failures())
	assert.Same(t, run, s.LastRun())
	assert.Same(t, run, hooked)

	expected := `
# HELP status_sweep_records_total Total number of status records changed by scheduled sweeps.
# TYPE status_sweep_records_total counter
status_sweep_records_total{sweep="apply_planned"} 2
status_sweep_records_total{sweep="complete_expired"} 1
# HELP status_sweep_failures_total Total number of per-employee failures in scheduled sweeps.
# TYPE status_sweep_failures_total counter
status_sweep_failures_total{sweep="apply_planned"} 1
status_sweep_failures_total{sweep="complete_expired"} 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"status_sweep_records_total", "status_sweep_failures_total"))
}

func TestRunOnce_ApplyErrorStillCompletes(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	sweeper := &fakeSweeper{applyErr: boom}
	s, err := New(sweeper, Options{})
	require.NoError(t, err)

	run, err := s.RunOnce(context.Background(), time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{sweepApply, sweepComplete}, sweeper.snapshot())
	assert.NotNil(t, run.Complete)
}

func TestRunOnce_CanceledContextSkipsComplete(t *testing.T) {
	t.Parallel()

	sweeper := &fakeSweeper{}
	s, err := New(sweeper, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.RunOnce(ctx, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{sweepApply}, sweeper.snapshot())
}

func TestStart_CatchUpAndTick(t *testing.T) {
	t.Parallel()

	loc := tokyo(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, loc)
	tick := make(chan time.Time)
	sweeper := &fakeSweeper{ran: make(chan struct{}, 4)}

	var waited []time.Duration
	var mu sync.Mutex
	s, err := New(sweeper, Options{
		Location: loc,
		Hour:     0,
		Minute:   5,
		CatchUp:  true,
		Now:      func() time.Time { return now },
		After: func(d time.Duration) <-chan time.Time {
			mu.Lock()
			waited = append(waited, d)
			mu.Unlock()
			return tick
		},
	})
	require.NoError(t, err)

	s.Start(context.Background())
	s.Start(context.Background())

	waitRun(t, sweeper.ran)

	fired := time.Date(2025, 3, 11, 0, 5, 0, 0, loc)
	tick <- fired
	waitRun(t, sweeper.ran)

	s.Stop()
	s.Stop()

	sweeper.mu.Lock()
	asOf := append([]time.Time(nil), sweeper.asOf...)
	sweeper.mu.Unlock()
	require.Len(t, asOf, 4)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), asOf[0])
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), asOf[2])

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, waited)
	assert.Equal(t, 15*time.Hour+5*time.Minute, waited[0])
}

func waitRun(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scheduled run")
	}
}
