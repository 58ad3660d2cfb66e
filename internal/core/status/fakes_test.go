package status

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func (s *stubClock) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *stubClock) set(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = t
}

type fakeStatusRepo struct {
	mu        sync.Mutex
	records   map[string]*Record
	order     []string
	locks     []string
	failFor   map[string]error
	updateErr error
}

func newFakeStatusRepo() *fakeStatusRepo {
	return &fakeStatusRepo{
		records: make(map[string]*Record),
		failFor: make(map[string]error),
	}
}

func (r *fakeStatusRepo) LockEmployee(_ context.Context, employeeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks = append(r.locks, employeeID)
	if err, ok := r.failFor[employeeID]; ok {
		return err
	}
	return nil
}

func (r *fakeStatusRepo) Create(_ context.Context, rec *Record) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; ok {
		return nil, fmt.Errorf("duplicate id %s", rec.ID)
	}
	r.records[rec.ID] = cloneRecord(rec)
	r.order = append(r.order, rec.ID)
	return cloneRecord(rec), nil
}

func (r *fakeStatusRepo) Update(_ context.Context, rec *Record) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	if _, ok := r.records[rec.ID]; !ok {
		return nil, ErrStatusNotFound
	}
	r.records[rec.ID] = cloneRecord(rec)
	return cloneRecord(rec), nil
}

func (r *fakeStatusRepo) FindByID(_ context.Context, id string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrStatusNotFound
	}
	return cloneRecord(rec), nil
}

func (r *fakeStatusRepo) FindActiveOrPlanned(_ context.Context, employeeID, excludeID string) ([]*Record, error) {
	return r.filter(func(rec *Record) bool {
		return rec.EmployeeID == employeeID && rec.ID != excludeID && rec.isOpen()
	}), nil
}

func (r *fakeStatusRepo) FindCoveringDate(_ context.Context, employeeID string, date time.Time) ([]*Record, error) {
	return r.filter(func(rec *Record) bool {
		return rec.EmployeeID == employeeID && rec.State != StateCancelled && rec.Covers(date)
	}), nil
}

func (r *fakeStatusRepo) FindPlannedDueBy(_ context.Context, date time.Time) ([]*Record, error) {
	return r.filter(func(rec *Record) bool {
		return rec.State == StatePlanned && !rec.StartDate.After(date)
	}), nil
}

func (r *fakeStatusRepo) FindActiveExpiredBy(_ context.Context, date time.Time) ([]*Record, error) {
	return r.filter(func(rec *Record) bool {
		eff := rec.EffectiveEnd()
		return rec.State == StateActive && eff != nil && eff.Before(date)
	}), nil
}

func (r *fakeStatusRepo) ListByEmployeeBetween(_ context.Context, employeeID string, from, to time.Time) ([]*Record, error) {
	window := Interval{Start: from, End: &to}
	out := r.filter(func(rec *Record) bool {
		return rec.EmployeeID == employeeID && rec.Interval().Intersects(window)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r *fakeStatusRepo) filter(keep func(*Record) bool) []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Record
	for _, id := range r.order {
		rec := r.records[id]
		if keep(rec) {
			out = append(out, cloneRecord(rec))
		}
	}
	return out
}

func (r *fakeStatusRepo) byEmployee(employeeID string) []*Record {
	return r.filter(func(rec *Record) bool { return rec.EmployeeID == employeeID })
}

func (r *fakeStatusRepo) get(id string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneRecord(r.records[id])
}

func (r *fakeStatusRepo) put(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; !ok {
		r.order = append(r.order, rec.ID)
	}
	r.records[rec.ID] = cloneRecord(rec)
}

func (r *fakeStatusRepo) snapshot() (map[string]*Record, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := make(map[string]*Record, len(r.records))
	for id, rec := range r.records {
		records[id] = cloneRecord(rec)
	}
	return records, append([]string(nil), r.order...)
}

func (r *fakeStatusRepo) restore(records map[string]*Record, order []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = records
	r.order = order
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []*HistoryEntry
	seq     int64
}

func (h *fakeHistoryRepo) Append(_ context.Context, entry *HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	copied := *entry
	copied.ID = h.seq
	h.entries = append(h.entries, &copied)
	return nil
}

func (h *fakeHistoryRepo) ListByStatus(_ context.Context, statusID string) ([]*HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*HistoryEntry
	for _, e := range h.entries {
		if e.StatusID == statusID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (h *fakeHistoryRepo) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *fakeHistoryRepo) truncate(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = h.entries[:n]
}

type fakeEmployees struct {
	employees map[string]*Employee
}

func (f *fakeEmployees) FindEmployee(_ context.Context, id string) (*Employee, error) {
	emp, ok := f.employees[id]
	if !ok {
		return nil, ErrEmployeeNotFound
	}
	copied := *emp
	return &copied, nil
}

type fakeDivisions struct {
	known map[string]bool
}

func (f *fakeDivisions) DivisionExists(_ context.Context, id string) (bool, error) {
	return f.known[id], nil
}

type sentNotification struct {
	kind     NotificationKind
	statusID string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, kind NotificationKind, rec *Record) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{kind: kind, statusID: rec.ID})
}

func (n *recordingNotifier) kinds() []NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NotificationKind, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.kind)
	}
	return out
}

func (n *recordingNotifier) idsFor(kind NotificationKind) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if s.kind == kind {
			out = append(out, s.statusID)
		}
	}
	return out
}

// rollbackTx はエラー時にリポジトリの内容を巻き戻します。並行実行には対応しません。
type rollbackTx struct {
	repo    *fakeStatusRepo
	history *fakeHistoryRepo
}

func (tx rollbackTx) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (tx rollbackTx) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	records, order := tx.repo.snapshot()
	entries := tx.history.count()
	if err := fn(ctx); err != nil {
		tx.repo.restore(records, order)
		tx.history.truncate(entries)
		return err
	}
	return nil
}

var errInjected = errors.New("injected failure")

const testEmployee = "emp-1"

type fixture struct {
	repo     *fakeStatusRepo
	history  *fakeHistoryRepo
	notifier *recordingNotifier
	clock    *stubClock
	svc      *Service
}

func newFixture(today time.Time, opts ...Option) *fixture {
	repo := newFakeStatusRepo()
	history := &fakeHistoryRepo{}
	notifier := &recordingNotifier{}
	clock := &stubClock{now: today.Add(9 * time.Hour)}
	employees := &fakeEmployees{employees: map[string]*Employee{
		testEmployee: {ID: testEmployee, HireDate: ptrDate(2020, time.January, 1), Active: true},
		"emp-2":      {ID: "emp-2", HireDate: ptrDate(2020, time.January, 1), Active: true},
		"emp-3":      {ID: "emp-3", HireDate: ptrDate(2020, time.January, 1), Active: true},
		"emp-gone":   {ID: "emp-gone", HireDate: ptrDate(2020, time.January, 1), Active: false},
	}}
	divisions := &fakeDivisions{known: map[string]bool{"div-1": true, "div-2": true}}

	base := []Option{
		WithClock(clock),
		WithNotifier(notifier),
		WithDivisionDirectory(divisions),
		WithTransactionManager(rollbackTx{repo: repo, history: history}),
	}
	svc := NewService(repo, history, employees, append(base, opts...)...)

	return &fixture{repo: repo, history: history, notifier: notifier, clock: clock, svc: svc}
}

func ptrDate(y int, m time.Month, d int) *time.Time {
	t := Date(y, m, d)
	return &t
}

func ptrString(s string) *string {
	return &s
}
