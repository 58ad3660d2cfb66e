package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ogurasousui/staff-status-engine/internal/core/status"
)

// StatusRepository は Store 上のステータスレコード実装です。
type StatusRepository struct {
	store *Store
}

// NewStatusRepository は StatusRepository を生成します。
func NewStatusRepository(store *Store) *StatusRepository {
	return &StatusRepository{store: store}
}

// LockEmployee は社員単位のロックを取得します。
func (r *StatusRepository) LockEmployee(ctx context.Context, employeeID string) error {
	return r.store.lockEmployee(ctx, employeeID)
}

// Create はレコードを追加します。
func (r *StatusRepository) Create(ctx context.Context, rec *status.Record) (*status.Record, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.statuses[rec.ID]; ok || rec.ID == "" {
		return nil, status.ErrInvalidID
	}
	if err := s.write(ctx, func() {
		delete(s.statuses, rec.ID)
		s.order = removeID(s.order, rec.ID)
	}); err != nil {
		return nil, err
	}

	s.statuses[rec.ID] = copyRecord(rec)
	s.order = append(s.order, rec.ID)
	return copyRecord(rec), nil
}

// Update はレコードを置き換えます。作成者と作成日時は保持されます。
func (r *StatusRepository) Update(ctx context.Context, rec *status.Record) (*status.Record, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.statuses[rec.ID]
	if !ok {
		return nil, status.ErrStatusNotFound
	}
	if err := s.write(ctx, func() { s.statuses[rec.ID] = prev }); err != nil {
		return nil, err
	}

	next := copyRecord(rec)
	next.EmployeeID = prev.EmployeeID
	next.Type = prev.Type
	next.CreatedBy = prev.CreatedBy
	next.CreatedAt = prev.CreatedAt
	next.Notified = prev.Notified
	s.statuses[rec.ID] = next
	return copyRecord(next), nil
}

// FindByID は ID でレコードを取得します。
func (r *StatusRepository) FindByID(_ context.Context, id string) (*status.Record, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.statuses[id]
	if !ok {
		return nil, status.ErrStatusNotFound
	}
	return copyRecord(rec), nil
}

func (r *StatusRepository) FindActiveOrPlanned(_ context.Context, employeeID, excludeID string) ([]*status.Record, error) {
	return r.filter(func(rec *status.Record) bool {
		return rec.EmployeeID == employeeID && rec.ID != excludeID &&
			(rec.State == status.StatePlanned || rec.State == status.StateActive)
	}), nil
}

func (r *StatusRepository) FindCoveringDate(_ context.Context, employeeID string, date time.Time) ([]*status.Record, error) {
	return r.filter(func(rec *status.Record) bool {
		return rec.EmployeeID == employeeID && rec.State != status.StateCancelled && rec.Covers(date)
	}), nil
}

func (r *StatusRepository) FindPlannedDueBy(_ context.Context, date time.Time) ([]*status.Record, error) {
	return r.filter(func(rec *status.Record) bool {
		return rec.State == status.StatePlanned && !rec.StartDate.After(date)
	}), nil
}

func (r *StatusRepository) FindActiveExpiredBy(_ context.Context, date time.Time) ([]*status.Record, error) {
	return r.filter(func(rec *status.Record) bool {
		end := rec.EffectiveEnd()
		return rec.State == status.StateActive && end != nil && end.Before(date)
	}), nil
}

func (r *StatusRepository) ListByEmployeeBetween(_ context.Context, employeeID string, from, to time.Time) ([]*status.Record, error) {
	window := status.Interval{Start: from, End: &to}
	out := r.filter(func(rec *status.Record) bool {
		return rec.EmployeeID == employeeID && rec.Interval().Intersects(window)
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// filter は登録順に条件を満たすレコードの写しを返します。
func (r *StatusRepository) filter(keep func(*status.Record) bool) []*status.Record {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*status.Record
	for _, id := range s.order {
		if rec := s.statuses[id]; keep(rec) {
			out = append(out, copyRecord(rec))
		}
	}
	return out
}

func removeID(ids []string, id string) []string {
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func copyRecord(r *status.Record) *status.Record {
	if r == nil {
		return nil
	}
	c := *r
	c.EndDate = copyTime(r.EndDate)
	c.ActualEndDate = copyTime(r.ActualEndDate)
	c.RelatedDivisionID = copyString(r.RelatedDivisionID)
	c.CreatedBy = copyString(r.CreatedBy)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
