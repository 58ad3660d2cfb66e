package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/ogurasousui/staff-status-engine/internal/core/employee"
)

// EmployeeRepository は Store 上の社員実装です。
type EmployeeRepository struct {
	store *Store
}

// NewEmployeeRepository は EmployeeRepository を生成します。
func NewEmployeeRepository(store *Store) *EmployeeRepository {
	return &EmployeeRepository{store: store}
}

func (r *EmployeeRepository) Create(ctx context.Context, e *employee.Employee) (*employee.Employee, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.divisions[e.DivisionID]; !ok {
		return nil, employee.ErrDivisionNotFound
	}
	for _, existing := range s.employees {
		if existing.DivisionID == e.DivisionID && existing.EmployeeCode == e.EmployeeCode {
			return nil, employee.ErrEmployeeCodeAlreadyExists
		}
	}

	created := copyEmployee(e)
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if err := s.write(ctx, func() { delete(s.employees, created.ID) }); err != nil {
		return nil, err
	}
	s.employees[created.ID] = created
	return copyEmployee(created), nil
}

func (r *EmployeeRepository) Update(ctx context.Context, e *employee.Employee) (*employee.Employee, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.employees[e.ID]
	if !ok {
		return nil, employee.ErrEmployeeNotFound
	}
	if err := s.write(ctx, func() { s.employees[e.ID] = prev }); err != nil {
		return nil, err
	}

	next := copyEmployee(e)
	next.DivisionID = prev.DivisionID
	next.CreatedAt = prev.CreatedAt
	s.employees[e.ID] = next
	return copyEmployee(next), nil
}

func (r *EmployeeRepository) FindByID(_ context.Context, id string) (*employee.Employee, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.employees[id]
	if !ok {
		return nil, employee.ErrEmployeeNotFound
	}
	return copyEmployee(e), nil
}

func (r *EmployeeRepository) FindByDivisionAndCode(_ context.Context, divisionID, code string) (*employee.Employee, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.employees {
		if e.DivisionID == divisionID && e.EmployeeCode == code {
			return copyEmployee(e), nil
		}
	}
	return nil, employee.ErrEmployeeNotFound
}

func copyEmployee(e *employee.Employee) *employee.Employee {
	c := *e
	c.HiredAt = copyTime(e.HiredAt)
	c.TerminatedAt = copyTime(e.TerminatedAt)
	return &c
}
