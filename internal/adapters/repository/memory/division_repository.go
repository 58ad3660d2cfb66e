package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/ogurasousui/staff-status-engine/internal/core/division"
)

// DivisionRepository は Store 上の部署実装です。
type DivisionRepository struct {
	store *Store
}

// NewDivisionRepository は DivisionRepository を生成します。
func NewDivisionRepository(store *Store) *DivisionRepository {
	return &DivisionRepository{store: store}
}

func (r *DivisionRepository) Create(ctx context.Context, d *division.Division) (*division.Division, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.divisions {
		if existing.Code == d.Code {
			return nil, division.ErrCodeAlreadyExists
		}
	}
	if d.ParentID != nil {
		if _, ok := s.divisions[*d.ParentID]; !ok {
			return nil, division.ErrParentNotFound
		}
	}

	created := copyDivision(d)
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if err := s.write(ctx, func() { delete(s.divisions, created.ID) }); err != nil {
		return nil, err
	}
	s.divisions[created.ID] = created
	return copyDivision(created), nil
}

func (r *DivisionRepository) FindByID(_ context.Context, id string) (*division.Division, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.divisions[id]
	if !ok {
		return nil, division.ErrDivisionNotFound
	}
	return copyDivision(d), nil
}

func (r *DivisionRepository) FindByCode(_ context.Context, code string) (*division.Division, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.divisions {
		if d.Code == code {
			return copyDivision(d), nil
		}
	}
	return nil, division.ErrDivisionNotFound
}

func copyDivision(d *division.Division) *division.Division {
	c := *d
	c.ParentID = copyString(d.ParentID)
	return &c
}
