package division

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type stubClock struct {
	now time.Time
}

func (s stubClock) Now() time.Time {
	return s.now
}

type fakeDivisionRepo struct {
	divisions map[string]*Division
	sequence  int
	findErr   error
}

func newFakeDivisionRepo() *fakeDivisionRepo {
	return &fakeDivisionRepo{divisions: make(map[string]*Division)}
}

func (r *fakeDivisionRepo) Create(_ context.Context, d *Division) (*Division, error) {
	r.sequence++
	clone := *d
	clone.ID = fmt.Sprintf("div-%d", r.sequence)
	r.divisions[clone.ID] = &clone
	out := clone
	return &out, nil
}

func (r *fakeDivisionRepo) FindByID(_ context.Context, id string) (*Division, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	d, ok := r.divisions[id]
	if !ok {
		return nil, ErrDivisionNotFound
	}
	clone := *d
	return &clone, nil
}

func (r *fakeDivisionRepo) FindByCode(_ context.Context, code string) (*Division, error) {
	for _, d := range r.divisions {
		if d.Code == code {
			clone := *d
			return &clone, nil
		}
	}
	return nil, ErrDivisionNotFound
}

func TestService_CreateDivision(t *testing.T) {
	t.Parallel()

	repo := newFakeDivisionRepo()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(repo, stubClock{now: now}, nil)

	parent, err := svc.CreateDivision(context.Background(), CreateDivisionInput{Name: " Head Office ", Code: "HQ"})
	if err != nil {
		t.Fatalf("CreateDivision returned error: %v", err)
	}
	if parent.Name != "Head Office" || parent.Code != "hq" || parent.Status != StatusActive {
		t.Fatalf("unexpected division: %+v", parent)
	}
	if !parent.CreatedAt.Equal(now) {
		t.Fatalf("expected timestamps to use clock now")
	}

	child, err := svc.CreateDivision(context.Background(), CreateDivisionInput{Name: "Sales", Code: "sales", ParentID: &parent.ID})
	if err != nil {
		t.Fatalf("CreateDivision returned error: %v", err)
	}
	if child.ParentID == nil || *child.ParentID != parent.ID {
		t.Fatalf("expected parent id, got %+v", child.ParentID)
	}

	if _, err := svc.CreateDivision(context.Background(), CreateDivisionInput{Name: "Sales 2", Code: "SALES"}); !errors.Is(err, ErrCodeAlreadyExists) {
		t.Fatalf("expected ErrCodeAlreadyExists, got %v", err)
	}

	missing := "div-404"
	if _, err := svc.CreateDivision(context.Background(), CreateDivisionInput{Name: "Orphan", Code: "orphan", ParentID: &missing}); !errors.Is(err, ErrParentNotFound) {
		t.Fatalf("expected ErrParentNotFound, got %v", err)
	}
}

func TestService_DivisionExists(t *testing.T) {
	t.Parallel()

	repo := newFakeDivisionRepo()
	svc := NewService(repo, nil, nil)

	created, err := svc.CreateDivision(context.Background(), CreateDivisionInput{Name: "Plant", Code: "plant"})
	if err != nil {
		t.Fatalf("CreateDivision returned error: %v", err)
	}

	ok, err := svc.DivisionExists(context.Background(), created.ID)
	if err != nil || !ok {
		t.Fatalf("expected division to exist, got %v (%v)", ok, err)
	}

	ok, err = svc.DivisionExists(context.Background(), "div-404")
	if err != nil || ok {
		t.Fatalf("expected unknown division to be reported missing, got %v (%v)", ok, err)
	}

	repo.divisions[created.ID].Status = StatusInactive
	ok, err = svc.DivisionExists(context.Background(), created.ID)
	if err != nil || ok {
		t.Fatalf("expected inactive division to be reported missing, got %v (%v)", ok, err)
	}

	repo.findErr = errors.New("db down")
	if _, err := svc.DivisionExists(context.Background(), created.ID); err == nil {
		t.Fatalf("expected repository error to surface")
	}
}
