package employee

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

var employeeCodePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Service は社員に関するユースケースをまとめます。
type Service struct {
	repo      Repository
	clock     Clock
	tx        TransactionManager
	dismissal DismissalHandler
}

// UseCase は社員ユースケースの公開インターフェースです。
type UseCase interface {
	CreateEmployee(ctx context.Context, in CreateEmployeeInput) (*Employee, error)
	GetEmployee(ctx context.Context, in GetEmployeeInput) (*Employee, error)
	DismissEmployee(ctx context.Context, in DismissEmployeeInput) (*Employee, error)
}

// NewService は Service を生成します。
func NewService(repo Repository, clock Clock, tx TransactionManager) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	return &Service{repo: repo, clock: clock, tx: tx}
}

// SetDismissalHandler は退職時に呼び出すハンドラを設定します。
// ステータスエンジンとの循環参照を避けるため生成後に設定します。
func (s *Service) SetDismissalHandler(h DismissalHandler) {
	s.dismissal = h
}

// CreateEmployeeInput は社員作成時の入力です。
type CreateEmployeeInput struct {
	DivisionID   string
	EmployeeCode string
	LastName     string
	FirstName    string
	HiredAt      *time.Time
}

// GetEmployeeInput は社員取得時の入力です。
type GetEmployeeInput struct {
	ID string
}

// DismissEmployeeInput は退職処理の入力です。
type DismissEmployeeInput struct {
	ID            string
	DismissalDate time.Time
}

// CreateEmployee は新しい社員を作成します。
func (s *Service) CreateEmployee(ctx context.Context, in CreateEmployeeInput) (*Employee, error) {
	divisionID, err := normalizeDivisionID(in.DivisionID)
	if err != nil {
		return nil, err
	}

	code, err := normalizeEmployeeCode(in.EmployeeCode)
	if err != nil {
		return nil, err
	}

	lastName := strings.TrimSpace(in.LastName)
	if lastName == "" {
		return nil, ErrInvalidLastName
	}
	firstName := strings.TrimSpace(in.FirstName)
	if firstName == "" {
		return nil, ErrInvalidFirstName
	}

	var created *Employee
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if err := s.ensureEmployeeCodeNotExists(txCtx, divisionID, code); err != nil {
			return err
		}

		now := s.clock.Now()
		emp := &Employee{
			DivisionID:   divisionID,
			EmployeeCode: code,
			LastName:     lastName,
			FirstName:    firstName,
			Status:       StatusActive,
			HiredAt:      normalizeDate(in.HiredAt),
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		result, err := s.repo.Create(txCtx, emp)
		if err != nil {
			return err
		}

		created = result
		return nil
	}); err != nil {
		return nil, err
	}

	return created, nil
}

// GetEmployee は社員を取得します。
func (s *Service) GetEmployee(ctx context.Context, in GetEmployeeInput) (*Employee, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}

	var result *Employee
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.FindByID(txCtx, strings.TrimSpace(in.ID))
		if err != nil {
			return err
		}
		result = found
		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// DismissEmployee は社員を退職扱いにし、同じトランザクション内で DismissalHandler を呼び出します。
func (s *Service) DismissEmployee(ctx context.Context, in DismissEmployeeInput) (*Employee, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}
	if in.DismissalDate.IsZero() {
		return nil, ErrDismissalDateRequired
	}
	date := normalizeDate(&in.DismissalDate)

	var dismissed *Employee
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		if !existing.IsActive() {
			return ErrAlreadyDismissed
		}
		if err := validateEmploymentPeriod(existing.HiredAt, date); err != nil {
			return err
		}

		existing.Status = StatusInactive
		existing.TerminatedAt = date
		existing.UpdatedAt = s.clock.Now()

		result, err := s.repo.Update(txCtx, existing)
		if err != nil {
			return err
		}

		if s.dismissal != nil {
			if err := s.dismissal.OnEmployeeDismissed(txCtx, result.ID, *date); err != nil {
				return fmt.Errorf("employee: dismissal handler: %w", err)
			}
		}

		dismissed = result
		return nil
	}); err != nil {
		return nil, err
	}

	return dismissed, nil
}

func (s *Service) ensureEmployeeCodeNotExists(ctx context.Context, divisionID, code string) error {
	emp, err := s.repo.FindByDivisionAndCode(ctx, divisionID, code)
	if err != nil && !errors.Is(err, ErrEmployeeNotFound) {
		return err
	}
	if emp != nil {
		return ErrEmployeeCodeAlreadyExists
	}
	return nil
}

func normalizeDivisionID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidDivisionID
	}
	return trimmed, nil
}

func normalizeEmployeeCode(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidEmployeeCode
	}

	lower := strings.ToLower(trimmed)
	if !employeeCodePattern.MatchString(lower) {
		return "", ErrInvalidEmployeeCode
	}
	return lower, nil
}

func normalizeDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	normalized := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &normalized
}

func validateEmploymentPeriod(hiredAt, terminatedAt *time.Time) error {
	if hiredAt == nil || terminatedAt == nil {
		return nil
	}
	if terminatedAt.Before(*hiredAt) {
		return ErrInvalidDateRange
	}
	return nil
}
