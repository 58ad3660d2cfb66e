package division

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

var codePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Service は部署の参照と登録を提供します。階層の編集や走査は扱いません。
type Service struct {
	repo  Repository
	clock Clock
	tx    TransactionManager
}

// UseCase は部署ユースケースの公開インターフェースです。
type UseCase interface {
	CreateDivision(ctx context.Context, in CreateDivisionInput) (*Division, error)
	GetDivision(ctx context.Context, id string) (*Division, error)
	DivisionExists(ctx context.Context, id string) (bool, error)
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

// CreateDivisionInput は部署作成時の入力です。
type CreateDivisionInput struct {
	Name     string
	Code     string
	ParentID *string
}

// CreateDivision は新しい部署を作成します。
func (s *Service) CreateDivision(ctx context.Context, in CreateDivisionInput) (*Division, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}

	code, err := normalizeCode(in.Code)
	if err != nil {
		return nil, err
	}

	var parentID *string
	if in.ParentID != nil {
		trimmed := strings.TrimSpace(*in.ParentID)
		if trimmed != "" {
			parentID = &trimmed
		}
	}

	var created *Division
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindByCode(txCtx, code)
		if err != nil && !errors.Is(err, ErrDivisionNotFound) {
			return err
		}
		if existing != nil {
			return ErrCodeAlreadyExists
		}

		if parentID != nil {
			if _, err := s.repo.FindByID(txCtx, *parentID); err != nil {
				if errors.Is(err, ErrDivisionNotFound) {
					return ErrParentNotFound
				}
				return err
			}
		}

		now := s.clock.Now()
		result, err := s.repo.Create(txCtx, &Division{
			Name:      name,
			Code:      code,
			ParentID:  parentID,
			Status:    StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		})
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

// GetDivision は部署を取得します。
func (s *Service) GetDivision(ctx context.Context, id string) (*Division, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}

	var result *Division
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.FindByID(txCtx, trimmed)
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

// DivisionExists は有効な部署が存在するかを返します。
func (s *Service) DivisionExists(ctx context.Context, id string) (bool, error) {
	d, err := s.GetDivision(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDivisionNotFound) || errors.Is(err, ErrInvalidID) {
			return false, nil
		}
		return false, err
	}
	return d.Status == StatusActive, nil
}

func normalizeCode(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidCode
	}

	lower := strings.ToLower(trimmed)
	if !codePattern.MatchString(lower) {
		return "", ErrInvalidCode
	}

	return lower, nil
}
