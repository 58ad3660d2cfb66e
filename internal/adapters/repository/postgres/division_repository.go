package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/staff-status-engine/internal/core/division"
	pgdb "github.com/ogurasousui/staff-status-engine/internal/platform/db/postgres"
)

// DivisionRepository は PostgreSQL を利用した部署永続化の実装です。
type DivisionRepository struct {
	pool pgdb.Queryer
}

// NewDivisionRepository は DivisionRepository を生成します。
func NewDivisionRepository(pool pgdb.Queryer) *DivisionRepository {
	return &DivisionRepository{pool: pool}
}

// Create は部署を新規作成します。
func (r *DivisionRepository) Create(ctx context.Context, d *division.Division) (*division.Division, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO divisions (name, code, parent_id, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, name, code, parent_id, status, created_at, updated_at
    `, d.Name, d.Code, nullableString(d.ParentID), string(d.Status), d.CreatedAt, d.UpdatedAt)

	created, err := scanDivision(row)
	if err != nil {
		return nil, translateDivisionPgError(err)
	}
	return created, nil
}

// FindByID は ID で部署を取得します。
func (r *DivisionRepository) FindByID(ctx context.Context, id string) (*division.Division, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT id, name, code, parent_id, status, created_at, updated_at
          FROM divisions
         WHERE id = $1
         LIMIT 1
    `, id)

	found, err := scanDivision(row)
	if err != nil {
		return nil, translateDivisionPgError(err)
	}
	return found, nil
}

// FindByCode はコードで部署を取得します。
func (r *DivisionRepository) FindByCode(ctx context.Context, code string) (*division.Division, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT id, name, code, parent_id, status, created_at, updated_at
          FROM divisions
         WHERE code = $1
         LIMIT 1
    `, code)

	found, err := scanDivision(row)
	if err != nil {
		return nil, translateDivisionPgError(err)
	}
	return found, nil
}

func scanDivision(row pgx.Row) (*division.Division, error) {
	var (
		id, name, code, status string
		parentID               sql.NullString
		createdAt, updatedAt   time.Time
	)

	if err := row.Scan(&id, &name, &code, &parentID, &status, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, division.ErrDivisionNotFound
		}
		return nil, err
	}

	return &division.Division{
		ID:        id,
		Name:      name,
		Code:      code,
		ParentID:  stringFromNull(parentID),
		Status:    division.Status(status),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func translateDivisionPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return division.ErrCodeAlreadyExists
		case foreignKeyViolationCode:
			return division.ErrParentNotFound
		case invalidTextRepresentation:
			return division.ErrDivisionNotFound
		}
	}
	return err
}
