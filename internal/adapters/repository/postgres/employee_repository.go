package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/staff-status-engine/internal/core/employee"
	pgdb "github.com/ogurasousui/staff-status-engine/internal/platform/db/postgres"
)

const (
	uniqueViolationCode       = "23505"
	foreignKeyViolationCode   = "23503"
	checkViolationCode        = "23514"
	invalidTextRepresentation = "22P02"
)

const employeeColumns = `id, division_id, employee_code, last_name, first_name, status, hired_at, terminated_at, created_at, updated_at`

// EmployeeRepository は PostgreSQL を利用した社員永続化の実装です。
type EmployeeRepository struct {
	pool pgdb.Queryer
}

// NewEmployeeRepository は EmployeeRepository を生成します。
func NewEmployeeRepository(pool pgdb.Queryer) *EmployeeRepository {
	return &EmployeeRepository{pool: pool}
}

// Create は社員を新規作成します。
func (r *EmployeeRepository) Create(ctx context.Context, e *employee.Employee) (*employee.Employee, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO employees (division_id, employee_code, last_name, first_name, status, hired_at, terminated_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING `+employeeColumns,
		e.DivisionID,
		e.EmployeeCode,
		e.LastName,
		e.FirstName,
		string(e.Status),
		nullableDate(e.HiredAt),
		nullableDate(e.TerminatedAt),
		e.CreatedAt,
		e.UpdatedAt,
	)

	created, err := scanEmployee(row)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	return created, nil
}

// Update は社員情報を更新します。
func (r *EmployeeRepository) Update(ctx context.Context, e *employee.Employee) (*employee.Employee, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE employees
           SET employee_code = $1,
               last_name = $2,
               first_name = $3,
               status = $4,
               hired_at = $5,
               terminated_at = $6,
               updated_at = $7
         WHERE id = $8
        RETURNING `+employeeColumns,
		e.EmployeeCode,
		e.LastName,
		e.FirstName,
		string(e.Status),
		nullableDate(e.HiredAt),
		nullableDate(e.TerminatedAt),
		e.UpdatedAt,
		e.ID,
	)

	updated, err := scanEmployee(row)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	return updated, nil
}

// FindByID は ID で社員を取得します。
func (r *EmployeeRepository) FindByID(ctx context.Context, id string) (*employee.Employee, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+employeeColumns+`
          FROM employees
         WHERE id = $1
         LIMIT 1
    `, id)

	found, err := scanEmployee(row)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	return found, nil
}

// FindByDivisionAndCode は部署 ID と社員コードで検索します。
func (r *EmployeeRepository) FindByDivisionAndCode(ctx context.Context, divisionID, employeeCode string) (*employee.Employee, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+employeeColumns+`
          FROM employees
         WHERE division_id = $1 AND employee_code = $2
         LIMIT 1
    `, divisionID, employeeCode)

	found, err := scanEmployee(row)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	return found, nil
}

func scanEmployee(row pgx.Row) (*employee.Employee, error) {
	var (
		id           string
		divisionID   string
		code         string
		lastName     string
		firstName    string
		status       string
		hiredAt      sql.NullTime
		terminatedAt sql.NullTime
		createdAt    time.Time
		updatedAt    time.Time
	)

	if err := row.Scan(
		&id,
		&divisionID,
		&code,
		&lastName,
		&firstName,
		&status,
		&hiredAt,
		&terminatedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, employee.ErrEmployeeNotFound
		}
		return nil, err
	}

	return &employee.Employee{
		ID:           id,
		DivisionID:   divisionID,
		EmployeeCode: code,
		LastName:     lastName,
		FirstName:    firstName,
		Status:       employee.Status(status),
		HiredAt:      dateFromNull(hiredAt),
		TerminatedAt: dateFromNull(terminatedAt),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func translateEmployeePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return employee.ErrEmployeeNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return employee.ErrEmployeeCodeAlreadyExists
		case foreignKeyViolationCode:
			return employee.ErrDivisionNotFound
		case checkViolationCode:
			return employee.ErrInvalidDateRange
		case invalidTextRepresentation:
			return employee.ErrEmployeeNotFound
		}
	}

	return err
}

func nullableDate(value *time.Time) any {
	if value == nil {
		return nil
	}
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, time.UTC)
}

func dateFromNull(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &date
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func stringFromNull(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}
