package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/staff-status-engine/internal/core/status"
	pgdb "github.com/ogurasousui/staff-status-engine/internal/platform/db/postgres"
)

const statusColumns = `id, employee_id, status_type, state, start_date, end_date, actual_end_date, comment,
               early_termination_reason, related_division_id, location, created_by, auto_applied, notified,
               created_at, updated_at`

// effectiveEndExpr は実終了日を優先した有効終了日です。NULL は無期限を表します。
const effectiveEndExpr = `COALESCE(actual_end_date, end_date)`

// StatusRepository は PostgreSQL を利用したステータスレコード永続化の実装です。
type StatusRepository struct {
	pool pgdb.Queryer
}

// NewStatusRepository は StatusRepository を生成します。
func NewStatusRepository(pool pgdb.Queryer) *StatusRepository {
	return &StatusRepository{pool: pool}
}

// LockEmployee は社員単位の advisory lock を取得します。トランザクション内でのみ呼び出せます。
func (r *StatusRepository) LockEmployee(ctx context.Context, employeeID string) error {
	return pgdb.AdvisoryXactLock(ctx, employeeLockKey(employeeID))
}

func employeeLockKey(employeeID string) string {
	return "employee-status:" + employeeID
}

// Create はステータスレコードを新規作成します。
func (r *StatusRepository) Create(ctx context.Context, rec *status.Record) (*status.Record, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO status_records (id, employee_id, status_type, state, start_date, end_date, actual_end_date, comment,
                                    early_termination_reason, related_division_id, location, created_by, auto_applied, notified,
                                    created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
        RETURNING `+statusColumns,
		rec.ID,
		rec.EmployeeID,
		string(rec.Type),
		string(rec.State),
		rec.StartDate,
		nullableDate(rec.EndDate),
		nullableDate(rec.ActualEndDate),
		rec.Comment,
		rec.EarlyTerminationReason,
		nullableString(rec.RelatedDivisionID),
		rec.Location,
		nullableString(rec.CreatedBy),
		rec.AutoApplied,
		rec.Notified,
		rec.CreatedAt,
		rec.UpdatedAt,
	)

	created, err := scanStatus(row)
	if err != nil {
		return nil, translateStatusPgError(err)
	}
	return created, nil
}

// Update はステータスレコードの可変項目を更新します。
func (r *StatusRepository) Update(ctx context.Context, rec *status.Record) (*status.Record, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE status_records
           SET state = $1,
               start_date = $2,
               end_date = $3,
               actual_end_date = $4,
               comment = $5,
               early_termination_reason = $6,
               related_division_id = $7,
               location = $8,
               auto_applied = $9,
               updated_at = $10
         WHERE id = $11
        RETURNING `+statusColumns,
		string(rec.State),
		rec.StartDate,
		nullableDate(rec.EndDate),
		nullableDate(rec.ActualEndDate),
		rec.Comment,
		rec.EarlyTerminationReason,
		nullableString(rec.RelatedDivisionID),
		rec.Location,
		rec.AutoApplied,
		rec.UpdatedAt,
		rec.ID,
	)

	updated, err := scanStatus(row)
	if err != nil {
		return nil, translateStatusPgError(err)
	}
	return updated, nil
}

// FindByID は ID でステータスレコードを取得します。
func (r *StatusRepository) FindByID(ctx context.Context, id string) (*status.Record, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+statusColumns+`
          FROM status_records
         WHERE id = $1
         LIMIT 1
    `, id)

	found, err := scanStatus(row)
	if err != nil {
		return nil, translateStatusPgError(err)
	}
	return found, nil
}

// FindActiveOrPlanned は社員の予定・適用中レコードを返します。
func (r *StatusRepository) FindActiveOrPlanned(ctx context.Context, employeeID, excludeID string) ([]*status.Record, error) {
	if excludeID == "" {
		return r.query(ctx, `
        SELECT `+statusColumns+`
          FROM status_records
         WHERE employee_id = $1
           AND state IN ('planned', 'active')
         ORDER BY start_date, created_at
    `, employeeID)
	}

	return r.query(ctx, `
        SELECT `+statusColumns+`
          FROM status_records
         WHERE employee_id = $1
           AND state IN ('planned', 'active')
           AND id <> $2
         ORDER BY start_date, created_at
    `, employeeID, excludeID)
}

// FindCoveringDate は指定日を有効期間に含む取消以外のレコードを返します。
func (r *StatusRepository) FindCoveringDate(ctx context.Context, employeeID string, date time.Time) ([]*status.Record, error) {
	return r.query(ctx, `
        SELECT `+statusColumns+`
          FROM status_records
         WHERE employee_id = $1
           AND state <> 'cancelled'
           AND start_date <= $2
           AND (`+effectiveEndExpr+` IS NULL OR `+effectiveEndExpr+` >= $2)
         ORDER BY start_date, created_at
    `, employeeID, date)
}

// FindPlannedDueBy は開始日が date 以前の予定レコードを返します。
func (r *StatusRepository) FindPlannedDueBy(ctx context.Context, date time.Time) ([]*status.Record, error) {
	return r.query(ctx, `
        SELECT `+statusColumns+`
          FROM status_records
         WHERE state = 'planned'
           AND start_date <= $1
         ORDER BY employee_id, start_date
    `, date)
}

// FindActiveExpiredBy は有効終了日が date より前の適用中レコードを返します。
func (r *StatusRepository) FindActiveExpiredBy(ctx context.Context, date time.Time) ([]*status.Record, error) {
	return r.query(ctx, `
        SELECT `+statusColumns+`
          FROM status_records
         WHERE state = 'active'
           AND `+effectiveEndExpr+` < $1
         ORDER BY employee_id, start_date
    `, date)
}

// ListByEmployeeBetween は [from, to] と重なるレコードを開始日順に返します。
func (r *StatusRepository) ListByEmployeeBetween(ctx context.Context, employeeID string, from, to time.Time) ([]*status.Record, error) {
	return r.query(ctx, `
        SELECT `+statusColumns+`
          FROM status_records
         WHERE employee_id = $1
           AND start_date <= $3
           AND (`+effectiveEndExpr+` IS NULL OR `+effectiveEndExpr+` >= $2)
         ORDER BY start_date, created_at
    `, employeeID, from, to)
}

func (r *StatusRepository) query(ctx context.Context, q string, args ...any) ([]*status.Record, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, q, args...)
	if err != nil {
		return nil, translateStatusPgError(err)
	}
	defer rows.Close()

	var records []*status.Record
	for rows.Next() {
		rec, err := scanStatus(rows)
		if err != nil {
			return nil, translateStatusPgError(err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, translateStatusPgError(err)
	}
	return records, nil
}

func scanStatus(row pgx.Row) (*status.Record, error) {
	var (
		rec               status.Record
		statusType, state string
		startDate         time.Time
		endDate           sql.NullTime
		actualEndDate     sql.NullTime
		relatedDivision   sql.NullString
		createdBy         sql.NullString
	)

	if err := row.Scan(
		&rec.ID,
		&rec.EmployeeID,
		&statusType,
		&state,
		&startDate,
		&endDate,
		&actualEndDate,
		&rec.Comment,
		&rec.EarlyTerminationReason,
		&relatedDivision,
		&rec.Location,
		&createdBy,
		&rec.AutoApplied,
		&rec.Notified,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, status.ErrStatusNotFound
		}
		return nil, err
	}

	rec.Type = status.Type(statusType)
	rec.State = status.State(state)
	rec.StartDate = time.Date(startDate.Year(), startDate.Month(), startDate.Day(), 0, 0, 0, 0, time.UTC)
	rec.EndDate = dateFromNull(endDate)
	rec.ActualEndDate = dateFromNull(actualEndDate)
	rec.RelatedDivisionID = stringFromNull(relatedDivision)
	rec.CreatedBy = stringFromNull(createdBy)
	return &rec, nil
}

func translateStatusPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return status.ErrStatusNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case checkViolationCode:
			switch pgErr.ConstraintName {
			case "status_records_actual_end_date_check":
				return fmt.Errorf("%w: %s", status.ErrActualEndOutOfRange, pgErr.ConstraintName)
			case "status_records_in_service_end_check":
				return fmt.Errorf("%w: %s", status.ErrEndDateNotAllowed, pgErr.ConstraintName)
			default:
				return fmt.Errorf("%w: %s", status.ErrDateRangeInvalid, pgErr.ConstraintName)
			}
		case foreignKeyViolationCode:
			if pgErr.ConstraintName == "status_records_related_division_id_fkey" {
				return status.ErrDivisionNotFound
			}
			return status.ErrEmployeeNotFound
		case invalidTextRepresentation:
			return status.ErrInvalidID
		}
	}

	return err
}
