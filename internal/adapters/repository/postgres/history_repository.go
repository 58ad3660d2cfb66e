package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ogurasousui/staff-status-engine/internal/core/status"
	pgdb "github.com/ogurasousui/staff-status-engine/internal/platform/db/postgres"
)

// HistoryRepository は status_change_history テーブルへの追記と参照を行います。
type HistoryRepository struct {
	pool pgdb.Queryer
}

// NewHistoryRepository は HistoryRepository を生成します。
func NewHistoryRepository(pool pgdb.Queryer) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// Append は変更履歴を追記します。採番された ID を entry に反映します。
func (r *HistoryRepository) Append(ctx context.Context, entry *status.HistoryEntry) error {
	oldValue, err := marshalSnapshot(entry.OldValue)
	if err != nil {
		return err
	}
	newValue, err := marshalSnapshot(entry.NewValue)
	if err != nil {
		return err
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO status_change_history (status_id, employee_id, change_type, old_value, new_value, actor_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `,
		entry.StatusID,
		entry.EmployeeID,
		string(entry.ChangeType),
		oldValue,
		newValue,
		nullableString(entry.ActorID),
		entry.CreatedAt,
	)

	var id int64
	if err := row.Scan(&id); err != nil {
		return translateStatusPgError(err)
	}
	entry.ID = id
	return nil
}

// ListByStatus はステータスレコードの変更履歴を記録順に返します。
func (r *HistoryRepository) ListByStatus(ctx context.Context, statusID string) ([]*status.HistoryEntry, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, `
        SELECT id, status_id, employee_id, change_type, old_value, new_value, actor_id, created_at
          FROM status_change_history
         WHERE status_id = $1
         ORDER BY id
    `, statusID)
	if err != nil {
		return nil, translateStatusPgError(err)
	}
	defer rows.Close()

	var entries []*status.HistoryEntry
	for rows.Next() {
		var (
			entry      status.HistoryEntry
			changeType string
			oldValue   []byte
			newValue   []byte
			actorID    sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.StatusID, &entry.EmployeeID, &changeType, &oldValue, &newValue, &actorID, &entry.CreatedAt); err != nil {
			return nil, translateStatusPgError(err)
		}
		entry.ChangeType = status.ChangeType(changeType)
		entry.ActorID = stringFromNull(actorID)
		if entry.OldValue, err = unmarshalSnapshot(oldValue); err != nil {
			return nil, err
		}
		if entry.NewValue, err = unmarshalSnapshot(newValue); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, translateStatusPgError(err)
	}
	return entries, nil
}

func marshalSnapshot(s *status.Snapshot) (any, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode snapshot: %w", err)
	}
	return b, nil
}

func unmarshalSnapshot(b []byte) (*status.Snapshot, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var s status.Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("postgres: decode snapshot: %w", err)
	}
	return &s, nil
}
