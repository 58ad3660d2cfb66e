package memory

import (
	"context"

	"github.com/ogurasousui/staff-status-engine/internal/core/status"
)

// HistoryRepository は Store 上の追記専用の変更履歴です。
type HistoryRepository struct {
	store *Store
}

// NewHistoryRepository は HistoryRepository を生成します。
func NewHistoryRepository(store *Store) *HistoryRepository {
	return &HistoryRepository{store: store}
}

// Append は履歴を追記し、採番した ID を entry に設定します。
func (r *HistoryRepository) Append(ctx context.Context, entry *status.HistoryEntry) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.historyID++
	id := s.historyID
	if err := s.write(ctx, func() { s.history = removeEntry(s.history, id) }); err != nil {
		return err
	}

	entry.ID = id
	stored := *entry
	s.history = append(s.history, &stored)
	return nil
}

// ListByStatus はレコードの履歴を追記順に返します。
func (r *HistoryRepository) ListByStatus(_ context.Context, statusID string) ([]*status.HistoryEntry, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*status.HistoryEntry
	for _, e := range s.history {
		if e.StatusID == statusID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func removeEntry(entries []*status.HistoryEntry, id int64) []*status.HistoryEntry {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ID == id {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}
