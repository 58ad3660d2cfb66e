package status

import (
	"context"
	"fmt"
)

// appendHistory は変更前後のスナップショットを履歴に追記します。
func (s *Service) appendHistory(ctx context.Context, rec *Record, change ChangeType, before *Snapshot, actor *string) error {
	entry := &HistoryEntry{
		StatusID:   rec.ID,
		EmployeeID: rec.EmployeeID,
		ChangeType: change,
		OldValue:   before,
		NewValue:   snapshotOf(rec),
		ActorID:    cloneString(actor),
		CreatedAt:  rec.UpdatedAt,
	}
	if err := s.history.Append(ctx, entry); err != nil {
		return fmt.Errorf("status: append history: %w", err)
	}
	return nil
}

func snapshotOf(r *Record) *Snapshot {
	if r == nil {
		return nil
	}
	start := r.StartDate.Format(dateLayout)
	return &Snapshot{
		State:                  r.State,
		StartDate:              start,
		EndDate:                formatDate(r.EndDate),
		ActualEndDate:          formatDate(r.ActualEndDate),
		Comment:                r.Comment,
		EarlyTerminationReason: r.EarlyTerminationReason,
		RelatedDivisionID:      cloneString(r.RelatedDivisionID),
		Location:               r.Location,
		AutoApplied:            r.AutoApplied,
	}
}
