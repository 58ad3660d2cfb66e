package notification

import (
	"encoding/json"
	"time"
)

const dateLayout = "2006-01-02"

// payload は外部へ送出する通知本文です。
type payload struct {
	Kind          string  `json:"kind"`
	StatusID      string  `json:"status_id"`
	EmployeeID    string  `json:"employee_id"`
	StatusType    string  `json:"status_type"`
	State         string  `json:"state"`
	StartDate     string  `json:"start_date"`
	EndDate       *string `json:"end_date,omitempty"`
	ActualEndDate *string `json:"actual_end_date,omitempty"`
	AutoApplied   bool    `json:"auto_applied"`
	OccurredAt    string  `json:"occurred_at"`
}

func encodeEvent(ev Event) ([]byte, error) {
	rec := ev.Record
	return json.Marshal(payload{
		Kind:          string(ev.Kind),
		StatusID:      rec.ID,
		EmployeeID:    rec.EmployeeID,
		StatusType:    string(rec.Type),
		State:         string(rec.State),
		StartDate:     rec.StartDate.Format(dateLayout),
		EndDate:       formatDate(rec.EndDate),
		ActualEndDate: formatDate(rec.ActualEndDate),
		AutoApplied:   rec.AutoApplied,
		OccurredAt:    ev.OccurredAt.Format(time.RFC3339),
	})
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}
