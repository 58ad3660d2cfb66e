package status

import "time"

// Type は社員に適用されるステータスの種別です。
type Type string

const (
	TypeInService    Type = "in_service"
	TypeVacation     Type = "vacation"
	TypeSickLeave    Type = "sick_leave"
	TypeBusinessTrip Type = "business_trip"
	TypeTraining     Type = "training"
	TypeOtherAbsence Type = "other_absence"
	TypeSecondedFrom Type = "seconded_from"
	TypeSecondedTo   Type = "seconded_to"
)

// IsSecondment は出向系（重複チェックの例外対象）の種別かどうかを返します。
func (t Type) IsSecondment() bool {
	return t == TypeSecondedFrom || t == TypeSecondedTo
}

// State はステータスレコードのライフサイクル上の状態です。常にサーバー側で導出されます。
type State string

const (
	StatePlanned   State = "planned"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// IsTerminal は以降の変更を受け付けない状態かどうかを返します。
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Record は社員ステータスレコードのエンティティです。
type Record struct {
	ID                     string
	EmployeeID             string
	Type                   Type
	State                  State
	StartDate              time.Time
	EndDate                *time.Time
	ActualEndDate          *time.Time
	Comment                string
	EarlyTerminationReason string
	RelatedDivisionID      *string
	Location               string
	CreatedBy              *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
	AutoApplied            bool
	Notified               bool
}

// EffectiveEnd は実終了日があればそれを、なければ予定終了日を返します。nil は無期限です。
func (r *Record) EffectiveEnd() *time.Time {
	return effectiveEnd(r.EndDate, r.ActualEndDate)
}

// Interval はレコードの有効期間を返します。
func (r *Record) Interval() Interval {
	return Interval{Start: r.StartDate, End: r.EffectiveEnd()}
}

// Covers は指定日がレコードの有効期間に含まれるかを返します。
func (r *Record) Covers(date time.Time) bool {
	return r.Interval().Contains(date)
}

func (r *Record) isOpen() bool {
	return r.State == StatePlanned || r.State == StateActive
}

// Interval は日付単位の閉区間 [Start, End] です。End が nil の場合は無期限です。
type Interval struct {
	Start time.Time
	End   *time.Time
}

// Contains は日付が区間内にあるかを返します。
func (i Interval) Contains(date time.Time) bool {
	d := truncateDate(date)
	if d.Before(i.Start) {
		return false
	}
	return i.End == nil || !d.After(*i.End)
}

// Intersects は二つの区間が一日以上重なるかを返します。
func (i Interval) Intersects(other Interval) bool {
	if i.End != nil && other.Start.After(*i.End) {
		return false
	}
	if other.End != nil && i.Start.After(*other.End) {
		return false
	}
	return true
}

// ChangeType は変更履歴の種別です。
type ChangeType string

const (
	ChangeCreated    ChangeType = "created"
	ChangeExtended   ChangeType = "extended"
	ChangeTerminated ChangeType = "terminated"
	ChangeCancelled  ChangeType = "cancelled"
	ChangeModified   ChangeType = "modified"
)

// Snapshot は変更前後の値として履歴に記録されるレコードの写しです。
type Snapshot struct {
	State                  State   `json:"state"`
	StartDate              string  `json:"start_date"`
	EndDate                *string `json:"end_date,omitempty"`
	ActualEndDate          *string `json:"actual_end_date,omitempty"`
	Comment                string  `json:"comment,omitempty"`
	EarlyTerminationReason string  `json:"early_termination_reason,omitempty"`
	RelatedDivisionID      *string `json:"related_division_id,omitempty"`
	Location               string  `json:"location,omitempty"`
	AutoApplied            bool    `json:"auto_applied"`
}

// HistoryEntry は追記専用の変更履歴です。書き込み後は変更されません。
type HistoryEntry struct {
	ID         int64
	StatusID   string
	EmployeeID string
	ChangeType ChangeType
	OldValue   *Snapshot
	NewValue   *Snapshot
	ActorID    *string
	CreatedAt  time.Time
}

// Employee はステータス管理に必要な社員情報の読み取り専用ビューです。
type Employee struct {
	ID       string
	HireDate *time.Time
	Active   bool
}

// NotificationKind は通知種別です。
type NotificationKind string

const (
	NotifyStatusCreated   NotificationKind = "status_created"
	NotifyStatusApplied   NotificationKind = "status_applied"
	NotifyStatusCompleted NotificationKind = "status_completed"
	NotifyStatusExtended  NotificationKind = "status_extended"
)
