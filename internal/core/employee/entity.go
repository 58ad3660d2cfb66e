package employee

import "time"

// Status は社員の在籍状態を表します。
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Employee は社員エンティティです。ステータス管理側からは読み取り専用で参照されます。
type Employee struct {
	ID           string
	DivisionID   string
	EmployeeCode string
	LastName     string
	FirstName    string
	Status       Status
	HiredAt      *time.Time
	TerminatedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsActive は在籍中かどうかを返します。
func (e *Employee) IsActive() bool {
	return e.Status == StatusActive
}
