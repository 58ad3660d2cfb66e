package division

import "time"

// Status は部署の状態を表します。
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Division は部署エンティティです。出向元・出向先として参照されます。
type Division struct {
	ID        string
	Name      string
	Code      string
	ParentID  *string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}
