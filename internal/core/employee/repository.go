package employee

import (
	"context"
	"time"
)

// Repository は社員永続化の抽象です。
type Repository interface {
	Create(ctx context.Context, employee *Employee) (*Employee, error)
	Update(ctx context.Context, employee *Employee) (*Employee, error)
	FindByID(ctx context.Context, id string) (*Employee, error)
	FindByDivisionAndCode(ctx context.Context, divisionID, employeeCode string) (*Employee, error)
}

// DismissalHandler は退職確定時に同一トランザクション内で呼び出されます。
type DismissalHandler interface {
	OnEmployeeDismissed(ctx context.Context, employeeID string, dismissalDate time.Time) error
}
