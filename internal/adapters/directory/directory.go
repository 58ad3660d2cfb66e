// Package directory は社員・部署サービスをステータスエンジンの参照インターフェースへ接続します。
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/ogurasousui/staff-status-engine/internal/core/division"
	"github.com/ogurasousui/staff-status-engine/internal/core/employee"
	"github.com/ogurasousui/staff-status-engine/internal/core/status"
)

type employeeGetter interface {
	GetEmployee(ctx context.Context, in employee.GetEmployeeInput) (*employee.Employee, error)
}

type divisionChecker interface {
	DivisionExists(ctx context.Context, id string) (bool, error)
}

type dismissalEngine interface {
	OnEmployeeDismissed(ctx context.Context, employeeID string, dismissalDate time.Time) ([]*status.Record, error)
}

// Employees は status.EmployeeDirectory の実装です。
type Employees struct {
	svc employeeGetter
}

// NewEmployees は Employees を生成します。
func NewEmployees(svc employeeGetter) *Employees {
	return &Employees{svc: svc}
}

// FindEmployee は社員を取得し、ステータス管理用のビューに変換します。
func (d *Employees) FindEmployee(ctx context.Context, id string) (*status.Employee, error) {
	emp, err := d.svc.GetEmployee(ctx, employee.GetEmployeeInput{ID: id})
	if err != nil {
		if errors.Is(err, employee.ErrEmployeeNotFound) || errors.Is(err, employee.ErrInvalidID) {
			return nil, status.ErrEmployeeNotFound
		}
		return nil, err
	}
	return &status.Employee{
		ID:       emp.ID,
		HireDate: emp.HiredAt,
		Active:   emp.IsActive(),
	}, nil
}

// Divisions は status.DivisionDirectory の実装です。
type Divisions struct {
	svc divisionChecker
}

// NewDivisions は Divisions を生成します。
func NewDivisions(svc divisionChecker) *Divisions {
	return &Divisions{svc: svc}
}

func (d *Divisions) DivisionExists(ctx context.Context, id string) (bool, error) {
	return d.svc.DivisionExists(ctx, id)
}

// Dismissals は退職イベントをステータスエンジンへ転送する employee.DismissalHandler です。
type Dismissals struct {
	engine dismissalEngine
}

// NewDismissals は Dismissals を生成します。
func NewDismissals(engine dismissalEngine) *Dismissals {
	return &Dismissals{engine: engine}
}

func (d *Dismissals) OnEmployeeDismissed(ctx context.Context, employeeID string, dismissalDate time.Time) error {
	_, err := d.engine.OnEmployeeDismissed(ctx, employeeID, dismissalDate)
	return err
}

var (
	_ status.EmployeeDirectory  = (*Employees)(nil)
	_ status.DivisionDirectory  = (*Divisions)(nil)
	_ employee.DismissalHandler = (*Dismissals)(nil)
	_ divisionChecker           = (*division.Service)(nil)
	_ employeeGetter            = (*employee.Service)(nil)
	_ dismissalEngine           = (*status.Service)(nil)
)
