package status

import (
	"context"
	"time"
)

// Repository はステータスレコード永続化の抽象です。
// 更新系の呼び出しは LockEmployee を取得したトランザクション内で行います。
type Repository interface {
	// LockEmployee は社員単位の排他を現在のトランザクション終了まで確保します。
	LockEmployee(ctx context.Context, employeeID string) error
	Create(ctx context.Context, rec *Record) (*Record, error)
	Update(ctx context.Context, rec *Record) (*Record, error)
	FindByID(ctx context.Context, id string) (*Record, error)
	// FindActiveOrPlanned は社員の予定・適用中レコードを返します。excludeID が空でなければ除外します。
	FindActiveOrPlanned(ctx context.Context, employeeID, excludeID string) ([]*Record, error)
	// FindCoveringDate は指定日を有効期間に含む取消以外のレコードを返します。
	FindCoveringDate(ctx context.Context, employeeID string, date time.Time) ([]*Record, error)
	// FindPlannedDueBy は開始日が date 以前の予定レコードを全社員分返します。
	FindPlannedDueBy(ctx context.Context, date time.Time) ([]*Record, error)
	// FindActiveExpiredBy は実効終了日が date より前の適用中レコードを全社員分返します。
	FindActiveExpiredBy(ctx context.Context, date time.Time) ([]*Record, error)
	// ListByEmployeeBetween は [from, to] と重なるレコードを開始日順に返します。
	ListByEmployeeBetween(ctx context.Context, employeeID string, from, to time.Time) ([]*Record, error)
}

// HistoryRepository は変更履歴の追記専用ストアです。
type HistoryRepository interface {
	Append(ctx context.Context, entry *HistoryEntry) error
	ListByStatus(ctx context.Context, statusID string) ([]*HistoryEntry, error)
}

// EmployeeDirectory は外部の社員情報を参照します。
type EmployeeDirectory interface {
	FindEmployee(ctx context.Context, id string) (*Employee, error)
}

// DivisionDirectory は出向先・出向元の部署を参照します。
type DivisionDirectory interface {
	DivisionExists(ctx context.Context, id string) (bool, error)
}

// Notifier は通知の送出口です。成否はエンジンに影響しません。
type Notifier interface {
	Notify(ctx context.Context, kind NotificationKind, rec *Record)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, NotificationKind, *Record) {}
