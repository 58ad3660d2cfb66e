package status

import (
	"errors"
	"fmt"
)

var (
	// ErrDateRangeInvalid は終了日が開始日より前の場合に返却されます。
	ErrDateRangeInvalid = errors.New("status: end date before start date")
	// ErrActualEndOutOfRange は実終了日が期間外の場合に返却されます。
	ErrActualEndOutOfRange = errors.New("status: actual end date out of range")
	// ErrStartBeforeHire は開始日が入社日より前の場合に返却されます。
	ErrStartBeforeHire = errors.New("status: start date before hire date")
	// ErrOverlapConflict は既存ステータスと期間が重複する場合に返却されます。
	ErrOverlapConflict = errors.New("status: overlaps existing status")
	// ErrVacationDurationExceeded は休暇日数が上限を超える場合に返却されます。
	ErrVacationDurationExceeded = errors.New("status: vacation duration exceeded")
	// ErrMissingEndDate は終了日が必要な種別で未指定の場合に返却されます。
	ErrMissingEndDate = errors.New("status: end date is required")
	// ErrEndDateNotAllowed は在籍ステータスに終了日が指定された場合に返却されます。
	ErrEndDateNotAllowed = errors.New("status: end date not allowed for in-service")

	ErrNotActive                  = errors.New("status: not active")
	ErrNotPlanned                 = errors.New("status: not planned")
	ErrEndDateNotAdvanced         = errors.New("status: new end date must be after current end date")
	ErrTerminationBeforeStart     = errors.New("status: termination date before start date")
	ErrTerminationAfterPlannedEnd = errors.New("status: termination date not before planned end date")

	ErrStatusNotFound          = errors.New("status: not found")
	ErrInvalidID               = errors.New("status: invalid id")
	ErrInvalidType             = errors.New("status: invalid type")
	ErrInvalidDate             = errors.New("status: invalid date")
	ErrEmployeeNotFound        = errors.New("status: employee not found")
	ErrEmployeeInactive        = errors.New("status: employee is not active")
	ErrDivisionNotFound        = errors.New("status: related division not found")
	ErrRelatedDivisionRequired = errors.New("status: related division is required for secondment")
)

// OverlapConflictError は重複相手のレコード ID を保持します。
type OverlapConflictError struct {
	ConflictingID string
}

func (e *OverlapConflictError) Error() string {
	return fmt.Sprintf("%s: conflicting record %s", ErrOverlapConflict.Error(), e.ConflictingID)
}

func (e *OverlapConflictError) Unwrap() error {
	return ErrOverlapConflict
}

// VacationDurationExceededError は上限日数と要求日数を保持します。
type VacationDurationExceededError struct {
	MaxDays int
	Days    int
}

func (e *VacationDurationExceededError) Error() string {
	return fmt.Sprintf("%s: %d days requested, max %d", ErrVacationDurationExceeded.Error(), e.Days, e.MaxDays)
}

func (e *VacationDurationExceededError) Unwrap() error {
	return ErrVacationDurationExceeded
}

// IsValidationError は入力内容に起因するエラーかどうかを返します。
func IsValidationError(err error) bool {
	return errors.Is(err, ErrDateRangeInvalid) ||
		errors.Is(err, ErrActualEndOutOfRange) ||
		errors.Is(err, ErrStartBeforeHire) ||
		errors.Is(err, ErrOverlapConflict) ||
		errors.Is(err, ErrVacationDurationExceeded) ||
		errors.Is(err, ErrMissingEndDate) ||
		errors.Is(err, ErrEndDateNotAllowed) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidType) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrRelatedDivisionRequired)
}

// IsTransitionError は状態遷移の前提条件違反かどうかを返します。
func IsTransitionError(err error) bool {
	return errors.Is(err, ErrNotActive) ||
		errors.Is(err, ErrNotPlanned) ||
		errors.Is(err, ErrEndDateNotAdvanced) ||
		errors.Is(err, ErrTerminationBeforeStart) ||
		errors.Is(err, ErrTerminationAfterPlannedEnd)
}
