package status

import "time"

// DefaultMaxVacationDays は休暇日数上限の既定値です。
const DefaultMaxVacationDays = 45

// Rules は検証に用いる設定値です。
type Rules struct {
	MaxVacationDays int
}

func (r Rules) maxVacationDays() int {
	if r.MaxVacationDays <= 0 {
		return DefaultMaxVacationDays
	}
	return r.MaxVacationDays
}

// ValidateRecord は永続化前のレコードの日付・種別・休暇日数を検証します。
// 期間の重複は CheckOverlap で別途検証します。
func (r Rules) ValidateRecord(rec *Record, emp *Employee) error {
	if !isValidType(rec.Type) {
		return ErrInvalidType
	}
	if rec.StartDate.IsZero() {
		return ErrInvalidDate
	}

	if rec.Type == TypeInService {
		if rec.EndDate != nil {
			return ErrEndDateNotAllowed
		}
	} else if rec.EndDate == nil && rec.State != StatePlanned {
		return ErrMissingEndDate
	}

	if rec.EndDate != nil && rec.EndDate.Before(rec.StartDate) {
		return ErrDateRangeInvalid
	}

	if rec.ActualEndDate != nil {
		if rec.ActualEndDate.Before(rec.StartDate) {
			return ErrActualEndOutOfRange
		}
		if rec.EndDate != nil && rec.ActualEndDate.After(*rec.EndDate) {
			return ErrActualEndOutOfRange
		}
	}

	if emp != nil && emp.HireDate != nil && rec.StartDate.Before(truncateDate(*emp.HireDate)) {
		return ErrStartBeforeHire
	}

	if rec.Type == TypeVacation && rec.EndDate != nil {
		if err := r.checkVacationDuration(rec.StartDate, *rec.EndDate); err != nil {
			return err
		}
	}

	return nil
}

func (r Rules) checkVacationDuration(start, end time.Time) error {
	days := DaysInclusive(start, end)
	if limit := r.maxVacationDays(); days > limit {
		return &VacationDurationExceededError{MaxDays: limit, Days: days}
	}
	return nil
}

func isValidType(t Type) bool {
	switch t {
	case TypeInService, TypeVacation, TypeSickLeave, TypeBusinessTrip,
		TypeTraining, TypeOtherAbsence, TypeSecondedFrom, TypeSecondedTo:
		return true
	default:
		return false
	}
}

// ParseType は文字列から種別を解釈します。
func ParseType(raw string) (Type, error) {
	t := Type(raw)
	if !isValidType(t) {
		return "", ErrInvalidType
	}
	return t, nil
}
