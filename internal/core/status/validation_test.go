package status

import (
	"errors"
	"testing"
	"time"
)

func TestRules_ValidateRecord(t *testing.T) {
	t.Parallel()

	hired := &Employee{ID: testEmployee, HireDate: ptrDate(2024, time.April, 1), Active: true}

	cases := []struct {
		name string
		rec  Record
		emp  *Employee
		want error
	}{
		{
			name: "valid vacation",
			rec:  Record{Type: TypeVacation, State: StatePlanned, StartDate: Date(2025, time.March, 1), EndDate: ptrDate(2025, time.March, 14)},
		},
		{
			name: "unknown type",
			rec:  Record{Type: Type("holiday"), StartDate: Date(2025, time.March, 1)},
			want: ErrInvalidType,
		},
		{
			name: "in service with end date",
			rec:  Record{Type: TypeInService, State: StateActive, StartDate: Date(2025, time.March, 1), EndDate: ptrDate(2025, time.March, 2)},
			want: ErrEndDateNotAllowed,
		},
		{
			name: "active sick leave without end",
			rec:  Record{Type: TypeSickLeave, State: StateActive, StartDate: Date(2025, time.March, 1)},
			want: ErrMissingEndDate,
		},
		{
			name: "planned sick leave without end",
			rec:  Record{Type: TypeSickLeave, State: StatePlanned, StartDate: Date(2025, time.March, 1)},
		},
		{
			name: "end before start",
			rec:  Record{Type: TypeTraining, State: StatePlanned, StartDate: Date(2025, time.March, 10), EndDate: ptrDate(2025, time.March, 9)},
			want: ErrDateRangeInvalid,
		},
		{
			name: "actual end after planned end",
			rec:  Record{Type: TypeTraining, State: StateCompleted, StartDate: Date(2025, time.March, 1), EndDate: ptrDate(2025, time.March, 9), ActualEndDate: ptrDate(2025, time.March, 10)},
			want: ErrActualEndOutOfRange,
		},
		{
			name: "actual end before start",
			rec:  Record{Type: TypeTraining, State: StateCompleted, StartDate: Date(2025, time.March, 5), EndDate: ptrDate(2025, time.March, 9), ActualEndDate: ptrDate(2025, time.March, 4)},
			want: ErrActualEndOutOfRange,
		},
		{
			name: "start before hire date",
			rec:  Record{Type: TypeBusinessTrip, State: StatePlanned, StartDate: Date(2024, time.March, 31), EndDate: ptrDate(2024, time.April, 3)},
			emp:  hired,
			want: ErrStartBeforeHire,
		},
		{
			name: "start on hire date",
			rec:  Record{Type: TypeBusinessTrip, State: StatePlanned, StartDate: Date(2024, time.April, 1), EndDate: ptrDate(2024, time.April, 3)},
			emp:  hired,
		},
		{
			name: "vacation of exactly 45 days",
			rec:  Record{Type: TypeVacation, State: StatePlanned, StartDate: Date(2025, time.January, 1), EndDate: ptrDate(2025, time.February, 14)},
		},
		{
			name: "vacation of 46 days",
			rec:  Record{Type: TypeVacation, State: StatePlanned, StartDate: Date(2025, time.January, 1), EndDate: ptrDate(2025, time.February, 15)},
			want: ErrVacationDurationExceeded,
		},
		{
			name: "long training is not limited",
			rec:  Record{Type: TypeTraining, State: StatePlanned, StartDate: Date(2025, time.January, 1), EndDate: ptrDate(2025, time.June, 30)},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := tc.rec
			err := Rules{}.ValidateRecord(&rec, tc.emp)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRules_VacationLimitIsConfigurable(t *testing.T) {
	t.Parallel()

	rec := &Record{Type: TypeVacation, State: StatePlanned, StartDate: Date(2025, time.January, 1), EndDate: ptrDate(2025, time.January, 11)}

	err := Rules{MaxVacationDays: 10}.ValidateRecord(rec, nil)
	var exceeded *VacationDurationExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected VacationDurationExceededError, got %v", err)
	}
	if exceeded.MaxDays != 10 || exceeded.Days != 11 {
		t.Fatalf("unexpected details: %+v", exceeded)
	}
}

func TestParseType(t *testing.T) {
	t.Parallel()

	if got, err := ParseType("seconded_to"); err != nil || got != TypeSecondedTo {
		t.Fatalf("expected seconded_to, got %s (%v)", got, err)
	}
	if _, err := ParseType("SECONDED_TO"); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType for unknown spelling, got %v", err)
	}
}
