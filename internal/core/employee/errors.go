package employee

import "errors"

var (
	ErrInvalidID                 = errors.New("employee: invalid id")
	ErrInvalidDivisionID         = errors.New("employee: invalid division id")
	ErrInvalidEmployeeCode       = errors.New("employee: invalid employee code")
	ErrInvalidLastName           = errors.New("employee: invalid last name")
	ErrInvalidFirstName          = errors.New("employee: invalid first name")
	ErrInvalidDateRange          = errors.New("employee: invalid employment period")
	ErrDismissalDateRequired     = errors.New("employee: dismissal date is required")
	ErrAlreadyDismissed          = errors.New("employee: already dismissed")
	ErrEmployeeNotFound          = errors.New("employee: not found")
	ErrEmployeeCodeAlreadyExists = errors.New("employee: employee code already exists")
	ErrDivisionNotFound          = errors.New("employee: division not found")
)
