package division

import "errors"

var (
	// ErrDivisionNotFound は部署が存在しない場合に返却されます。
	ErrDivisionNotFound = errors.New("division: not found")
	// ErrCodeAlreadyExists はコード重複時に返却されます。
	ErrCodeAlreadyExists = errors.New("division: code already exists")
	// ErrInvalidName は部署名が不正な場合に返却されます。
	ErrInvalidName = errors.New("division: invalid name")
	// ErrInvalidCode は部署コードが不正な場合に返却されます。
	ErrInvalidCode = errors.New("division: invalid code")
	// ErrInvalidID は ID が不正な場合に返却されます。
	ErrInvalidID = errors.New("division: invalid id")
	// ErrParentNotFound は親部署が存在しない場合に返却されます。
	ErrParentNotFound = errors.New("division: parent not found")
)
