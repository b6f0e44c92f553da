package directory

import "errors"

var (
	ErrNotFound             = errors.New("directory: employee not found")
	ErrDepartmentNotFound   = errors.New("directory: department not found")
	ErrPositionNotFound     = errors.New("directory: position not found")
	ErrDuplicateAccountLink = errors.New("directory: account is already linked to an employee")
)
