package workflow

import "errors"

var (
	ErrRequestNotFound  = errors.New("workflow: request not found")
	ErrEmployeeNotFound = errors.New("workflow: employee not found")
	ErrWorkflowNotFound = errors.New("workflow: entry not found")
	ErrInvalidStatus    = errors.New("workflow: invalid status")
)
