package workflow

import (
	"time"

	"hrdesk.org/internal/account"
)

// RequestStatus is the change-request lifecycle: Draft -> Pending ->
// Approved|Rejected. A Draft is never visible to approvers.
type RequestStatus string

const (
	RequestDraft    RequestStatus = "Draft"
	RequestPending  RequestStatus = "Pending"
	RequestApproved RequestStatus = "Approved"
	RequestRejected RequestStatus = "Rejected"
)

// Status is the state of a workflow task. Workflow never carries Draft: an
// update that would persist a Draft request logs the entry as Pending.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// Workflow entry types.
const (
	TypeRequestApproval    = "Request Approval"
	TypeRequestUpdate      = "Request Update"
	TypeOnboarding         = "Onboarding"
	TypeDepartmentTransfer = "Department Transfer"
	TypeChangePosition     = "Change Position"
)

// Request is a change/order submitted by or for an employee.
type Request struct {
	ID            string
	Type          string
	Items         string // comma-delimited item list
	Status        RequestStatus
	EmployeeID    string
	CreatedByRole account.Role
	ApproverID    *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Workflow is an immutable audit/task entry. Updates to a request produce a
// new row here rather than mutating history.
type Workflow struct {
	ID         string
	Type       string
	Details    string
	Status     Status
	EmployeeID string
	RequestID  *string
	CreatedAt  time.Time
}

// RequestDetail is the joined read view: the request plus the owning
// employee's code and resolved account/department/position summaries.
type RequestDetail struct {
	Request
	EmployeeCode   string
	AccountEmail   *string
	DepartmentName *string
	PositionName   *string
}
