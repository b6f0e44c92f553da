package directory

import "time"

// EmployeeStatus is the employment lifecycle state, independent of the
// account's authentication status.
type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "Active"
	EmployeeInactive EmployeeStatus = "Inactive"
)

// Employee maps an account to its place in the organization. Department and
// position are optional; removing either never removes the employee.
type Employee struct {
	ID           string
	Code         string // human-readable sequential code, EMP001...
	AccountID    *string
	DepartmentID *string
	PositionID   *string
	HireDate     *time.Time
	Status       EmployeeStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Department groups employees. Name is unique.
type Department struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// Position is a job title. Name is unique.
type Position struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// EmployeeDetail is the joined read view used by the HTTP layer: the employee
// with resolved department/position names and the linked account summary.
type EmployeeDetail struct {
	Employee
	AccountEmail   *string
	AccountStatus  *string
	DepartmentName *string
	PositionName   *string
}
