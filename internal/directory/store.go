package directory

import "context"

// Store describes persistence operations for employees, departments and
// positions. Missing rows map to the package's not-found sentinels; linking
// an account twice maps to ErrDuplicateAccountLink.
type Store interface {
	Create(ctx context.Context, e *Employee) error
	Update(ctx context.Context, e *Employee) error
	FindByID(ctx context.Context, id string) (*Employee, error)
	FindByCode(ctx context.Context, code string) (*Employee, error)
	// FindByAccount resolves the employee linked to an account id.
	FindByAccount(ctx context.Context, accountID string) (*Employee, error)
	Detail(ctx context.Context, id string) (*EmployeeDetail, error)
	ListDetails(ctx context.Context) ([]*EmployeeDetail, error)
	// NextCode returns the next sequential employee code (EMP001, EMP002...).
	NextCode(ctx context.Context) (string, error)

	FindOrCreateDepartment(ctx context.Context, name string) (*Department, error)
	DepartmentByID(ctx context.Context, id string) (*Department, error)
	ListDepartments(ctx context.Context) ([]*Department, error)

	FindOrCreatePosition(ctx context.Context, name string) (*Position, error)
	PositionByID(ctx context.Context, id string) (*Position, error)
	ListPositions(ctx context.Context) ([]*Position, error)
}
