package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hrdesk.org/internal/account"
	"hrdesk.org/internal/directory"
	"hrdesk.org/internal/ids"
)

// Service is the workflow engine: it owns the change-request lifecycle,
// computes field-level diffs on update, emits immutable workflow entries and
// applies the same diff-and-log pattern to employee changes.
type Service struct {
	store Store
	dir   directory.Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the workflow engine over its store and the employee
// directory.
func NewService(store Store, dir directory.Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequestParams is the request-creation payload.
type CreateRequestParams struct {
	Type       string
	Items      string
	Status     RequestStatus // empty means Draft
	EmployeeID string        // ignored for non-admin callers
}

// CreateRequest persists a new change-request for the acting identity. A
// User's request is always attached to their own employee record; only an
// explicit Pending status emits a reviewable workflow task.
func (s *Service) CreateRequest(ctx context.Context, identity account.Identity, params CreateRequestParams) (*Request, error) {
	if strings.TrimSpace(params.Type) == "" {
		return nil, fmt.Errorf("workflow: request type is required")
	}

	emp, err := s.resolveActingEmployee(ctx, identity, params.EmployeeID)
	if err != nil {
		return nil, err
	}

	status := RequestDraft
	if params.Status == RequestPending {
		status = RequestPending
	}

	now := s.now().UTC()
	req := &Request{
		ID:            ids.New(),
		Type:          strings.TrimSpace(params.Type),
		Items:         params.Items,
		Status:        status,
		EmployeeID:    emp.ID,
		CreatedByRole: identity.Role,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var task *Workflow
	if status == RequestPending {
		task = &Workflow{
			ID:         ids.New(),
			Type:       TypeRequestApproval,
			Details:    fmt.Sprintf("Review %s request #%s from %s.", req.Type, req.ID, emp.Code),
			Status:     StatusPending,
			EmployeeID: emp.ID,
			RequestID:  &req.ID,
			CreatedAt:  now,
		}
	}

	if err := s.store.Requests(ctx).Create(ctx, req, task); err != nil {
		return nil, err
	}
	return req, nil
}

// UpdateRequestParams carries optional request changes; nil means "leave as
// is".
type UpdateRequestParams struct {
	Type   *string
	Items  *string
	Status *RequestStatus
}

// UpdateRequest applies the change, persists it and always appends exactly
// one workflow entry summarizing the diff against the snapshot this caller
// observed. Concurrent updates may both win the row, but each produces its
// own audit entry.
func (s *Service) UpdateRequest(ctx context.Context, identity account.Identity, id string, params UpdateRequestParams) (*Request, error) {
	requests := s.store.Requests(ctx)
	req, err := requests.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	old := *req

	if params.Type != nil && strings.TrimSpace(*params.Type) != "" {
		req.Type = strings.TrimSpace(*params.Type)
	}
	if params.Items != nil {
		req.Items = *params.Items
	}
	if params.Status != nil {
		req.Status = *params.Status
	}
	req.UpdatedAt = s.now().UTC()

	actor := "Admin"
	if !identity.IsAdmin() {
		emp, err := s.dir.FindByID(ctx, req.EmployeeID)
		if err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				return nil, ErrEmployeeNotFound
			}
			return nil, err
		}
		actor = "Employee " + emp.Code
	}

	// Workflow rows never carry Draft.
	logged := req.Status
	if logged == RequestDraft {
		logged = RequestPending
	}
	entryType := TypeRequestUpdate
	if old.Status != RequestPending && req.Status == RequestPending {
		// The transition into Pending is what puts the request in front of
		// reviewers.
		entryType = TypeRequestApproval
	}
	entry := &Workflow{
		ID:         ids.New(),
		Type:       entryType,
		Details:    changeDetails(actor, &old, req),
		Status:     Status(logged),
		EmployeeID: req.EmployeeID,
		RequestID:  &req.ID,
		CreatedAt:  req.UpdatedAt,
	}

	if err := requests.UpdateWithLog(ctx, req, entry); err != nil {
		return nil, err
	}
	return req, nil
}

// GetRequest returns the joined request view.
func (s *Service) GetRequest(ctx context.Context, id string) (*RequestDetail, error) {
	return s.store.Requests(ctx).Detail(ctx, id)
}

// ListRequests returns every request with employee summaries.
func (s *Service) ListRequests(ctx context.Context) ([]*RequestDetail, error) {
	return s.store.Requests(ctx).List(ctx)
}

// CreateEmployeeParams is the employee-onboarding payload.
type CreateEmployeeParams struct {
	AccountID    *string
	Department   string // resolved by name, created when missing
	DepartmentID *string
	Position     string
	PositionID   *string
	HireDate     *time.Time
	Status       directory.EmployeeStatus
}

// CreateEmployee onboards an employee: assigns the next sequential code,
// resolves department and position, and appends the Onboarding workflow
// entry. A failed audit append fails the operation.
func (s *Service) CreateEmployee(ctx context.Context, params CreateEmployeeParams) (*directory.Employee, error) {
	if params.AccountID != nil {
		if _, err := s.dir.FindByAccount(ctx, *params.AccountID); err == nil {
			return nil, directory.ErrDuplicateAccountLink
		} else if !errors.Is(err, directory.ErrNotFound) {
			return nil, err
		}
	}

	var dept *directory.Department
	var err error
	switch {
	case params.DepartmentID != nil:
		dept, err = s.dir.DepartmentByID(ctx, *params.DepartmentID)
	case params.Department != "":
		dept, err = s.dir.FindOrCreateDepartment(ctx, params.Department)
	}
	if err != nil {
		return nil, err
	}

	var pos *directory.Position
	switch {
	case params.PositionID != nil:
		pos, err = s.dir.PositionByID(ctx, *params.PositionID)
	case params.Position != "":
		pos, err = s.dir.FindOrCreatePosition(ctx, params.Position)
	}
	if err != nil {
		return nil, err
	}

	code, err := s.dir.NextCode(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	status := params.Status
	if status == "" {
		status = directory.EmployeeActive
	}
	emp := &directory.Employee{
		ID:        ids.New(),
		Code:      code,
		AccountID: params.AccountID,
		HireDate:  params.HireDate,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if dept != nil {
		emp.DepartmentID = &dept.ID
	}
	if pos != nil {
		emp.PositionID = &pos.ID
	}
	if err := s.dir.Create(ctx, emp); err != nil {
		return nil, err
	}

	deptName := "Department"
	if dept != nil {
		deptName = dept.Name
	}
	entry := &Workflow{
		ID:         ids.New(),
		Type:       TypeOnboarding,
		Details:    fmt.Sprintf("Employee %s onboarded in %s", emp.Code, deptName),
		Status:     StatusPending,
		EmployeeID: emp.ID,
		CreatedAt:  now,
	}
	if err := s.store.Workflows(ctx).Append(ctx, entry); err != nil {
		return nil, err
	}
	return emp, nil
}

// UpdateEmployeeParams carries optional employee changes.
type UpdateEmployeeParams struct {
	AccountID    *string
	Department   string
	DepartmentID *string
	Position     string
	PositionID   *string
	HireDate     *time.Time
	Status       *directory.EmployeeStatus
}

// UpdateEmployee applies directory changes and logs department transfers and
// position changes the same way request updates are logged: compare, apply,
// append.
func (s *Service) UpdateEmployee(ctx context.Context, code string, params UpdateEmployeeParams) (*directory.Employee, error) {
	emp, err := s.dir.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrEmployeeNotFound
		}
		return nil, err
	}
	oldDeptID := emp.DepartmentID
	oldPosID := emp.PositionID

	if params.AccountID != nil && (emp.AccountID == nil || *params.AccountID != *emp.AccountID) {
		if _, err := s.dir.FindByAccount(ctx, *params.AccountID); err == nil {
			return nil, directory.ErrDuplicateAccountLink
		} else if !errors.Is(err, directory.ErrNotFound) {
			return nil, err
		}
		emp.AccountID = params.AccountID
	}

	switch {
	case params.DepartmentID != nil:
		dept, err := s.dir.DepartmentByID(ctx, *params.DepartmentID)
		if err != nil {
			return nil, err
		}
		emp.DepartmentID = &dept.ID
	case params.Department != "":
		dept, err := s.dir.FindOrCreateDepartment(ctx, params.Department)
		if err != nil {
			return nil, err
		}
		emp.DepartmentID = &dept.ID
	}

	switch {
	case params.PositionID != nil:
		pos, err := s.dir.PositionByID(ctx, *params.PositionID)
		if err != nil {
			return nil, err
		}
		emp.PositionID = &pos.ID
	case params.Position != "":
		pos, err := s.dir.FindOrCreatePosition(ctx, params.Position)
		if err != nil {
			return nil, err
		}
		emp.PositionID = &pos.ID
	}

	if params.HireDate != nil {
		emp.HireDate = params.HireDate
	}
	if params.Status != nil {
		emp.Status = *params.Status
	}
	now := s.now().UTC()
	emp.UpdatedAt = now

	if err := s.dir.Update(ctx, emp); err != nil {
		return nil, err
	}

	// A first assignment is covered by the Onboarding entry; transfers are
	// logged only when a previous value existed.
	workflows := s.store.Workflows(ctx)
	if oldDeptID != nil && changedRef(oldDeptID, emp.DepartmentID) {
		entry := &Workflow{
			ID:         ids.New(),
			Type:       TypeDepartmentTransfer,
			Details:    fmt.Sprintf("Transferred from %s to %s", s.departmentName(ctx, oldDeptID), s.departmentName(ctx, emp.DepartmentID)),
			Status:     StatusPending,
			EmployeeID: emp.ID,
			CreatedAt:  now,
		}
		if err := workflows.Append(ctx, entry); err != nil {
			return nil, err
		}
	}
	if oldPosID != nil && changedRef(oldPosID, emp.PositionID) {
		entry := &Workflow{
			ID:         ids.New(),
			Type:       TypeChangePosition,
			Details:    fmt.Sprintf("Changed position from %s to %s", s.positionName(ctx, oldPosID), s.positionName(ctx, emp.PositionID)),
			Status:     StatusPending,
			EmployeeID: emp.ID,
			CreatedAt:  now,
		}
		if err := workflows.Append(ctx, entry); err != nil {
			return nil, err
		}
	}
	return emp, nil
}

// WorkflowsForEmployee returns the audit trail for an employee code, oldest
// first.
func (s *Service) WorkflowsForEmployee(ctx context.Context, code string) ([]*Workflow, error) {
	emp, err := s.dir.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrEmployeeNotFound
		}
		return nil, err
	}
	return s.store.Workflows(ctx).ListByEmployee(ctx, emp.ID)
}

// PendingApprovals returns the reviewer queue.
func (s *Service) PendingApprovals(ctx context.Context) ([]*Workflow, error) {
	return s.store.Workflows(ctx).ListPending(ctx)
}

// ReviewWorkflow moves a pending task to Approved or Rejected; a linked
// request follows in the same transaction.
func (s *Service) ReviewWorkflow(ctx context.Context, id string, status Status) (*Workflow, error) {
	if status != StatusApproved && status != StatusRejected {
		return nil, ErrInvalidStatus
	}
	return s.store.Workflows(ctx).SetStatus(ctx, id, status)
}

func (s *Service) resolveActingEmployee(ctx context.Context, identity account.Identity, employeeID string) (*directory.Employee, error) {
	// A User can only file requests against their own employee record; the
	// supplied employee id is honored for admins only.
	if identity.IsAdmin() && employeeID != "" {
		emp, err := s.dir.FindByID(ctx, employeeID)
		if err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				return nil, ErrEmployeeNotFound
			}
			return nil, err
		}
		return emp, nil
	}
	emp, err := s.dir.FindByAccount(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrEmployeeNotFound
		}
		return nil, err
	}
	return emp, nil
}

func (s *Service) departmentName(ctx context.Context, id *string) string {
	if id == nil {
		return "Unknown"
	}
	dept, err := s.dir.DepartmentByID(ctx, *id)
	if err != nil {
		return "Unknown"
	}
	return dept.Name
}

func (s *Service) positionName(ctx context.Context, id *string) string {
	if id == nil {
		return "Unknown"
	}
	pos, err := s.dir.PositionByID(ctx, *id)
	if err != nil {
		return "Unknown"
	}
	return pos.Name
}

func changedRef(old, updated *string) bool {
	switch {
	case old == nil && updated == nil:
		return false
	case old == nil || updated == nil:
		return true
	default:
		return *old != *updated
	}
}
