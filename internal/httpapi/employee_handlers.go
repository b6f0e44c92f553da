package httpapi

import (
	"net/http"
	"time"

	"hrdesk.org/internal/audit"
	"hrdesk.org/internal/directory"
	"hrdesk.org/internal/workflow"
)

type employeeView struct {
	ID             string  `json:"id"`
	Code           string  `json:"code"`
	AccountID      *string `json:"accountId,omitempty"`
	DepartmentID   *string `json:"departmentId,omitempty"`
	PositionID     *string `json:"positionId,omitempty"`
	HireDate       *string `json:"hireDate,omitempty"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"createdAt"`
	UpdatedAt      string  `json:"updatedAt"`
	AccountEmail   *string `json:"accountEmail,omitempty"`
	AccountStatus  *string `json:"accountStatus,omitempty"`
	DepartmentName *string `json:"departmentName,omitempty"`
	PositionName   *string `json:"positionName,omitempty"`
}

func viewEmployee(e *directory.Employee) employeeView {
	return employeeView{
		ID:           e.ID,
		Code:         e.Code,
		AccountID:    e.AccountID,
		DepartmentID: e.DepartmentID,
		PositionID:   e.PositionID,
		HireDate:     formatTimePtr(e.HireDate),
		Status:       string(e.Status),
		CreatedAt:    formatTime(e.CreatedAt),
		UpdatedAt:    formatTime(e.UpdatedAt),
	}
}

func viewEmployeeDetail(d *directory.EmployeeDetail) employeeView {
	v := viewEmployee(&d.Employee)
	v.AccountEmail = d.AccountEmail
	v.AccountStatus = d.AccountStatus
	v.DepartmentName = d.DepartmentName
	v.PositionName = d.PositionName
	return v
}

type workflowView struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Details    string  `json:"details"`
	Status     string  `json:"status"`
	EmployeeID string  `json:"employeeId"`
	RequestID  *string `json:"requestId,omitempty"`
	CreatedAt  string  `json:"createdAt"`
}

func viewWorkflow(entry *workflow.Workflow) workflowView {
	return workflowView{
		ID:         entry.ID,
		Type:       entry.Type,
		Details:    entry.Details,
		Status:     string(entry.Status),
		EmployeeID: entry.EmployeeID,
		RequestID:  entry.RequestID,
		CreatedAt:  formatTime(entry.CreatedAt),
	}
}

func viewWorkflows(entries []*workflow.Workflow) []workflowView {
	views := make([]workflowView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, viewWorkflow(entry))
	}
	return views
}

type employeePayload struct {
	AccountID    *string `json:"accountId"`
	Department   string  `json:"department"`
	DepartmentID *string `json:"departmentId"`
	Position     string  `json:"position"`
	PositionID   *string `json:"positionId"`
	HireDate     *string `json:"hireDate"`
	Status       string  `json:"status"`
}

func parseHireDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	// date-only first, full timestamp as fallback
	if t, err := time.Parse("2006-01-02", *raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (a *API) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	var req employeePayload
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	hireDate, err := parseHireDate(req.HireDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid hire date")
		return
	}
	emp, err := a.workflows.CreateEmployee(r.Context(), workflow.CreateEmployeeParams{
		AccountID:    req.AccountID,
		Department:   req.Department,
		DepartmentID: req.DepartmentID,
		Position:     req.Position,
		PositionID:   req.PositionID,
		HireDate:     hireDate,
		Status:       directory.EmployeeStatus(req.Status),
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "employee.create", map[string]any{
		"employee_code": emp.Code,
	})
	writeJSON(w, http.StatusCreated, viewEmployee(emp))
}

func (a *API) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	code := r.PathValue("code")
	var req employeePayload
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	hireDate, err := parseHireDate(req.HireDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid hire date")
		return
	}
	params := workflow.UpdateEmployeeParams{
		AccountID:    req.AccountID,
		Department:   req.Department,
		DepartmentID: req.DepartmentID,
		Position:     req.Position,
		PositionID:   req.PositionID,
		HireDate:     hireDate,
	}
	if req.Status != "" {
		status := directory.EmployeeStatus(req.Status)
		params.Status = &status
	}
	emp, err := a.workflows.UpdateEmployee(r.Context(), code, params)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "employee.update", map[string]any{
		"employee_code": emp.Code,
	})
	writeJSON(w, http.StatusOK, viewEmployee(emp))
}

func (a *API) ListEmployees(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerIdentity(r); !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	details, err := a.directory.ListDetails(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	views := make([]employeeView, 0, len(details))
	for _, d := range details {
		views = append(views, viewEmployeeDetail(d))
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) GetEmployee(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerIdentity(r); !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	emp, err := a.directory.FindByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	detail, err := a.directory.Detail(r.Context(), emp.ID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewEmployeeDetail(detail))
}

func (a *API) EmployeeWorkflows(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	code := r.PathValue("code")
	if !identity.IsAdmin() {
		emp, err := a.directory.FindByAccount(r.Context(), identity.ID)
		if err != nil || emp.Code != code {
			writeError(w, r, http.StatusForbidden, "access denied")
			return
		}
	}
	entries, err := a.workflows.WorkflowsForEmployee(r.Context(), code)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewWorkflows(entries))
}

func (a *API) PendingWorkflows(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	entries, err := a.workflows.PendingApprovals(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewWorkflows(entries))
}

func (a *API) ReviewWorkflow(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entry, err := a.workflows.ReviewWorkflow(r.Context(), r.PathValue("id"), workflow.Status(req.Status))
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "workflow.review", map[string]any{
		"workflow_id": entry.ID,
		"status":      string(entry.Status),
	})
	writeJSON(w, http.StatusOK, viewWorkflow(entry))
}

type lookupView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (a *API) ListDepartments(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerIdentity(r); !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	depts, err := a.directory.ListDepartments(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	views := make([]lookupView, 0, len(depts))
	for _, d := range depts {
		views = append(views, lookupView{ID: d.ID, Name: d.Name, Description: d.Description})
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) ListPositions(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerIdentity(r); !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	positions, err := a.directory.ListPositions(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	views := make([]lookupView, 0, len(positions))
	for _, p := range positions {
		views = append(views, lookupView{ID: p.ID, Name: p.Name, Description: p.Description})
	}
	writeJSON(w, http.StatusOK, views)
}
