package httpapi

import (
	"errors"
	"net/http"

	"hrdesk.org/internal/account"
	"hrdesk.org/internal/audit"
	"hrdesk.org/internal/directory"
	"hrdesk.org/internal/workflow"
)

type requestView struct {
	ID             string  `json:"id"`
	Type           string  `json:"type"`
	Items          string  `json:"items"`
	Status         string  `json:"status"`
	EmployeeID     string  `json:"employeeId"`
	CreatedByRole  string  `json:"createdByRole"`
	ApproverID     *string `json:"approverId,omitempty"`
	CreatedAt      string  `json:"createdAt"`
	UpdatedAt      string  `json:"updatedAt"`
	EmployeeCode   string  `json:"employeeCode,omitempty"`
	AccountEmail   *string `json:"accountEmail,omitempty"`
	DepartmentName *string `json:"departmentName,omitempty"`
	PositionName   *string `json:"positionName,omitempty"`
}

func viewRequest(req *workflow.Request) requestView {
	return requestView{
		ID:            req.ID,
		Type:          req.Type,
		Items:         req.Items,
		Status:        string(req.Status),
		EmployeeID:    req.EmployeeID,
		CreatedByRole: string(req.CreatedByRole),
		ApproverID:    req.ApproverID,
		CreatedAt:     formatTime(req.CreatedAt),
		UpdatedAt:     formatTime(req.UpdatedAt),
	}
}

func viewRequestDetail(d *workflow.RequestDetail) requestView {
	v := viewRequest(&d.Request)
	v.EmployeeCode = d.EmployeeCode
	v.AccountEmail = d.AccountEmail
	v.DepartmentName = d.DepartmentName
	v.PositionName = d.PositionName
	return v
}

func (a *API) CreateRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req struct {
		Type       string `json:"type"`
		Items      string `json:"items"`
		Status     string `json:"status"`
		EmployeeID string `json:"employeeId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	created, err := a.workflows.CreateRequest(r.Context(), identity, workflow.CreateRequestParams{
		Type:       req.Type,
		Items:      req.Items,
		Status:     workflow.RequestStatus(req.Status),
		EmployeeID: req.EmployeeID,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "request.create", map[string]any{
		"request_id": created.ID,
		"status":     string(created.Status),
	})
	writeJSON(w, http.StatusCreated, viewRequest(created))
}

func (a *API) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	id := r.PathValue("id")
	if !identity.IsAdmin() {
		if err := a.requireRequestOwner(r, identity, id); err != nil {
			handleError(w, r, err)
			return
		}
	}
	var req struct {
		Type   *string `json:"type"`
		Items  *string `json:"items"`
		Status *string `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	params := workflow.UpdateRequestParams{
		Type:  req.Type,
		Items: req.Items,
	}
	if req.Status != nil {
		status := workflow.RequestStatus(*req.Status)
		params.Status = &status
	}
	updated, err := a.workflows.UpdateRequest(r.Context(), identity, id, params)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "request.update", map[string]any{
		"request_id": updated.ID,
		"status":     string(updated.Status),
	})
	writeJSON(w, http.StatusOK, viewRequest(updated))
}

func (a *API) ListRequests(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	details, err := a.workflows.ListRequests(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	views := make([]requestView, 0, len(details))
	for _, d := range details {
		views = append(views, viewRequestDetail(d))
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) GetRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	id := r.PathValue("id")
	detail, err := a.workflows.GetRequest(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !identity.IsAdmin() {
		emp, err := a.directory.FindByAccount(r.Context(), identity.ID)
		if err != nil || emp.ID != detail.EmployeeID {
			writeError(w, r, http.StatusForbidden, "access denied")
			return
		}
	}
	writeJSON(w, http.StatusOK, viewRequestDetail(detail))
}

// requireRequestOwner verifies the caller's employee record owns the request.
func (a *API) requireRequestOwner(r *http.Request, identity account.Identity, requestID string) error {
	detail, err := a.workflows.GetRequest(r.Context(), requestID)
	if err != nil {
		return err
	}
	emp, err := a.directory.FindByAccount(r.Context(), identity.ID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return workflow.ErrEmployeeNotFound
		}
		return err
	}
	if emp.ID != detail.EmployeeID {
		return errAccessDenied
	}
	return nil
}
