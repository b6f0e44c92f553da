package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hrdesk.org/internal/account"
	"hrdesk.org/internal/directory"
	"hrdesk.org/internal/workflow"
)

// --- in-memory account store ---

type accountMem struct {
	accounts map[string]*account.Account
	tokens   map[string]*account.RefreshToken
}

func newAccountMem() *accountMem {
	return &accountMem{
		accounts: make(map[string]*account.Account),
		tokens:   make(map[string]*account.RefreshToken),
	}
}

func (m *accountMem) Accounts(context.Context) account.AccountStore { return (*accountMemAccounts)(m) }
func (m *accountMem) RefreshTokens(context.Context) account.RefreshTokenStore {
	return (*accountMemTokens)(m)
}

type accountMemAccounts accountMem

func (m *accountMemAccounts) Create(_ context.Context, a *account.Account) error {
	for _, existing := range m.accounts {
		if existing.Email == a.Email {
			return account.ErrDuplicateEmail
		}
	}
	clone := *a
	m.accounts[a.ID] = &clone
	return nil
}

func (m *accountMemAccounts) FindByID(_ context.Context, id string) (*account.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (m *accountMemAccounts) FindByEmail(_ context.Context, email string) (*account.Account, error) {
	for _, a := range m.accounts {
		if a.Email == email {
			clone := *a
			return &clone, nil
		}
	}
	return nil, account.ErrNotFound
}

func (m *accountMemAccounts) FindByVerificationToken(_ context.Context, token string) (*account.Account, error) {
	for _, a := range m.accounts {
		if a.VerificationToken != nil && *a.VerificationToken == token {
			clone := *a
			return &clone, nil
		}
	}
	return nil, account.ErrNotFound
}

func (m *accountMemAccounts) FindByResetToken(_ context.Context, token string, now time.Time) (*account.Account, error) {
	for _, a := range m.accounts {
		if a.ResetToken != nil && *a.ResetToken == token &&
			a.ResetTokenExpires != nil && a.ResetTokenExpires.After(now) {
			clone := *a
			return &clone, nil
		}
	}
	return nil, account.ErrNotFound
}

func (m *accountMemAccounts) Update(_ context.Context, a *account.Account) error {
	if _, ok := m.accounts[a.ID]; !ok {
		return account.ErrNotFound
	}
	clone := *a
	m.accounts[a.ID] = &clone
	return nil
}

func (m *accountMemAccounts) List(context.Context) ([]*account.Account, error) {
	var res []*account.Account
	for _, a := range m.accounts {
		clone := *a
		res = append(res, &clone)
	}
	return res, nil
}

func (m *accountMemAccounts) ListAvailable(ctx context.Context) ([]*account.Account, error) {
	return m.List(ctx)
}

type accountMemTokens accountMem

func (m *accountMemTokens) Create(_ context.Context, tok *account.RefreshToken) error {
	clone := *tok
	m.tokens[tok.Token] = &clone
	return nil
}

func (m *accountMemTokens) Find(_ context.Context, token string) (*account.RefreshToken, error) {
	t, ok := m.tokens[token]
	if !ok {
		return nil, account.ErrNotFound
	}
	clone := *t
	return &clone, nil
}

func (m *accountMemTokens) Rotate(_ context.Context, token string, successor *account.RefreshToken, ip string, now time.Time) (*account.RefreshToken, error) {
	old, ok := m.tokens[token]
	if !ok || !old.Active(now) {
		return nil, account.ErrInvalidToken
	}
	old.RevokedAt = &now
	old.RevokedByIP = &ip
	old.ReplacedByToken = &successor.Token
	successor.AccountID = old.AccountID
	clone := *successor
	m.tokens[successor.Token] = &clone
	res := *old
	return &res, nil
}

func (m *accountMemTokens) Revoke(_ context.Context, token, ip string, now time.Time) error {
	t, ok := m.tokens[token]
	if !ok || !t.Active(now) {
		return account.ErrInvalidToken
	}
	t.RevokedAt = &now
	t.RevokedByIP = &ip
	return nil
}

// --- in-memory directory store ---

type directoryMem struct {
	employees   map[string]*directory.Employee
	departments map[string]*directory.Department
	positions   map[string]*directory.Position
	nextCode    int
}

func newDirectoryMem() *directoryMem {
	return &directoryMem{
		employees:   make(map[string]*directory.Employee),
		departments: make(map[string]*directory.Department),
		positions:   make(map[string]*directory.Position),
		nextCode:    1,
	}
}

func (m *directoryMem) Create(_ context.Context, e *directory.Employee) error {
	clone := *e
	m.employees[e.ID] = &clone
	return nil
}

func (m *directoryMem) Update(_ context.Context, e *directory.Employee) error {
	if _, ok := m.employees[e.ID]; !ok {
		return directory.ErrNotFound
	}
	clone := *e
	m.employees[e.ID] = &clone
	return nil
}

func (m *directoryMem) FindByID(_ context.Context, id string) (*directory.Employee, error) {
	e, ok := m.employees[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	clone := *e
	return &clone, nil
}

func (m *directoryMem) FindByCode(_ context.Context, code string) (*directory.Employee, error) {
	for _, e := range m.employees {
		if e.Code == code {
			clone := *e
			return &clone, nil
		}
	}
	return nil, directory.ErrNotFound
}

func (m *directoryMem) FindByAccount(_ context.Context, accountID string) (*directory.Employee, error) {
	for _, e := range m.employees {
		if e.AccountID != nil && *e.AccountID == accountID {
			clone := *e
			return &clone, nil
		}
	}
	return nil, directory.ErrNotFound
}

func (m *directoryMem) Detail(ctx context.Context, id string) (*directory.EmployeeDetail, error) {
	e, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &directory.EmployeeDetail{Employee: *e}, nil
}

func (m *directoryMem) ListDetails(context.Context) ([]*directory.EmployeeDetail, error) {
	var res []*directory.EmployeeDetail
	for _, e := range m.employees {
		res = append(res, &directory.EmployeeDetail{Employee: *e})
	}
	return res, nil
}

func (m *directoryMem) NextCode(context.Context) (string, error) {
	code := fmt.Sprintf("EMP%03d", m.nextCode)
	m.nextCode++
	return code, nil
}

func (m *directoryMem) FindOrCreateDepartment(_ context.Context, name string) (*directory.Department, error) {
	for _, d := range m.departments {
		if d.Name == name {
			return d, nil
		}
	}
	d := &directory.Department{ID: "dept-" + name, Name: name}
	m.departments[d.ID] = d
	return d, nil
}

func (m *directoryMem) DepartmentByID(_ context.Context, id string) (*directory.Department, error) {
	d, ok := m.departments[id]
	if !ok {
		return nil, directory.ErrDepartmentNotFound
	}
	return d, nil
}

func (m *directoryMem) ListDepartments(context.Context) ([]*directory.Department, error) {
	var res []*directory.Department
	for _, d := range m.departments {
		res = append(res, d)
	}
	return res, nil
}

func (m *directoryMem) FindOrCreatePosition(_ context.Context, name string) (*directory.Position, error) {
	for _, p := range m.positions {
		if p.Name == name {
			return p, nil
		}
	}
	p := &directory.Position{ID: "pos-" + name, Name: name}
	m.positions[p.ID] = p
	return p, nil
}

func (m *directoryMem) PositionByID(_ context.Context, id string) (*directory.Position, error) {
	p, ok := m.positions[id]
	if !ok {
		return nil, directory.ErrPositionNotFound
	}
	return p, nil
}

func (m *directoryMem) ListPositions(context.Context) ([]*directory.Position, error) {
	var res []*directory.Position
	for _, p := range m.positions {
		res = append(res, p)
	}
	return res, nil
}

// --- in-memory workflow store ---

type workflowMem struct {
	requests  map[string]*workflow.Request
	workflows []*workflow.Workflow
	dir       *directoryMem
}

func newWorkflowMem(dir *directoryMem) *workflowMem {
	return &workflowMem{requests: make(map[string]*workflow.Request), dir: dir}
}

func (m *workflowMem) Requests(context.Context) workflow.RequestStore   { return (*workflowMemRequests)(m) }
func (m *workflowMem) Workflows(context.Context) workflow.WorkflowStore { return (*workflowMemEntries)(m) }

type workflowMemRequests workflowMem

func (m *workflowMemRequests) Create(_ context.Context, req *workflow.Request, task *workflow.Workflow) error {
	clone := *req
	m.requests[req.ID] = &clone
	if task != nil {
		entry := *task
		m.workflows = append(m.workflows, &entry)
	}
	return nil
}

func (m *workflowMemRequests) Find(_ context.Context, id string) (*workflow.Request, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, workflow.ErrRequestNotFound
	}
	clone := *req
	return &clone, nil
}

func (m *workflowMemRequests) UpdateWithLog(_ context.Context, req *workflow.Request, entry *workflow.Workflow) error {
	if _, ok := m.requests[req.ID]; !ok {
		return workflow.ErrRequestNotFound
	}
	clone := *req
	m.requests[req.ID] = &clone
	e := *entry
	m.workflows = append(m.workflows, &e)
	return nil
}

func (m *workflowMemRequests) Detail(_ context.Context, id string) (*workflow.RequestDetail, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, workflow.ErrRequestNotFound
	}
	detail := &workflow.RequestDetail{Request: *req}
	if emp, ok := m.dir.employees[req.EmployeeID]; ok {
		detail.EmployeeCode = emp.Code
	}
	return detail, nil
}

func (m *workflowMemRequests) List(ctx context.Context) ([]*workflow.RequestDetail, error) {
	var res []*workflow.RequestDetail
	for id := range m.requests {
		d, err := m.Detail(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

type workflowMemEntries workflowMem

func (m *workflowMemEntries) Append(_ context.Context, entry *workflow.Workflow) error {
	clone := *entry
	m.workflows = append(m.workflows, &clone)
	return nil
}

func (m *workflowMemEntries) Find(_ context.Context, id string) (*workflow.Workflow, error) {
	for _, w := range m.workflows {
		if w.ID == id {
			clone := *w
			return &clone, nil
		}
	}
	return nil, workflow.ErrWorkflowNotFound
}

func (m *workflowMemEntries) ListByEmployee(_ context.Context, employeeID string) ([]*workflow.Workflow, error) {
	var res []*workflow.Workflow
	for _, w := range m.workflows {
		if w.EmployeeID == employeeID {
			clone := *w
			res = append(res, &clone)
		}
	}
	return res, nil
}

func (m *workflowMemEntries) ListPending(context.Context) ([]*workflow.Workflow, error) {
	var res []*workflow.Workflow
	for _, w := range m.workflows {
		if w.Status == workflow.StatusPending {
			clone := *w
			res = append(res, &clone)
		}
	}
	return res, nil
}

func (m *workflowMemEntries) SetStatus(_ context.Context, id string, status workflow.Status) (*workflow.Workflow, error) {
	for _, w := range m.workflows {
		if w.ID == id {
			w.Status = status
			if w.RequestID != nil {
				if req, ok := m.requests[*w.RequestID]; ok {
					req.Status = workflow.RequestStatus(status)
				}
			}
			clone := *w
			return &clone, nil
		}
	}
	return nil, workflow.ErrWorkflowNotFound
}

// --- harness ---

type testEnv struct {
	handler  http.Handler
	accounts *account.Service
	dir      *directoryMem
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	accStore := newAccountMem()
	dir := newDirectoryMem()
	wfStore := newWorkflowMem(dir)

	accounts, err := account.NewService(accStore, "test-secret", nil)
	if err != nil {
		t.Fatalf("account.NewService: %v", err)
	}
	workflows := workflow.NewService(wfStore, dir)

	api := New(ReadyProbe{}, accounts, workflows, dir, Options{Version: "test"})
	return &testEnv{handler: api.Handler(), accounts: accounts, dir: dir}
}

func (env *testEnv) createAccount(t *testing.T, email string, role account.Role) *account.Account {
	t.Helper()
	acc, err := env.accounts.Create(context.Background(), account.CreateParams{
		Email:    email,
		Password: "pw123456",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("create account %s: %v", email, err)
	}
	return acc
}

func (env *testEnv) linkEmployee(t *testing.T, acc *account.Account, code string) *directory.Employee {
	t.Helper()
	emp := &directory.Employee{
		ID:        "emp-" + code,
		Code:      code,
		AccountID: &acc.ID,
		Status:    directory.EmployeeActive,
	}
	env.dir.employees[emp.ID] = emp
	return emp
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) login(t *testing.T, email string) (accessToken, refreshCookie string) {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/accounts/authenticate", "", map[string]string{
		"email":    email,
		"password": "pw123456",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticate %s: status %d, body %s", email, rec.Code, rec.Body.String())
	}
	var res struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode auth response: %v", err)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshCookieName {
			refreshCookie = c.Value
		}
	}
	if res.AccessToken == "" || refreshCookie == "" {
		t.Fatal("missing access token or refresh cookie")
	}
	return res.AccessToken, refreshCookie
}

// --- tests ---

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/employees", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/employees", "not-a-real-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d, want 401", rec.Code)
	}
}

func TestAdminGate(t *testing.T) {
	env := newTestEnv(t)
	user := env.createAccount(t, "user@example.com", account.RoleUser)
	env.linkEmployee(t, user, "EMP001")
	env.createAccount(t, "admin@example.com", account.RoleAdmin)

	userToken, _ := env.login(t, "user@example.com")
	adminToken, _ := env.login(t, "admin@example.com")

	rec := env.do(t, http.MethodGet, "/accounts", userToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("user on /accounts: status = %d, want 403", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/accounts", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin on /accounts: status = %d, want 200", rec.Code)
	}
}

func TestRefreshTokenCookieFallback(t *testing.T) {
	env := newTestEnv(t)
	env.createAccount(t, "user@example.com", account.RoleUser)
	_, cookie := env.login(t, "user@example.com")

	req := httptest.NewRequest(http.MethodPost, "/accounts/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: cookie})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh via cookie: status = %d, body %s", rec.Code, rec.Body.String())
	}

	// The rotated token must not work a second time.
	req = httptest.NewRequest(http.MethodPost, "/accounts/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: cookie})
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused token: status = %d, want 401", rec.Code)
	}
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	user := env.createAccount(t, "user@example.com", account.RoleUser)
	env.linkEmployee(t, user, "EMP001")
	env.createAccount(t, "admin@example.com", account.RoleAdmin)

	userToken, _ := env.login(t, "user@example.com")
	adminToken, _ := env.login(t, "admin@example.com")

	// User files a pending request.
	rec := env.do(t, http.MethodPost, "/requests", userToken, map[string]string{
		"type":   "Equipment",
		"items":  "Laptop, Monitor",
		"status": "Pending",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create request: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Admin sees it in the pending queue.
	rec = env.do(t, http.MethodGet, "/workflows", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pending queue: status = %d", rec.Code)
	}
	var pending []struct {
		ID        string  `json:"id"`
		Type      string  `json:"type"`
		RequestID *string `json:"requestId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &pending); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if len(pending) != 1 || pending[0].Type != "Request Approval" {
		t.Fatalf("unexpected queue: %+v", pending)
	}

	// Admin approves the task; the request follows.
	rec = env.do(t, http.MethodPut, "/workflows/"+pending[0].ID, adminToken, map[string]string{
		"status": "Approved",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("review: status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/requests/"+created.ID, userToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get request: status = %d", rec.Code)
	}
	var got struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "Approved" {
		t.Fatalf("request status = %s, want Approved", got.Status)
	}
}

func TestUserCannotReviewWorkflows(t *testing.T) {
	env := newTestEnv(t)
	user := env.createAccount(t, "user@example.com", account.RoleUser)
	env.linkEmployee(t, user, "EMP001")
	userToken, _ := env.login(t, "user@example.com")

	rec := env.do(t, http.MethodPut, "/workflows/wf-1", userToken, map[string]string{
		"status": "Approved",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestUserCannotReadOthersRequest(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createAccount(t, "owner@example.com", account.RoleUser)
	env.linkEmployee(t, owner, "EMP001")
	other := env.createAccount(t, "other@example.com", account.RoleUser)
	env.linkEmployee(t, other, "EMP002")

	ownerToken, _ := env.login(t, "owner@example.com")
	otherToken, _ := env.login(t, "other@example.com")

	rec := env.do(t, http.MethodPost, "/requests", ownerToken, map[string]string{
		"type": "Equipment",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d", rec.Code)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = env.do(t, http.MethodGet, "/requests/"+created.ID, otherToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestOnboardEmployeeOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.createAccount(t, "admin@example.com", account.RoleAdmin)
	hire := env.createAccount(t, "hire@example.com", account.RoleUser)
	adminToken, _ := env.login(t, "admin@example.com")

	rec := env.do(t, http.MethodPost, "/employees", adminToken, map[string]any{
		"accountId":  hire.ID,
		"department": "Engineering",
		"position":   "Developer",
		"hireDate":   "2025-06-01",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("onboard: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var emp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &emp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if emp.Code != "EMP001" {
		t.Fatalf("code = %s, want EMP001", emp.Code)
	}

	rec = env.do(t, http.MethodGet, "/employees/EMP001/workflows", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("workflows: status = %d", rec.Code)
	}
	var entries []struct {
		Type    string `json:"type"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != "Onboarding" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[0].Details != "Employee EMP001 onboarded in Engineering" {
		t.Fatalf("details = %q", entries[0].Details)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/accounts/authenticate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	env := newTestEnv(t)
	env.createAccount(t, "admin@example.com", account.RoleAdmin)
	adminToken, _ := env.login(t, "admin@example.com")
	rec := env.do(t, http.MethodGet, "/nope", adminToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
