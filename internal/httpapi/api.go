package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"hrdesk.org/api/spec"
	"hrdesk.org/internal/account"
	"hrdesk.org/internal/directory"
	"hrdesk.org/internal/obs"
	"hrdesk.org/internal/workflow"
)

// ReadyProbe checks downstream dependencies for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the operational knobs the HTTP layer needs.
type Options struct {
	AppOrigin      string
	RateLimitRPS   int
	RateLimitBurst int
	Version        string
}

// API is the HTTP layer over the account and workflow services.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	accounts   *account.Service
	workflows  *workflow.Service
	directory  directory.Store
	opts       Options
}

func New(rp ReadyProbe, accounts *account.Service, workflows *workflow.Service, dir directory.Store, opts Options) *API {
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 50
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 100
	}
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		accounts:   accounts,
		workflows:  workflows,
		directory:  dir,
		opts:       opts,
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)

	// OpenAPI YAML
	a.mux.HandleFunc("GET /openapi.yaml", a.OpenAPISpec)

	// Prometheus metrics
	a.mux.Handle("GET /metrics", obs.Handler())

	// session lifecycle
	a.mux.HandleFunc("POST /accounts/authenticate", a.Authenticate)
	a.mux.HandleFunc("POST /accounts/refresh-token", a.RefreshToken)
	a.mux.HandleFunc("POST /accounts/revoke-token", a.RevokeToken)
	a.mux.HandleFunc("POST /accounts/register", a.Register)
	a.mux.HandleFunc("GET /accounts/verify-email", a.VerifyEmail)
	a.mux.HandleFunc("POST /accounts/verify-email", a.VerifyEmail)
	a.mux.HandleFunc("POST /accounts/forgot-password", a.ForgotPassword)
	a.mux.HandleFunc("POST /accounts/validate-reset-token", a.ValidateResetToken)
	a.mux.HandleFunc("POST /accounts/reset-password", a.ResetPassword)

	// account administration
	a.mux.HandleFunc("GET /accounts", a.ListAccounts)
	a.mux.HandleFunc("GET /accounts/available", a.AvailableAccounts)
	a.mux.HandleFunc("GET /accounts/{id}", a.GetAccount)
	a.mux.HandleFunc("POST /accounts", a.CreateAccount)
	a.mux.HandleFunc("PUT /accounts/{id}", a.UpdateAccount)

	// change requests
	a.mux.HandleFunc("POST /requests", a.CreateRequest)
	a.mux.HandleFunc("PUT /requests/{id}", a.UpdateRequest)
	a.mux.HandleFunc("GET /requests", a.ListRequests)
	a.mux.HandleFunc("GET /requests/{id}", a.GetRequest)

	// employees and audit trail
	a.mux.HandleFunc("POST /employees", a.CreateEmployee)
	a.mux.HandleFunc("PUT /employees/{code}", a.UpdateEmployee)
	a.mux.HandleFunc("GET /employees", a.ListEmployees)
	a.mux.HandleFunc("GET /employees/{code}", a.GetEmployee)
	a.mux.HandleFunc("GET /employees/{code}/workflows", a.EmployeeWorkflows)
	a.mux.HandleFunc("GET /workflows", a.PendingWorkflows)
	a.mux.HandleFunc("PUT /workflows/{id}", a.ReviewWorkflow)

	// lookups
	a.mux.HandleFunc("GET /departments", a.ListDepartments)
	a.mux.HandleFunc("GET /positions", a.ListPositions)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux. Metrics wrap the
// outside so every request is counted, including rejected ones.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.opts.RateLimitBurst, a.opts.RateLimitRPS)
	h = CORS(h, a.opts.AppOrigin)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "hrdesk-api",
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
