package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"hrdesk.org/internal/account"
	"hrdesk.org/internal/audit"
)

const refreshCookieName = "refreshToken"

// accountView is the wire shape for accounts; the password hash and raw
// tokens never leave the service.
type accountView struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Email     string  `json:"email"`
	Role      string  `json:"role"`
	Status    string  `json:"status"`
	Verified  bool    `json:"verified"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`
	Employee  *string `json:"employeeId,omitempty"`
}

func viewAccount(acc *account.Account) accountView {
	return accountView{
		ID:        acc.ID,
		Title:     acc.Title,
		FirstName: acc.FirstName,
		LastName:  acc.LastName,
		Email:     acc.Email,
		Role:      string(acc.Role),
		Status:    string(acc.Status),
		Verified:  acc.Verified(),
		CreatedAt: formatTime(acc.CreatedAt),
		UpdatedAt: formatTime(acc.UpdatedAt),
	}
}

func viewAccounts(accs []*account.Account) []accountView {
	views := make([]accountView, 0, len(accs))
	for _, acc := range accs {
		views = append(views, viewAccount(acc))
	}
	return views
}

type authResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	AccessToken string `json:"accessToken"`
	ExpiresAt   string `json:"expiresAt"`
}

// setRefreshCookie mirrors the refresh token into an HttpOnly cookie so
// browser clients never touch it from script.
func (a *API) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// refreshTokenFrom reads the token from the body first, falling back to the
// cookie set on authenticate.
func refreshTokenFrom(r *http.Request, bodyToken string) string {
	if t := strings.TrimSpace(bodyToken); t != "" {
		return t
	}
	if c, err := r.Cookie(refreshCookieName); err == nil {
		return c.Value
	}
	return ""
}

func (a *API) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.accounts.Authenticate(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.authenticate", map[string]any{
		"account_id": res.Identity.ID,
	})
	a.setRefreshCookie(w, res.RefreshToken, res.RefreshExpires)
	writeJSON(w, http.StatusOK, authResponse{
		ID:          res.Identity.ID,
		Email:       res.Identity.Email,
		Role:        string(res.Identity.Role),
		AccessToken: res.AccessToken,
		ExpiresAt:   formatTime(res.AccessExpiresAt),
	})
}

func (a *API) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	// body is optional when the cookie is present
	_ = decodeJSON(w, r, &req)
	token := refreshTokenFrom(r, req.Token)
	if token == "" {
		writeError(w, r, http.StatusBadRequest, "refresh token is required")
		return
	}
	res, err := a.accounts.Refresh(r.Context(), token, clientIP(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.setRefreshCookie(w, res.RefreshToken, res.RefreshExpires)
	writeJSON(w, http.StatusOK, authResponse{
		ID:          res.Identity.ID,
		Email:       res.Identity.Email,
		Role:        string(res.Identity.Role),
		AccessToken: res.AccessToken,
		ExpiresAt:   formatTime(res.AccessExpiresAt),
	})
}

func (a *API) RevokeToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	_ = decodeJSON(w, r, &req)
	token := refreshTokenFrom(r, req.Token)
	if token == "" {
		writeError(w, r, http.StatusBadRequest, "refresh token is required")
		return
	}
	if err := a.accounts.Revoke(r.Context(), token, clientIP(r)); err != nil {
		handleError(w, r, err)
		return
	}
	clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"message": "token revoked"})
}

func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title     string `json:"title"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Password  string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	_, err := a.accounts.Register(r.Context(), account.RegisterParams{
		Title:     req.Title,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	// A duplicate email gets the same response as success so registration
	// does not reveal which addresses exist; the notice lands by email.
	if err != nil && !errors.Is(err, account.ErrDuplicateEmail) {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Registration successful, please check your email for verification instructions",
	})
}

func (a *API) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if r.Method == http.MethodPost {
		var req struct {
			Token string `json:"token"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		token = req.Token
	}
	if strings.TrimSpace(token) == "" {
		writeError(w, r, http.StatusBadRequest, "verification token is required")
		return
	}
	if err := a.accounts.VerifyEmail(r.Context(), token); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Verification successful, you can now login",
	})
}

func (a *API) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.accounts.ForgotPassword(r.Context(), req.Email); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Please check your email for password reset instructions",
	})
}

func (a *API) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := a.accounts.ValidateResetToken(r.Context(), req.Token); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Token is valid"})
}

func (a *API) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "password is required")
		return
	}
	if err := a.accounts.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Password reset successful, you can now login",
	})
}

func (a *API) ListAccounts(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	accs, err := a.accounts.List(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	views := viewAccounts(accs)
	a.annotateEmployees(r, views)
	writeJSON(w, http.StatusOK, views)
}

// annotateEmployees fills employeeId on account views from the directory.
// Lookup failures leave the field empty rather than failing the listing.
func (a *API) annotateEmployees(r *http.Request, views []accountView) {
	details, err := a.directory.ListDetails(r.Context())
	if err != nil {
		return
	}
	byAccount := make(map[string]string, len(details))
	for _, d := range details {
		if d.AccountID != nil {
			byAccount[*d.AccountID] = d.ID
		}
	}
	for i := range views {
		if empID, ok := byAccount[views[i].ID]; ok {
			views[i].Employee = &empID
		}
	}
}

func (a *API) AvailableAccounts(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	accs, err := a.accounts.Available(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAccounts(accs))
}

func (a *API) GetAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	id := r.PathValue("id")
	// Users may read their own record only.
	if !identity.IsAdmin() && identity.ID != id {
		writeError(w, r, http.StatusForbidden, "access denied")
		return
	}
	acc, err := a.accounts.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAccount(acc))
}

func (a *API) CreateAccount(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	var req struct {
		Title     string `json:"title"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		Role      string `json:"role"`
		Status    string `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}
	acc, err := a.accounts.Create(r.Context(), account.CreateParams{
		Title:     req.Title,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Role:      account.Role(req.Role),
		Status:    account.Status(req.Status),
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.create", map[string]any{
		"account_id": acc.ID,
	})
	writeJSON(w, http.StatusCreated, viewAccount(acc))
}

func (a *API) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	id := r.PathValue("id")
	if !identity.IsAdmin() && identity.ID != id {
		writeError(w, r, http.StatusForbidden, "access denied")
		return
	}
	var req struct {
		Title     *string `json:"title"`
		FirstName *string `json:"firstName"`
		LastName  *string `json:"lastName"`
		Email     *string `json:"email"`
		Password  *string `json:"password"`
		Role      *string `json:"role"`
		Status    *string `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	params := account.UpdateParams{
		Title:     req.Title,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	}
	// Role and status changes are admin-only regardless of ownership.
	if identity.IsAdmin() {
		if req.Role != nil {
			role := account.Role(*req.Role)
			params.Role = &role
		}
		if req.Status != nil {
			status := account.Status(*req.Status)
			params.Status = &status
		}
	}
	acc, err := a.accounts.Update(r.Context(), id, params)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.update", map[string]any{
		"account_id": acc.ID,
	})
	writeJSON(w, http.StatusOK, viewAccount(acc))
}
