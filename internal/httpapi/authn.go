package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"hrdesk.org/internal/account"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/accounts/authenticate",
	"/accounts/refresh-token",
	"/accounts/revoke-token",
	"/accounts/register",
	"/accounts/verify-email",
	"/accounts/forgot-password",
	"/accounts/validate-reset-token",
	"/accounts/reset-password",
	"/metrics",
	"/healthz",
	"/readyz",
	"/openapi.yaml",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		identity, err := a.accounts.ParseAccessToken(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := account.ContextWithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerIdentity pulls the authenticated identity out of the context.
// withAuth guarantees it is there for every non-public route.
func callerIdentity(r *http.Request) (account.Identity, bool) {
	return account.IdentityFromContext(r.Context())
}

// requireAdmin gates admin-only routes.
func requireAdmin(w http.ResponseWriter, r *http.Request) (account.Identity, bool) {
	identity, ok := callerIdentity(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return account.Identity{}, false
	}
	if !identity.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return account.Identity{}, false
	}
	return identity, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
