package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"netmon-auth/internal/model"
	"netmon-auth/pkg/apierror"
)

type authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (model.Account, error)
}

type contextKey string

const accountContextKey contextKey = "auth_account"

const (
	msgNotAuthenticated = "Not authenticated"
	msgNotAuthorized    = "Not authorized"
)

type AuthMiddleware struct {
	authenticator authenticator
}

func NewAuthMiddleware(auth authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: auth}
}

// RequireAuth resolves the bearer token to an account and stores it in the
// request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
			writeJSONError(w, http.StatusUnauthorized, apierror.CodeUnauthorized, msgNotAuthenticated)
			return
		}

		account, err := m.authenticator.Authenticate(r.Context(), strings.TrimSpace(header[7:]))
		if err != nil {
			var apiErr *apierror.APIError
			if errors.As(err, &apiErr) {
				writeJSONError(w, apiErr.HTTPStatus, apiErr.Code, apiErr.Message)
				return
			}
			slog.Error("resolve bearer token", "error", err)
			writeJSONError(w, http.StatusInternalServerError, apierror.CodeInternal, "Unexpected server error")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
	})
}

// RequireAdmin rejects accounts without the admin flag. It must run after
// RequireAuth.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := AccountFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, apierror.CodeUnauthorized, msgNotAuthenticated)
			return
		}

		if !account.IsAdmin {
			writeJSONError(w, http.StatusForbidden, apierror.CodeForbidden, msgNotAuthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func WithAccount(ctx context.Context, account model.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}

func AccountFromContext(ctx context.Context) (model.Account, bool) {
	account, ok := ctx.Value(accountContextKey).(model.Account)
	return account, ok
}
