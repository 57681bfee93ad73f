package handler

import (
	"errors"
	"mime"
	"net/http"

	"netmon-auth/internal/metrics"
	"netmon-auth/internal/middleware"
	"netmon-auth/internal/service"
	"netmon-auth/pkg/apierror"
)

type loginRecorder interface {
	RecordLogin(outcome string)
}

type AuthHandler struct {
	service  *service.AccountService
	recorder loginRecorder
}

func NewAuthHandler(service *service.AccountService, recorder loginRecorder) *AuthHandler {
	return &AuthHandler{service: service, recorder: recorder}
}

// Login exchanges form-encoded credentials for an access token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	username, password, err := readLoginForm(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.service.Login(r.Context(), username, password)
	if err != nil {
		h.record(loginOutcome(err))
		writeError(w, err)
		return
	}

	h.record(metrics.LoginSuccess)
	writeJSON(w, http.StatusOK, resp)
}

// Me returns the caller's own account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized("Not authenticated"))
		return
	}

	writeJSON(w, http.StatusOK, account.View())
}

func (h *AuthHandler) record(outcome string) {
	if h.recorder != nil {
		h.recorder.RecordLogin(outcome)
	}
}

// maxFormMemory bounds the multipart parts held in memory; larger file parts
// spill to temporary files.
const maxFormMemory = 32 << 10

func readLoginForm(w http.ResponseWriter, r *http.Request) (string, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var err error
	switch mediaType {
	case "multipart/form-data":
		err = r.ParseMultipartForm(maxFormMemory)
		if r.MultipartForm != nil {
			defer func() { _ = r.MultipartForm.RemoveAll() }()
		}
	case "application/x-www-form-urlencoded":
		err = r.ParseForm()
	default:
		return "", "", apierror.BadRequest("expected form-encoded credentials", "username, password")
	}
	if err != nil {
		return "", "", apierror.BadRequest("invalid form body", "")
	}

	username, password := r.PostFormValue("username"), r.PostFormValue("password")
	if username == "" || password == "" {
		return "", "", apierror.BadRequest("username and password are required", "username, password")
	}
	return username, password, nil
}

func loginOutcome(err error) string {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatus == http.StatusUnauthorized {
		return metrics.LoginFailure
	}
	return metrics.LoginError
}
