package handler

import (
	"net/http"

	"netmon-auth/internal/middleware"
	"netmon-auth/internal/model"
	"netmon-auth/internal/service"
	"netmon-auth/pkg/apierror"
)

type AdminHandler struct {
	service  *service.AccountService
	recorder accountChangeRecorder
}

func NewAdminHandler(service *service.AccountService, recorder accountChangeRecorder) *AdminHandler {
	return &AdminHandler{service: service, recorder: recorder}
}

// UpdateCredentials rotates the calling admin's username and password.
func (h *AdminHandler) UpdateCredentials(w http.ResponseWriter, r *http.Request) {
	admin, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized("Not authenticated"))
		return
	}

	var payload model.CredentialsRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.RotateAdminCredentials(r.Context(), admin, payload); err != nil {
		writeError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordAccountChange("rotate_admin")
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "Admin credentials updated"})
}
