package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"netmon-auth/internal/model"
	"netmon-auth/internal/service"
	"netmon-auth/pkg/apierror"
)

type accountChangeRecorder interface {
	RecordAccountChange(operation string)
}

type UserHandler struct {
	service  *service.AccountService
	recorder accountChangeRecorder
}

func NewUserHandler(service *service.AccountService, recorder accountChangeRecorder) *UserHandler {
	return &UserHandler{service: service, recorder: recorder}
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload model.CredentialsRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	view, err := h.service.CreateUser(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	h.record("create")
	writeJSON(w, http.StatusOK, view)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == "" {
		writeError(w, apierror.BadRequest("username is required", "username"))
		return
	}

	if err := h.service.DeleteUser(r.Context(), username); err != nil {
		writeError(w, err)
		return
	}

	h.record("delete")
	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "User deleted"})
}

func (h *UserHandler) record(operation string) {
	if h.recorder != nil {
		h.recorder.RecordAccountChange(operation)
	}
}
