package middleware

import (
	"encoding/json"
	"net/http"

	"netmon-auth/internal/model"
)

func writeJSONError(w http.ResponseWriter, status int, code string, message string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse{Detail: message, Code: code})
}
