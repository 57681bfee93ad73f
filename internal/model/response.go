package model

// ErrorResponse is the body of every failed request. Detail carries the
// human-readable message the dashboard displays.
type ErrorResponse struct {
	Detail  string `json:"detail"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}
