package middleware

import (
	"net/http"
	"time"
)

const timeoutBody = `{"detail":"Request timed out","code":"REQUEST_TIMEOUT"}`

func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return func(next http.Handler) http.Handler {
		inner := http.TimeoutHandler(next, timeout, timeoutBody)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inner.ServeHTTP(timeoutJSONWriter{w}, r)
		})
	}
}

// timeoutJSONWriter labels the bare timeout body as JSON. Responses from the
// wrapped handler keep whatever Content-Type they set.
type timeoutJSONWriter struct {
	http.ResponseWriter
}

func (w timeoutJSONWriter) WriteHeader(status int) {
	if status == http.StatusServiceUnavailable && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.ResponseWriter.WriteHeader(status)
}
