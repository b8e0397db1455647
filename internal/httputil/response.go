// Package httputil carries the JSON response helpers shared by the API
// handlers and the HTTP client seam the CLI client is tested through.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/banshee-data/canbridge/internal/monitoring"
)

func writeBody(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		monitoring.Logf("httputil: encode %d response: %v", status, err)
	}
}

// WriteJSON writes data as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	writeBody(w, status, data)
}

// WriteJSONOK writes data with a 200.
func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	writeBody(w, http.StatusOK, data)
}

// WriteJSONError writes {"error": msg} with the given status.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	writeBody(w, status, map[string]string{"error": msg})
}

// MethodNotAllowed rejects a request whose method the handler does not
// serve.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// BadRequest writes a 400 with msg.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

// NotFound writes a 404 with msg.
func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, msg)
}

// InternalServerError writes a 500 with msg.
func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}
