package api

import (
	"encoding/json"
	"io"
	"net/http"
)

// writeJSON writes a JSON response to the response writer
func writeJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	return encoder.Encode(data)
}

// writeError sends an error response
func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	_ = writeJSON(w, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// writeOK sends a 200 JSON response
func writeOK(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = writeJSON(w, data)
}
