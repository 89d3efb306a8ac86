package handlers

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse writes the error envelope shared by the chat, chart and
// download endpoints: a JSON object with a machine-readable "error" code
// and a human-readable "message". Returns the encoding error, if any.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes data as a JSON response body. The status header is only
// written explicitly for non-200 codes.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}
