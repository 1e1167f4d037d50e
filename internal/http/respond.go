package httpx

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeResult sends a successful operation payload. Every field of the
// discriminated result shape rides alongside "success": true.
func writeResult(w http.ResponseWriter, status int, fields map[string]any) {
	payload := map[string]any{"success": true}
	for k, v := range fields {
		payload[k] = v
	}
	writeJSON(w, status, payload)
}

// writeFailure sends the uniform failure shape.
func writeFailure(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = "Unknown error"
	}
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
