package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the uniform error body every endpoint returns.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondWithError writes an ErrorResponse with the given status code.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Error: message})
}

// RespondWithJSON encodes payload as the response body. The status line is
// already committed when encoding fails, so the error is mostly useful for
// logging.
func RespondWithJSON(w http.ResponseWriter, code int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode response: "+err.Error(), http.StatusInternalServerError)
		return err
	}
	return nil
}
