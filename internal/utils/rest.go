package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON body returned for any API error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondWithError writes message as an ErrorResponse with the given status
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Error: message})
}

// RespondWithJSON encodes payload as JSON with the given status
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode response: "+err.Error(), http.StatusInternalServerError)
		return err
	}
	return nil
}
