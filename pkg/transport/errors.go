package transport

import (
	"encoding/json"
	"net/http"

	"github.com/rhuss/tenantgate/pkg/api"
)

// WriteAPIError writes {"error": {...}} with the status of the error type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteJSON(w, apiErr.HTTPStatus(), api.ErrorResponse{Error: apiErr})
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
