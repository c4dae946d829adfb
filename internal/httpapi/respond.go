package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/service"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

// Codes for failures detected before a request reaches the executor.
const (
	codeBadJSON    = "bad_json"
	codeBadRequest = "bad_request"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: types.ErrorBody{Code: code, Message: msg}})
}

func statusFor(code string) int {
	switch code {
	case service.CodeUnauthorized:
		return http.StatusForbidden
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeInvalidProperty, service.CodeUnknownEventType, service.CodeInvalidRole:
		return http.StatusUnprocessableEntity
	case service.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
