package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "stampd/pkg/domain-errors"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// best-effort fallback; don't override status for the caller
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// WriteError centralizes domain error translation to HTTP responses.
// It translates transport-agnostic domain errors into HTTP status codes and
// error bodies. A deliberate challenge rejection maps to 401; an unexpected
// verification exception maps to 500. The two are never merged.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		status := DomainCodeToHTTPStatus(domainErr.Code)
		response := map[string]any{
			"error": domainErr.Error(),
			"code":  status,
		}
		WriteJSON(w, status, response)
		return
	}

	WriteJSON(w, http.StatusInternalServerError, map[string]any{
		"error": "Unexpected server error",
		"code":  http.StatusInternalServerError,
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeUnknownProvider:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeConfiguration, dErrors.CodeKeyOrder, dErrors.CodeVerification,
		dErrors.CodeSigning, dErrors.CodeProviderExternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
