package api

import (
	"errors"
	"net/http"

	"github.com/fishook/fishook/internal/backend"
)

type ApiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewApiError(message string, code int) *ApiError {
	return &ApiError{
		Code:    code,
		Message: message,
	}
}

func (e ApiError) Error() string {
	return e.Message
}

// writeBackendError relays a backend failure: the backend's own status and
// message pass through, anything else becomes a 502.
func writeBackendError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		WriteJsonResponseWithStatusCode(w, NewApiError(apiErr.Message, apiErr.Status), apiErr.Status)
		return
	}
	WriteJsonResponseWithStatusCode(w, NewApiError("backend unavailable", http.StatusBadGateway), http.StatusBadGateway)
}
