package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bashaMendi/ToDo-back/internal/common"
)

// errorBody is the structured client-facing error: a machine code, a human
// message, and the request correlation id. Internal detail never leaks.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError translates sentinel errors into HTTP statuses. Anything
// unrecognized is logged by the caller and reported as a generic internal
// error.
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	message := "internal error"

	switch {
	case errors.Is(err, common.ErrorValidation):
		status, code, message = http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, common.ErrInvalidToken):
		status, code, message = http.StatusBadRequest, "INVALID_TOKEN", "invalid token"
	case errors.Is(err, common.ErrTokenExpired):
		status, code, message = http.StatusBadRequest, "TOKEN_EXPIRED", "token expired"
	case errors.Is(err, common.ErrorUnauthorized):
		status, code, message = http.StatusUnauthorized, "UNAUTHORIZED", "authentication required"
	case errors.Is(err, common.ErrorForbidden):
		status, code, message = http.StatusForbidden, "FORBIDDEN", "forbidden"
	case errors.Is(err, common.ErrorNotFound):
		status, code, message = http.StatusNotFound, "NOT_FOUND", "not found"
	case errors.Is(err, common.ErrorAlreadyExists):
		status, code, message = http.StatusConflict, "ALREADY_EXISTS", "already exists"
	case errors.Is(err, common.ErrVersionConflict):
		status, code, message = http.StatusConflict, "VERSION_CONFLICT", "task was modified by someone else"
	case errors.Is(err, common.ErrorRateLimited):
		status, code, message = http.StatusTooManyRequests, "RATE_LIMITED", "too many requests"
	default:
		s.logger.Error(ctx, "request failed", "error", err)
	}

	writeJSON(w, status, errorBody{Code: code, Message: message, RequestID: requestIDFrom(ctx)})
}
