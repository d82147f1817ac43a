package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/graychat-core/internal/auth"
	"github.com/nerrad567/graychat-core/internal/room"
)

// Error is the structured error envelope.
type Error struct {
	Success bool   `json:"success"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes, one per error kind.
const (
	ErrCodeValidation   = "validation_error"
	ErrCodeAuthRequired = "authentication_required"
	ErrCodeInvalidCreds = "invalid_credentials"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
)

// StatusAuthRequired is returned when a route needs an identity and none
// was resolved. Clients of this service have always keyed on 402 here.
const StatusAuthRequired = http.StatusPaymentRequired

// Messages shared by the HTTP and WebSocket paths.
const (
	msgAuthRequired = "User not authenticated"
	msgInvalidCreds = "Invalid credentials"
	msgForbidden    = "User not allowed"
	msgRoomNotFound = "Room not found"
	msgUserNotFound = "User not found"
	msgUserExists   = "Username or email already exists, please login to proceed"
	msgInternal     = "Internal server error"
)

// apiError carries an explicit status for failures raised inside handlers,
// mostly request validation.
type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string { return e.message }

func validationError(message string) error {
	return &apiError{status: http.StatusBadRequest, code: ErrCodeValidation, message: message}
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeSuccess writes {"success":true,"status":N} merged with fields.
func writeSuccess(w http.ResponseWriter, status int, fields map[string]any) {
	body := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = true
	body["status"] = status
	writeJSON(w, status, body)
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeServiceError maps err onto an error kind and writes it. Anything
// unrecognised is logged and reported as a generic internal error.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apiError
	switch {
	case errors.As(err, &ae):
		writeError(w, ae.status, ae.code, ae.message)
	case errors.Is(err, auth.ErrNotAuthenticated), errors.Is(err, room.ErrAuthRequired):
		writeError(w, StatusAuthRequired, ErrCodeAuthRequired, msgAuthRequired)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidCreds, msgInvalidCreds)
	case errors.Is(err, room.ErrForbidden):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, msgForbidden)
	case errors.Is(err, room.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, msgRoomNotFound)
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, msgUserNotFound)
	case errors.Is(err, auth.ErrUserExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, msgUserExists)
	case errors.Is(err, room.ErrInvalidVisibility):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, msgInternal)
	}
}
