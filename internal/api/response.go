package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/erazemk/ecoleta/internal/apperr"
)

type errorResponse struct {
	Message string              `json:"message"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
}

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			zap.L().Warn("encode response", zap.Error(err))
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorResponse{Message: message})
}

// statusFor maps an error code to an HTTP status. Client faults are all
// reported as 400.
func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation, apperr.CodeReferentialViolation, apperr.CodeNotFound:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err to the client. Store failures are logged and their
// cause is never exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = &apperr.Error{Code: apperr.CodeStoreFailure, Message: "Internal server error.", Err: err}
	}

	status := statusFor(e.Code)
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		jsonError(w, status, "Internal server error.")
		return
	}

	jsonResponse(w, status, errorResponse{Message: e.Message, Errors: e.Fields})
}
