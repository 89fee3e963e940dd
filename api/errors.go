package api

import (
	"errors"
	"net/http"

	"github.com/evalgo-org/diagramhub/quota"
	"github.com/evalgo-org/diagramhub/storage"
	"github.com/labstack/echo/v4"
)

// apiError is the storage-boundary error envelope from spec §6.3:
// {error:{code, message, details?}}.
type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type apiErrorEnvelope struct {
	Error apiError `json:"error"`
}

// writeError renders err as the standard envelope, mapping its kind to the
// HTTP status table in spec §6.3.
func writeError(c echo.Context, err error) error {
	code, status, message, details := classify(err)
	return c.JSON(status, apiErrorEnvelope{Error: apiError{Code: code, Message: message, Details: details}})
}

func classify(err error) (code string, status int, message string, details interface{}) {
	var quotaErr *quota.Exceeded
	if errors.As(err, &quotaErr) {
		return "QUOTA_EXCEEDED", http.StatusBadRequest, err.Error(), quotaErr
	}

	var circuitErr *storage.CircuitOpenError
	if errors.As(err, &circuitErr) {
		return "CIRCUIT_OPEN", http.StatusServiceUnavailable, err.Error(), map[string]string{"retryAfter": circuitErr.RetryAfter.String()}
	}

	var retriesErr *storage.MaxRetriesExceededError
	if errors.As(err, &retriesErr) {
		return "VERSION_CONFLICT", http.StatusConflict, err.Error(), nil
	}

	var invalidUserErr *storage.InvalidUserIDError
	if errors.As(err, &invalidUserErr) {
		return "VALIDATION_ERROR", http.StatusBadRequest, err.Error(), nil
	}

	var validationErr *validationError
	if errors.As(err, &validationErr) {
		return "VALIDATION_ERROR", http.StatusBadRequest, validationErr.msg, validationErr.issues
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg, ok := httpErr.Message.(string)
		if !ok {
			msg = err.Error()
		}
		return statusCode(httpErr.Code), httpErr.Code, msg, nil
	}

	return "INTERNAL_ERROR", http.StatusInternalServerError, err.Error(), nil
}

func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_INPUT"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "VERSION_CONFLICT"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		return "INTERNAL_ERROR"
	}
}

// validationError wraps a spec/request validation failure with its issue
// list, so the API boundary can surface structured details.
type validationError struct {
	issues interface{}
	msg    string
}

func (e *validationError) Error() string { return e.msg }

func newValidationError(msg string, issues interface{}) error {
	return &validationError{msg: msg, issues: issues}
}
