package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/runledger/runledger/domain"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps a domain sentinel error to the wire error codes of §6.
func writeError(c echo.Context, err error) error {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, domain.ErrRunNotFound), errors.Is(err, domain.ErrProjectNotFound), errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidCursor):
		status, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrTerminalRun):
		status, code = http.StatusPreconditionFailed, "failed_precondition"
	case errors.Is(err, domain.ErrInvalidResumeToken):
		status, code = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, domain.ErrResourceExhausted):
		status, code = http.StatusTooManyRequests, "resource_exhausted"
	case errors.Is(err, domain.ErrUnavailable):
		status, code = http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, domain.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	}
	return c.JSON(status, errorResponse{Code: code, Message: err.Error()})
}
