package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runledger/runledger/domain"
)

func callWriteError(t *testing.T, err error) (*httptest.ResponseRecorder, errorResponse) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, writeError(c, err))

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestWriteError_MapsSentinelsToStatusAndCode(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domain.ErrRunNotFound, http.StatusNotFound, "not_found"},
		{domain.ErrProjectNotFound, http.StatusNotFound, "not_found"},
		{fmt.Errorf("wrapped: %w", domain.ErrInvalidArgument), http.StatusBadRequest, "invalid_argument"},
		{domain.ErrInvalidCursor, http.StatusBadRequest, "invalid_argument"},
		{domain.ErrInvalidTransition, http.StatusPreconditionFailed, "failed_precondition"},
		{domain.ErrTerminalRun, http.StatusPreconditionFailed, "failed_precondition"},
		{domain.ErrInvalidResumeToken, http.StatusUnauthorized, "unauthenticated"},
		{domain.ErrResourceExhausted, http.StatusTooManyRequests, "resource_exhausted"},
		{domain.ErrUnavailable, http.StatusServiceUnavailable, "unavailable"},
		{domain.ErrConflict, http.StatusConflict, "conflict"},
		{fmt.Errorf("some unrelated failure"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.wantCode, func(t *testing.T) {
			rec, body := callWriteError(t, tc.err)
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantCode, body.Code)
		})
	}
}
