package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, ErrRoutineNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "ROUTINE_NOT_FOUND", resp.Error.ErrorCode)
}

func TestErrValidation(t *testing.T) {
	err := ErrValidation("frequency", "must be hourly, daily or weekly")

	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", err.ErrorCode)

	detail, ok := err.Details.(ValidationError)
	require.True(t, ok)
	assert.Equal(t, "frequency", detail.Field)
}

func TestAPIError_Error(t *testing.T) {
	err := New(http.StatusConflict, "ROUTINE_BUSY", "A routine run is already in progress")
	assert.Equal(t, "A routine run is already in progress", err.Error())
}
