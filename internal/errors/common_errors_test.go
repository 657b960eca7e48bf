package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kindedErr struct{ kind ErrorType }

func (k kindedErr) Error() string         { return "kinded" }
func (k kindedErr) ErrorKind() ErrorType { return k.kind }

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name        string
		appError    *AppError
		wantMessage string
	}{
		{
			name:        "error without cause",
			appError:    NewDataIntegrityError("missing quote_date column", nil),
			wantMessage: "[DATA_INTEGRITY] missing quote_date column",
		},
		{
			name:        "error with cause",
			appError:    NewSourceError("wrds query failed", fmt.Errorf("connection refused")),
			wantMessage: "[SOURCE] wrds query failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMessage, tt.appError.Error())
		})
	}
}

func TestAppError_UnwrapAndContext(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStorageError("write surface", cause).WithContext("path", "/tmp/x.csv")

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "/tmp/x.csv", err.Context["path"])
}

func TestIsType(t *testing.T) {
	wrapped := fmt.Errorf("calibrate: %w", NewDataIntegrityError("as-of mismatch", nil))

	assert.True(t, IsDataIntegrity(wrapped))
	assert.False(t, IsType(wrapped, ErrTypeSampling))
	assert.True(t, IsType(fmt.Errorf("x: %w", kindedErr{ErrTypeDataIntegrity}), ErrTypeDataIntegrity))
	assert.False(t, IsDataIntegrity(errors.New("plain")))
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"data integrity", NewDataIntegrityError("bad", nil), http.StatusUnprocessableEntity, "DATA_INTEGRITY"},
		{"validation", NewAppValidationError("bad date"), http.StatusBadRequest, "VALIDATION_FAILED"},
		{"missing data", NewMissingDataError("no surface", nil), http.StatusNotFound, "MISSING_DATA"},
		{"source", fmt.Errorf("load: %w", NewSourceError("wrds down", nil)), http.StatusBadGateway, "SOURCE_UNAVAILABLE"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := FromError(tt.err)
			require.NotNil(t, apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.code, apiErr.ErrorCode)
			assert.Equal(t, tt.err.Error(), apiErr.Details)
		})
	}
}

func TestNotFoundError_DoesNotShareDetails(t *testing.T) {
	a := NotFoundError("run wrds_heston")
	b := NotFoundError("batch b1")
	assert.Equal(t, "run wrds_heston not found", a.Message)
	assert.Equal(t, "batch b1", b.Details)
	assert.Nil(t, ErrNotFound.Details)
}
