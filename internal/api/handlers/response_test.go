package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manru/manru-be/internal/services"
)

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &services.ValidationError{Field: "email", Reason: "is not a valid address"}, http.StatusBadRequest, CodeValidation},
		{"duplicate", services.ErrDuplicateEmail, http.StatusBadRequest, CodeDuplicateEmail},
		{"credentials", services.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials},
		{"token", services.ErrInvalidToken, http.StatusUnauthorized, CodeInvalidToken},
		{"unauthorized", services.ErrUnauthorized, http.StatusForbidden, CodeUnauthorized},
		{"not found", services.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{"unavailable", services.ErrStoreUnavailable, http.StatusServiceUnavailable, CodeStoreUnavailable},
		{"wrapped", oops.Code("AUTH_LOGIN_FAILED").With("email", "a@b.c").Wrap(services.ErrInvalidCredentials), http.StatusUnauthorized, CodeInvalidCredentials},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error)
			assert.NotEmpty(t, body.Message)
			assert.NotContains(t, body.Message, "disk on fire")
		})
	}
}

func TestWriteError_ValidationMessageNamesField(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, &services.ValidationError{Field: "password", Reason: "must be at least 6 characters"})

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "password must be at least 6 characters", body.Message)
}
