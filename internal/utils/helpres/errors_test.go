package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"authcore/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("op: %w", services.ErrValidation), http.StatusBadRequest},
		{services.ErrInvalidCredentials, http.StatusUnauthorized},
		{services.ErrMalformedToken, http.StatusUnauthorized},
		{services.ErrInvalidResetToken, http.StatusUnauthorized},
		{services.ErrSecondFactorRequired, http.StatusForbidden},
		{services.ErrResendLimited, http.StatusForbidden},
		{services.ErrRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("x: %w", services.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", services.ErrAlreadyExists), http.StatusConflict},
		{fmt.Errorf("x: %w: %w", services.ErrStorage, errors.New("boom")), http.StatusInternalServerError},
		{fmt.Errorf("x: %w", services.ErrStorageTimeout), http.StatusServiceUnavailable},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		status, _ := StatusFor(c.err)
		assert.Equal(t, c.status, status, c.err.Error())
	}
}

func TestStatusFor_MalformedTokenLooksLikeAnyUnauthorized(t *testing.T) {
	_, a := StatusFor(services.ErrMalformedToken)
	_, b := StatusFor(services.ErrUnauthorized)
	assert.Equal(t, a, b)
}

func TestWriteError_StorageDetailsNotLeaked(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("x: %w: %w", services.ErrStorage, errors.New("password=hunter2")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestWriteError_TimeoutSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, services.ErrStorageTimeout)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
}
