package helpers

import (
	"errors"
	"net/http"
	"time"

	"authcore/internal/services"
)

// RetryAfter: подсказка клиенту при 503 из-за таймаута хранилища.
var RetryAfter = 2 * time.Second

// StatusFor сопоставляет ошибку сервиса HTTP-статусу и безопасному тексту.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrStorageTimeout):
		return http.StatusServiceUnavailable, "storage timeout, retry later"
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, services.ErrInvalidResetToken):
		return http.StatusUnauthorized, "reset token invalid or expired"
	case errors.Is(err, services.ErrMalformedToken), errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, services.ErrSecondFactorRequired):
		return http.StatusForbidden, "you must verify your latest code"
	case errors.Is(err, services.ErrResendLimited):
		return http.StatusForbidden, "too many codes generated in one hour"
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrRateLimited):
		return http.StatusTooManyRequests, "too many codes generated in one hour"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, services.ErrAlreadyExists):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// WriteError пишет ошибку сервиса в едином конверте.
func WriteError(w http.ResponseWriter, err error) {
	status, msg := StatusFor(err)
	if status == http.StatusServiceUnavailable {
		Unavailable(w, RetryAfter, msg)
		return
	}
	Error(w, status, msg)
}
