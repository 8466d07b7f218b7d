package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authcore/internal/repository"
	"authcore/internal/utils"
)

var (
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials: и неизвестный пользователь, и неверный пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrRateLimited        = errors.New("too many verification code requests")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrStorage            = errors.New("storage failure")
	ErrStorageTimeout     = errors.New("storage timeout")

	ErrMalformedToken = utils.ErrMalformedToken

	// ErrSecondFactorRequired: токен валиден, но последний код не подтверждён.
	ErrSecondFactorRequired = fmt.Errorf("%w: latest verification code must be verified", ErrForbidden)
	// ErrResendLimited: тот же лимит, что и при логине, но на resend это 403.
	ErrResendLimited = fmt.Errorf("%w: too many codes generated in one hour", ErrForbidden)
	// ErrInvalidResetToken: токен сброса не найден, истёк или уже использован.
	ErrInvalidResetToken = fmt.Errorf("%w: reset token invalid or expired", ErrUnauthorized)
)

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// storageError приводит ошибки хранилища к таксономии сервиса.
func storageError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, ErrStorageTimeout, err)
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}
}

// storageCtx ограничивает каждый поход в хранилище по времени.
func storageCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
