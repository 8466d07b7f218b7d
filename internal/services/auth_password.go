package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"authcore/internal/logger"
	"authcore/internal/models"
	"authcore/internal/repository"

	"go.uber.org/zap"
)

const minPasswordLength = 8

// ScopedTokenIssuer выпускает и разбирает короткие токены сброса пароля.
type ScopedTokenIssuer interface {
	IssueScoped(subject string) (string, error)
	ScopedSubject(token string) (string, error)
}

type PasswordService struct {
	users    repository.UserRepo
	resets   repository.PasswordResetRepo
	tokens   ScopedTokenIssuer
	hasher   PasswordHasher
	notifier Notifier
	tokenTTL time.Duration
	timeout  time.Duration
	now      func() time.Time
}

func NewPasswordService(
	users repository.UserRepo,
	resets repository.PasswordResetRepo,
	tokens ScopedTokenIssuer,
	hasher PasswordHasher,
	notifier Notifier,
	tokenTTL, storageTimeout time.Duration,
) *PasswordService {
	return &PasswordService{
		users:    users,
		resets:   resets,
		tokens:   tokens,
		hasher:   hasher,
		notifier: notifier,
		tokenTTL: tokenTTL,
		timeout:  storageTimeout,
		now:      time.Now,
	}
}

// RequestReset выпускает токен сброса и отправляет ссылку на почту.
// Возвращает nil всегда (не раскрываем, существует ли такой аккаунт).
func (s *PasswordService) RequestReset(ctx context.Context, identifier string) error {
	identifier = strings.TrimSpace(identifier)
	log := logger.WithCtx(ctx)
	if identifier == "" {
		return validationError("username_or_email is required")
	}

	sctx, cancel := storageCtx(ctx, s.timeout)
	defer cancel()

	user, err := s.users.FindByUsernameOrEmail(sctx, identifier)
	if err != nil {
		log.Warn("Не удалось найти пользователя при запросе сброса", zap.Error(err))
		return nil
	}

	token, err := s.tokens.IssueScoped(user.Username)
	if err != nil {
		log.Error("Ошибка генерации токена для сброса", zap.Int("user_id", user.ID), zap.Error(err))
		return nil
	}

	// Предыдущие незавершённые сбросы больше не нужны.
	rt := models.NewResetToken(user.ID, token, s.now(), s.tokenTTL)
	replaced, err := s.resets.Replace(sctx, rt)
	if err != nil {
		log.Error("Ошибка сохранения токена сброса пароля", zap.Int("user_id", user.ID), zap.Error(err))
		return nil
	}
	if replaced > 0 {
		log.Debug("Старые токены сброса удалены", zap.Int("user_id", user.ID), zap.Int64("replaced", replaced))
	}

	if s.notifier != nil {
		if err := s.notifier.SendPasswordReset(ctx, user.Email, token); err != nil {
			log.Error("Ошибка отправки письма для сброса пароля", zap.Int("user_id", user.ID), zap.Error(err))
		}
	}

	log.Info("Ссылка на сброс пароля поставлена на отправку",
		zap.Int("user_id", user.ID), zap.String("expires_at", rt.ExpirationDate))
	return nil
}

// ResetPassword проверяет токен и username, затем атомарно меняет пароль
// и удаляет токен. Из двух одновременных попыток успешна только одна.
func (s *PasswordService) ResetPassword(ctx context.Context, token, username, newPassword string) error {
	log := logger.WithCtx(ctx)
	username = strings.TrimSpace(username)

	if username == "" {
		return validationError("username is required")
	}
	if len(newPassword) < minPasswordLength {
		log.Warn("Слишком короткий новый пароль")
		return validationError("password too short")
	}

	sctx, cancel := storageCtx(ctx, s.timeout)
	defer cancel()

	rec, err := s.resets.GetByToken(sctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("Неизвестный токен сброса")
		return ErrInvalidResetToken
	}
	if err != nil {
		return storageError("get reset token", err)
	}
	if rec.IsExpired(s.now()) {
		log.Warn("Просроченный токен сброса", zap.Int("user_id", rec.UserID))
		return ErrInvalidResetToken
	}

	subject, err := s.tokens.ScopedSubject(token)
	if err != nil {
		log.Warn("Токен сброса не прошёл проверку подписи", zap.Int("user_id", rec.UserID))
		return ErrInvalidResetToken
	}
	if subject != username {
		return validationError("wrong username for this token")
	}

	user, err := s.users.GetUserByID(sctx, rec.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return storageError("get user", err)
	}
	if user.Username != username {
		return validationError("wrong username for this token")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		log.Error("Ошибка генерации хеша пароля", zap.Int("user_id", user.ID), zap.Error(err))
		return err
	}

	err = s.resets.ConsumeAndSetPassword(sctx, rec.ID, user.ID, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return storageError("reset password", err)
	}

	log.Info("Пароль успешно сброшен", zap.Int("user_id", user.ID))
	return nil
}

// ResetToken возвращает запись сброса по id.
func (s *PasswordService) ResetToken(ctx context.Context, id int) (*models.ResetToken, error) {
	sctx, cancel := storageCtx(ctx, s.timeout)
	defer cancel()

	rt, err := s.resets.GetByID(sctx, id)
	if err != nil {
		return nil, storageError("get reset token", err)
	}
	return rt, nil
}

// PurgeExpired удаляет просроченные токены сброса.
func (s *PasswordService) PurgeExpired(ctx context.Context) (int64, error) {
	sctx, cancel := storageCtx(ctx, s.timeout)
	defer cancel()

	n, err := s.resets.DeleteExpired(sctx, s.now())
	if err != nil {
		return 0, storageError("purge reset tokens", err)
	}
	return n, nil
}
