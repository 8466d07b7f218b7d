package services

import (
	"context"
	"errors"
	"time"

	"authcore/internal/logger"
	"authcore/internal/models"
	"authcore/internal/repository"
	"authcore/internal/utils"

	"go.uber.org/zap"
)

type VerificationConfig struct {
	CodeTTL        time.Duration
	RateWindow     time.Duration
	RateLimit      int
	StorageTimeout time.Duration
}

func DefaultVerificationConfig() VerificationConfig {
	return VerificationConfig{
		CodeTTL:        15 * time.Minute,
		RateWindow:     time.Hour,
		RateLimit:      4,
		StorageTimeout: 5 * time.Second,
	}
}

// VerificationService: хранилище одноразовых кодов второго фактора.
// Единственный источник истины это репозиторий; в памяти процесса ничего не держим.
type VerificationService struct {
	repo     repository.VerificationCodeRepo
	cfg      VerificationConfig
	now      func() time.Time
	randCode func() (int, error)
}

func NewVerificationService(repo repository.VerificationCodeRepo, cfg VerificationConfig) *VerificationService {
	return &VerificationService{
		repo:     repo,
		cfg:      cfg,
		now:      time.Now,
		randCode: utils.RandomCode,
	}
}

// Generate создаёт новый код для пользователя и IP. Доставка на вызывающем.
func (s *VerificationService) Generate(ctx context.Context, userID int, requestIP string) (*models.VerificationCode, error) {
	raw, err := s.randCode()
	if err != nil {
		logger.WithCtx(ctx).Error("Ошибка генерации кода", zap.Error(err))
		return nil, err
	}

	now := s.now()
	vc := &models.VerificationCode{
		Code:           raw,
		UserID:         userID,
		CreatedAt:      now,
		ExpirationDate: now.Add(s.cfg.CodeTTL),
		Used:           false,
		RequestIP:      requestIP,
	}

	sctx, cancel := storageCtx(ctx, s.cfg.StorageTimeout)
	defer cancel()
	if err := s.repo.Create(sctx, vc); err != nil {
		return nil, storageError("create verification code", err)
	}

	logger.WithCtx(ctx).Info("Выпущен код подтверждения",
		zap.Int("user_id", userID), zap.Time("expires_at", vc.ExpirationDate))
	return vc, nil
}

// CountRecentlyIssued: сколько кодов пользователь получил за окно лимита.
func (s *VerificationService) CountRecentlyIssued(ctx context.Context, userID int) (int, error) {
	sctx, cancel := storageCtx(ctx, s.cfg.StorageTimeout)
	defer cancel()

	n, err := s.repo.CountSince(sctx, userID, s.now().Add(-s.cfg.RateWindow))
	if err != nil {
		return 0, storageError("count verification codes", err)
	}
	return n, nil
}

// GenerateLimited выпускает код, если лимит за окно не исчерпан.
// Проверка и вставка не атомарны: под нагрузкой лимит может быть чуть превышен.
func (s *VerificationService) GenerateLimited(ctx context.Context, userID int, requestIP string) (*models.VerificationCode, error) {
	n, err := s.CountRecentlyIssued(ctx, userID)
	if err != nil {
		return nil, err
	}
	if n >= s.cfg.RateLimit {
		logger.WithCtx(ctx).Warn("Лимит кодов исчерпан", zap.Int("user_id", userID), zap.Int("issued", n))
		return nil, ErrRateLimited
	}
	return s.Generate(ctx, userID, requestIP)
}

// LatestFor возвращает последний код пользователя или nil, если кодов нет.
func (s *VerificationService) LatestFor(ctx context.Context, userID int) (*models.VerificationCode, error) {
	sctx, cancel := storageCtx(ctx, s.cfg.StorageTimeout)
	defer cancel()

	vc, err := s.repo.GetLatestByUserID(sctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("latest verification code", err)
	}
	return vc, nil
}

// IsPending: код ещё действует и не использован.
func (s *VerificationService) IsPending(vc *models.VerificationCode) bool {
	return vc != nil && !vc.Used && vc.ActiveAt(s.now(), s.cfg.CodeTTL)
}

// VerifyAndConsume гасит код не более одного раза. Проверка идёт под
// блокировкой строки, поэтому два параллельных вызова не увидят used=false оба.
func (s *VerificationService) VerifyAndConsume(ctx context.Context, code, userID int, requestIP string) (bool, error) {
	if code < 0 || code > 999999 {
		return false, nil
	}

	sctx, cancel := storageCtx(ctx, s.cfg.StorageTimeout)
	defer cancel()

	ok, err := s.repo.ConsumeIfValid(sctx, code, userID, func(vc *models.VerificationCode) bool {
		return !vc.Used &&
			vc.UserID == userID &&
			vc.RequestIP == requestIP &&
			vc.ActiveAt(s.now(), s.cfg.CodeTTL)
	})
	if err != nil {
		return false, storageError("consume verification code", err)
	}

	if ok {
		logger.WithCtx(ctx).Info("Код подтверждён", zap.Int("user_id", userID))
	} else {
		logger.WithCtx(ctx).Warn("Код отклонён", zap.Int("user_id", userID))
	}
	return ok, nil
}

// HasVerifiedLatest: условие допуска второго фактора: последний код
// использован, ещё в окне жизни и выпущен с того же IP.
func (s *VerificationService) HasVerifiedLatest(ctx context.Context, userID int, requestIP string) (bool, error) {
	latest, err := s.LatestFor(ctx, userID)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return false, nil
	}
	return latest.Used &&
		latest.ActiveAt(s.now(), s.cfg.CodeTTL) &&
		latest.RequestIP == requestIP, nil
}

// PurgeExpiredAndUsed удаляет использованные коды и коды старше срока жизни.
func (s *VerificationService) PurgeExpiredAndUsed(ctx context.Context) (int64, error) {
	sctx, cancel := storageCtx(ctx, s.cfg.StorageTimeout)
	defer cancel()

	n, err := s.repo.DeleteUsedOrCreatedBefore(sctx, s.now().Add(-s.cfg.CodeTTL))
	if err != nil {
		return 0, storageError("purge verification codes", err)
	}
	return n, nil
}
