package services

import (
	"context"
	"time"

	"authcore/internal/logger"
	"authcore/internal/repository"

	"go.uber.org/zap"
)

// RevocationService: реестр отозванных jti. Срок хранения записей нужен
// только для гигиены хранилища, истёкший токен и так не пройдёт Validate.
type RevocationService struct {
	repo    repository.RevocationRepo
	timeout time.Duration
	now     func() time.Time
}

func NewRevocationService(repo repository.RevocationRepo, storageTimeout time.Duration) *RevocationService {
	return &RevocationService{repo: repo, timeout: storageTimeout, now: time.Now}
}

func (s *RevocationService) Revoke(ctx context.Context, jti string) error {
	if jti == "" {
		return ErrMalformedToken
	}
	sctx, cancel := storageCtx(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Revoke(sctx, jti, s.now()); err != nil {
		return storageError("revoke token", err)
	}
	logger.WithCtx(ctx).Info("Токен отозван", zap.String("jti", jti))
	return nil
}

func (s *RevocationService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	sctx, cancel := storageCtx(ctx, s.timeout)
	defer cancel()

	revoked, err := s.repo.IsRevoked(sctx, jti)
	if err != nil {
		return false, storageError("check revocation", err)
	}
	return revoked, nil
}

func (s *RevocationService) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	sctx, cancel := storageCtx(ctx, s.timeout)
	defer cancel()

	n, err := s.repo.DeleteRevokedBefore(sctx, s.now().Add(-age))
	if err != nil {
		return 0, storageError("purge revocations", err)
	}
	return n, nil
}
