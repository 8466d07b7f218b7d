package repository

import (
	"context"
	"time"

	"authcore/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// RevocationRepo: append-only множество отозванных jti.
type RevocationRepo interface {
	Revoke(ctx context.Context, jti string, revokedAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type RevocationRepository struct {
	db *pgxpool.Pool
}

func NewRevocationRepository(db *pgxpool.Pool) *RevocationRepository {
	return &RevocationRepository{db: db}
}

// Revoke идемпотентен: повторный отзыв того же jti ничего не меняет.
func (r *RevocationRepository) Revoke(ctx context.Context, jti string, revokedAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO jwt_revocation (jti, revoked_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING`, jti, revokedAt)
	if err != nil {
		logger.Log.Error("Ошибка отзыва токена (repo)", zap.Error(err))
	}
	return translate(err)
}

func (r *RevocationRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM jwt_revocation WHERE jti = $1)`, jti).Scan(&revoked)
	return revoked, translate(err)
}

func (r *RevocationRepository) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM jwt_revocation WHERE revoked_at < $1`, cutoff)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}
