package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "auth:revoked:"

// RedisRevocationRepository хранит отзывы в общем Redis. Срок хранения задаётся
// TTL ключа, поэтому чистка старых записей не нужна.
type RedisRevocationRepository struct {
	rdb       redis.UniversalClient
	retention time.Duration
}

func NewRedisRevocationRepository(rdb redis.UniversalClient, retention time.Duration) *RedisRevocationRepository {
	return &RedisRevocationRepository{rdb: rdb, retention: retention}
}

func revokedKey(jti string) string {
	return revokedKeyPrefix + jti
}

// Revoke: SET NX, чтобы повторный отзыв не продлевал запись.
func (r *RedisRevocationRepository) Revoke(ctx context.Context, jti string, revokedAt time.Time) error {
	err := r.rdb.SetNX(ctx, revokedKey(jti), revokedAt.Unix(), r.retention).Err()
	return translateRedis(err)
}

func (r *RedisRevocationRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, translateRedis(err)
	}
	return n > 0, nil
}

// DeleteRevokedBefore: записи истекают сами по TTL.
func (r *RedisRevocationRepository) DeleteRevokedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func translateRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
