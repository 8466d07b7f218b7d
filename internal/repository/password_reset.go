package repository

import (
	"context"
	"time"

	"authcore/internal/logger"
	"authcore/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type PasswordResetRepository struct {
	db *pgxpool.Pool
}

func NewPasswordResetRepository(db *pgxpool.Pool) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

type PasswordResetRepo interface {
	// Replace удаляет все токены пользователя и сохраняет новый одной транзакцией.
	// Строка пользователя блокируется, поэтому параллельные запросы сброса
	// выполняются по очереди и живым остаётся ровно один токен.
	Replace(ctx context.Context, token *models.ResetToken) (replaced int64, err error)
	GetByToken(ctx context.Context, token string) (*models.ResetToken, error)
	GetByID(ctx context.Context, id int) (*models.ResetToken, error)
	// ConsumeAndSetPassword удаляет токен и меняет пароль одной транзакцией.
	// ErrNotFound, если токен уже удалён (использован параллельно).
	ConsumeAndSetPassword(ctx context.Context, id, userID int, passwordHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

const resetColumns = `id, user_id, token, expiration_date`

func scanReset(row pgx.Row) (*models.ResetToken, error) {
	var t models.ResetToken
	if err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.ExpirationDate); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PasswordResetRepository) Replace(ctx context.Context, token *models.ResetToken) (int64, error) {
	var replaced int64
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		var id int
		if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, token.UserID).Scan(&id); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM forgot_password_table WHERE user_id = $1`, token.UserID)
		if err != nil {
			return err
		}
		replaced = tag.RowsAffected()

		return tx.QueryRow(ctx,
			`INSERT INTO forgot_password_table (user_id, token, expiration_date) VALUES ($1, $2, $3) RETURNING id`,
			token.UserID, token.Token, token.ExpirationDate,
		).Scan(&token.ID)
	})
	if err != nil {
		logger.Log.Error("Replace reset token failed", zap.Error(err), zap.Int("user_id", token.UserID))
		return 0, err
	}
	return replaced, nil
}

func (r *PasswordResetRepository) GetByToken(ctx context.Context, token string) (*models.ResetToken, error) {
	t, err := scanReset(r.db.QueryRow(ctx, `SELECT `+resetColumns+` FROM forgot_password_table WHERE token = $1`, token))
	if err != nil {
		return nil, translate(err)
	}
	return t, nil
}

func (r *PasswordResetRepository) GetByID(ctx context.Context, id int) (*models.ResetToken, error) {
	t, err := scanReset(r.db.QueryRow(ctx, `SELECT `+resetColumns+` FROM forgot_password_table WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return t, nil
}

func (r *PasswordResetRepository) ConsumeAndSetPassword(ctx context.Context, id, userID int, passwordHash string) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM forgot_password_table WHERE id = $1 AND user_id = $2`, id, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		tag, err = tx.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteExpired: формат expiration_date сортируется лексикографически,
// поэтому сравнение строк совпадает со сравнением времени.
func (r *PasswordResetRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.In(time.Local).Format(models.ResetTokenLayout)
	tag, err := r.db.Exec(ctx, `DELETE FROM forgot_password_table WHERE expiration_date <= $1`, cutoff)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}
