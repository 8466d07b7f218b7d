package repository

import (
	"context"
	"errors"
	"time"

	"authcore/internal/logger"
	"authcore/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type VerificationCodeRepo interface {
	Create(ctx context.Context, vc *models.VerificationCode) error
	CountSince(ctx context.Context, userID int, since time.Time) (int, error)
	GetLatestByUserID(ctx context.Context, userID int) (*models.VerificationCode, error)
	// ConsumeIfValid блокирует строку кода, отдаёт её в check и, если check
	// вернул true, помечает used=true. Всё в одной транзакции.
	ConsumeIfValid(ctx context.Context, code, userID int, check func(vc *models.VerificationCode) bool) (bool, error)
	DeleteUsedOrCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type VerificationCodeRepository struct {
	db *pgxpool.Pool
}

func NewVerificationCodeRepository(db *pgxpool.Pool) *VerificationCodeRepository {
	return &VerificationCodeRepository{db: db}
}

// errCodeRejected откатывает транзакцию, когда код не прошёл проверку.
var errCodeRejected = errors.New("verification code rejected")

const codeColumns = `id, code, user_id, created_at, expiration_date, used, request_ip`

func scanCode(row pgx.Row) (*models.VerificationCode, error) {
	var vc models.VerificationCode
	err := row.Scan(&vc.ID, &vc.Code, &vc.UserID, &vc.CreatedAt, &vc.ExpirationDate, &vc.Used, &vc.RequestIP)
	if err != nil {
		return nil, err
	}
	return &vc, nil
}

func (r *VerificationCodeRepository) Create(ctx context.Context, vc *models.VerificationCode) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO auth_code_table (code, user_id, created_at, expiration_date, used, request_ip)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		vc.Code, vc.UserID, vc.CreatedAt, vc.ExpirationDate, vc.Used, vc.RequestIP,
	).Scan(&vc.ID)
	if err != nil {
		logger.Log.Error("Ошибка сохранения кода подтверждения (repo)", zap.Int("user_id", vc.UserID), zap.Error(err))
	}
	return translate(err)
}

// CountSince без блокировок: при гонке лимит может быть немного превышен.
func (r *VerificationCodeRepository) CountSince(ctx context.Context, userID int, since time.Time) (int, error) {
	var c int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM auth_code_table
		WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	).Scan(&c)
	return c, translate(err)
}

func (r *VerificationCodeRepository) GetLatestByUserID(ctx context.Context, userID int) (*models.VerificationCode, error) {
	vc, err := scanCode(r.db.QueryRow(ctx, `
		SELECT `+codeColumns+`
		FROM auth_code_table
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, userID))
	if err != nil {
		return nil, translate(err)
	}
	return vc, nil
}

func (r *VerificationCodeRepository) ConsumeIfValid(
	ctx context.Context,
	code, userID int,
	check func(vc *models.VerificationCode) bool,
) (bool, error) {
	consumed := false
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		// FOR UPDATE сериализует параллельные попытки на одной строке:
		// вторая дождётся коммита первой и увидит used = true.
		vc, err := scanCode(tx.QueryRow(ctx, `
			SELECT `+codeColumns+`
			FROM auth_code_table
			WHERE code = $1 AND user_id = $2
			ORDER BY created_at DESC, id DESC
			LIMIT 1
			FOR UPDATE`, code, userID))
		if err != nil {
			if errors.Is(translate(err), ErrNotFound) {
				return errCodeRejected
			}
			return err
		}

		if !check(vc) {
			return errCodeRejected
		}

		tag, err := tx.Exec(ctx, `UPDATE auth_code_table SET used = TRUE WHERE id = $1 AND used = FALSE`, vc.ID)
		if err != nil {
			return err
		}
		consumed = tag.RowsAffected() == 1
		return nil
	})
	if errors.Is(err, errCodeRejected) {
		return false, nil
	}
	if err != nil {
		logger.Log.Error("Ошибка проверки кода (repo)", zap.Int("user_id", userID), zap.Error(err))
		return false, err
	}
	return consumed, nil
}

func (r *VerificationCodeRepository) DeleteUsedOrCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM auth_code_table WHERE used = TRUE OR created_at < $1`, cutoff)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}
