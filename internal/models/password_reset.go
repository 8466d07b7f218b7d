package models

import "time"

// ResetTokenLayout: формат expiration_date в forgot_password_table (локальное время).
const ResetTokenLayout = "2006-01-02 15:04:05"

type ResetToken struct {
	ID             int    `json:"id"`
	UserID         int    `json:"user_id"`
	Token          string `json:"-"`
	ExpirationDate string `json:"expiration_date"`
}

// NewResetToken считает срок жизни от момента выпуска.
func NewResetToken(userID int, token string, issuedAt time.Time, ttl time.Duration) *ResetToken {
	return &ResetToken{
		UserID:         userID,
		Token:          token,
		ExpirationDate: issuedAt.Add(ttl).In(time.Local).Format(ResetTokenLayout),
	}
}

// IsExpired: непарсящаяся дата считается истёкшей.
func (t *ResetToken) IsExpired(now time.Time) bool {
	if t.ExpirationDate == "" {
		return true
	}
	exp, err := time.ParseInLocation(ResetTokenLayout, t.ExpirationDate, time.Local)
	if err != nil {
		return true
	}
	return !now.Before(exp)
}
