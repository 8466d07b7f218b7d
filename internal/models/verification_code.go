package models

import (
	"fmt"
	"time"
)

// VerificationCode: одноразовый код второго фактора. Привязан к пользователю
// и к IP, с которого его запросили. После used=true строка больше не меняется.
type VerificationCode struct {
	ID             int64
	Code           int
	UserID         int
	CreatedAt      time.Time
	ExpirationDate time.Time
	Used           bool
	RequestIP      string
}

// Formatted: код в виде 6 цифр с ведущими нулями, как его видит пользователь.
func (v *VerificationCode) Formatted() string {
	return FormatCode(v.Code)
}

// ActiveAt: код действует строго до created_at + ttl.
func (v *VerificationCode) ActiveAt(now time.Time, ttl time.Duration) bool {
	return now.Before(v.CreatedAt.Add(ttl))
}

func FormatCode(code int) string {
	return fmt.Sprintf("%06d", code)
}
