package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrMalformedToken: любая проблема с токеном: подпись, структура, срок, тип.
// Причину наружу не различаем.
var ErrMalformedToken = errors.New("malformed token")

const (
	TokenTypeAccess        = "access"
	TokenTypePasswordReset = "password_reset"
)

type Claims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenManager выпускает и проверяет HS256-токены одним ключом на процесс.
// Состояния нет, безопасен для конкурентного использования.
type TokenManager struct {
	secret    []byte
	bearerTTL time.Duration
	scopedTTL time.Duration
	now       func() time.Time
}

func NewTokenManager(secret string, bearerTTL, scopedTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:    []byte(secret),
		bearerTTL: bearerTTL,
		scopedTTL: scopedTTL,
		now:       time.Now,
	}
}

// WithClock подменяет часы (тесты).
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	cp := *m
	cp.now = now
	return &cp
}

// IssueBearer: access-токен со случайным jti, по нему работает отзыв.
func (m *TokenManager) IssueBearer(subject string) (string, error) {
	now := m.now()
	claims := Claims{
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.bearerTTL)),
		},
	}
	return m.sign(claims)
}

// IssueScoped: короткий токен для сброса пароля. jti нет: такой токен
// гасится удалением записи в forgot_password_table, а не реестром отзыва.
func (m *TokenManager) IssueScoped(subject string) (string, error) {
	now := m.now()
	claims := Claims{
		TokenType: TokenTypePasswordReset,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.scopedTTL)),
		},
	}
	return m.sign(claims)
}

func (m *TokenManager) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate проверяет только подпись, срок и тип access. Отзыв на совести вызывающего.
func (m *TokenManager) Validate(token string) bool {
	_, err := m.parse(token, TokenTypeAccess)
	return err == nil
}

func (m *TokenManager) ExtractSubject(token string) (string, error) {
	claims, err := m.parse(token, TokenTypeAccess)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", ErrMalformedToken
	}
	return claims.Subject, nil
}

func (m *TokenManager) ExtractJti(token string) (string, error) {
	claims, err := m.parse(token, TokenTypeAccess)
	if err != nil {
		return "", err
	}
	if claims.ID == "" {
		return "", ErrMalformedToken
	}
	return claims.ID, nil
}

// ScopedSubject возвращает subject токена сброса пароля.
func (m *TokenManager) ScopedSubject(token string) (string, error) {
	claims, err := m.parse(token, TokenTypePasswordReset)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", ErrMalformedToken
	}
	return claims.Subject, nil
}

func (m *TokenManager) parse(tokenString, tokenType string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMalformedToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrMalformedToken
	}
	if claims.TokenType != tokenType {
		return nil, ErrMalformedToken
	}
	return claims, nil
}
