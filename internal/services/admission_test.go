package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bearer(token string) string { return "Bearer " + token }

func TestAdmit_PublicPaths(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	for _, p := range []string{
		"/", "/healthz", "/v2/anything",
		"/v1/status",
		"/v1/auth/signup", "/v1/auth/login", "/v1/auth/forgot_password",
		"/v1/auth/reset_password/some-token",
	} {
		adm, err := e.gate.Admit(ctx, AdmissionRequest{Path: p})
		require.NoError(t, err, p)
		assert.True(t, adm.Public, p)
	}
}

func TestAdmit_RequiresBearer(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	for _, auth := range []string{"", "Bearer", "Bearer ", "Basic abc", "Bearer not-a-jwt"} {
		_, err := e.gate.Admit(ctx, AdmissionRequest{Path: "/v1/auth/me", Authorization: auth})
		assert.ErrorIs(t, err, ErrUnauthorized, auth)
	}
}

func TestAdmit_PathIsCleaned(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.gate.Admit(context.Background(), AdmissionRequest{Path: "/v1/auth/login/../me"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAdmit_SecondFactor(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addUserWithID(5, "five")

	token, err := e.tokens.IssueBearer("5")
	require.NoError(t, err)

	// Нет кода вообще.
	_, err = e.gate.Admit(ctx, AdmissionRequest{Path: "/v1/auth/me", Authorization: bearer(token), ClientIP: "1.2.3.4"})
	assert.ErrorIs(t, err, ErrSecondFactorRequired)
	assert.ErrorIs(t, err, ErrForbidden)

	// Проверка и повторная отправка кода пропускаются без второго фактора.
	for _, p := range []string{"/v1/auth/verify_code", "/v1/auth/resend_code", "/v1/auth/logout"} {
		adm, err := e.gate.Admit(ctx, AdmissionRequest{Path: p, Authorization: bearer(token), ClientIP: "1.2.3.4"})
		require.NoError(t, err, p)
		assert.Equal(t, 5, adm.UserID)
		assert.Equal(t, "5", adm.Subject)
	}

	vc, err := e.codes.Generate(ctx, 5, "1.2.3.4")
	require.NoError(t, err)
	ok, err := e.auth.VerifyCode(ctx, 5, vc.Code, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, ok)

	adm, err := e.gate.Admit(ctx, AdmissionRequest{Path: "/v1/auth/me", Authorization: bearer(token), ClientIP: "1.2.3.4"})
	require.NoError(t, err)
	assert.False(t, adm.Public)
	assert.Equal(t, 5, adm.UserID)

	// Другой IP, второй фактор не засчитан.
	_, err = e.gate.Admit(ctx, AdmissionRequest{Path: "/v1/auth/me", Authorization: bearer(token), ClientIP: "9.9.9.9"})
	assert.ErrorIs(t, err, ErrSecondFactorRequired)

	// Код истёк.
	e.clock.Advance(15 * time.Minute)
	_, err = e.gate.Admit(ctx, AdmissionRequest{Path: "/v1/auth/me", Authorization: bearer(token), ClientIP: "1.2.3.4"})
	assert.ErrorIs(t, err, ErrSecondFactorRequired)
}

func TestAdmit_RevokedTokenRejected(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addUserWithID(5, "five")

	// (f)
	token, err := e.tokens.IssueBearer("5")
	require.NoError(t, err)
	require.True(t, e.tokens.Validate(token))

	_, err = e.gate.Admit(ctx, AdmissionRequest{Path: "/v1/auth/verify_code", Authorization: bearer(token)})
	require.NoError(t, err)

	jti, err := e.tokens.ExtractJti(token)
	require.NoError(t, err)
	require.NoError(t, e.revocations.Revoke(ctx, jti))

	assert.True(t, e.tokens.Validate(token))
	_, err = e.gate.Admit(ctx, AdmissionRequest{Path: "/v1/auth/verify_code", Authorization: bearer(token)})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAdmit_ExpiredTokenRejected(t *testing.T) {
	e := newTestEnv(t)

	token, err := e.tokens.IssueBearer("5")
	require.NoError(t, err)

	e.clock.Advance(24 * time.Hour)
	_, err = e.gate.Admit(context.Background(), AdmissionRequest{Path: "/v1/auth/logout", Authorization: bearer(token)})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAdmit_ScopedTokenIsNotBearer(t *testing.T) {
	e := newTestEnv(t)

	scoped, err := e.tokens.IssueScoped("five")
	require.NoError(t, err)

	_, err = e.gate.Admit(context.Background(), AdmissionRequest{Path: "/v1/auth/logout", Authorization: bearer(scoped)})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAdmit_RevocationStoreFailureFailsClosed(t *testing.T) {
	e := newTestEnv(t)
	e.revokeRepo.err = errors.New("redis down")

	token, err := e.tokens.IssueBearer("5")
	require.NoError(t, err)

	_, err = e.gate.Admit(context.Background(), AdmissionRequest{Path: "/v1/auth/logout", Authorization: bearer(token)})
	assert.ErrorIs(t, err, ErrStorage)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", tok)

	_, ok = BearerToken("Token abc")
	assert.False(t, ok)
}
