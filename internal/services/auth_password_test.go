package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestToken(t *testing.T, e *testEnv, identifier string) string {
	t.Helper()
	require.NoError(t, e.passwords.RequestReset(context.Background(), identifier))
	require.NotEmpty(t, e.notifier.resets)
	return e.notifier.resets[len(e.notifier.resets)-1].Value
}

func TestRequestReset_UnknownUserIsSilent(t *testing.T) {
	e := newTestEnv(t)

	err := e.passwords.RequestReset(context.Background(), "ghost@example.com")
	assert.NoError(t, err)
	assert.Empty(t, e.notifier.resets)
	assert.Empty(t, e.resetRepo.tokens)
}

func TestRequestReset_EmptyIdentifier(t *testing.T) {
	e := newTestEnv(t)

	assert.ErrorIs(t, e.passwords.RequestReset(context.Background(), "  "), ErrValidation)
}

func TestRequestReset_StoresScopedToken(t *testing.T) {
	e := newTestEnv(t)
	u := e.addUser(t, "alice", "alice@example.com", "password1")

	token := requestToken(t, e, "alice@example.com")

	subject, err := e.tokens.ScopedSubject(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)
	assert.False(t, e.tokens.Validate(token), "reset token must not work as bearer")

	recs, err := e.resetRepo.ListByUserID(context.Background(), u.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, e.clock.Now().Add(time.Hour).Format("2006-01-02 15:04:05"), recs[0].ExpirationDate)

	got, err := e.passwords.ResetToken(context.Background(), recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, token, got.Token)
}

func TestRequestReset_ReplacesPreviousToken(t *testing.T) {
	e := newTestEnv(t)
	u := e.addUser(t, "alice", "alice@example.com", "password1")

	first := requestToken(t, e, "alice")
	e.clock.Advance(time.Second)
	second := requestToken(t, e, "alice")
	require.NotEqual(t, first, second)

	recs, err := e.resetRepo.ListByUserID(context.Background(), u.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, second, recs[0].Token)

	err = e.passwords.ResetPassword(context.Background(), first, "alice", "new-password")
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestResetPassword_Success(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	u := e.addUser(t, "alice", "alice@example.com", "password1")

	token := requestToken(t, e, "alice")

	require.NoError(t, e.passwords.ResetPassword(ctx, token, "alice", "brand-new-pass"))

	stored, err := e.users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, e.hasher.Verify(stored.PasswordHash, "brand-new-pass"))
	assert.Empty(t, e.resetRepo.tokens)

	// Токен одноразовый.
	err = e.passwords.ResetPassword(ctx, token, "alice", "another-pass")
	assert.ErrorIs(t, err, ErrInvalidResetToken)

	_, err = e.auth.Login(ctx, "alice", "brand-new-pass", "1.2.3.4")
	assert.NoError(t, err)
}

func TestResetPassword_WrongUsername(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "alice", "alice@example.com", "password1")
	e.addUser(t, "mallory", "mallory@example.com", "password1")

	token := requestToken(t, e, "alice")

	err := e.passwords.ResetPassword(context.Background(), token, "mallory", "brand-new-pass")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Len(t, e.resetRepo.tokens, 1)
}

func TestResetPassword_Expired(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "alice", "alice@example.com", "password1")

	token := requestToken(t, e, "alice")
	e.clock.Advance(time.Hour)

	err := e.passwords.ResetPassword(context.Background(), token, "alice", "brand-new-pass")
	assert.ErrorIs(t, err, ErrInvalidResetToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestResetPassword_Validation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	assert.ErrorIs(t, e.passwords.ResetPassword(ctx, "tok", "alice", "short"), ErrValidation)
	assert.ErrorIs(t, e.passwords.ResetPassword(ctx, "tok", "", "long-enough"), ErrValidation)
	assert.ErrorIs(t, e.passwords.ResetPassword(ctx, "unknown", "alice", "long-enough"), ErrInvalidResetToken)
}

func TestResetPassword_ConcurrentAtMostOnce(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "alice", "alice@example.com", "password1")
	token := requestToken(t, e, "alice")

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.passwords.ResetPassword(context.Background(), token, "alice", "brand-new-pass"); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
}

func TestRequestReset_ConcurrentLeavesOneToken(t *testing.T) {
	e := newTestEnv(t)
	u := e.addUser(t, "alice", "alice@example.com", "password1")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.passwords.RequestReset(context.Background(), "alice"))
		}()
	}
	wg.Wait()

	recs, err := e.resetRepo.ListByUserID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Len(t, e.notifier.resets, 16)
}

func TestPurgeExpiredResetTokens(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "alice", "alice@example.com", "password1")
	requestToken(t, e, "alice")

	n, err := e.passwords.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	e.clock.Advance(time.Hour + time.Second)
	n, err = e.passwords.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
