package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"authcore/internal/models"
	"authcore/internal/repository"
	"authcore/internal/utils"

	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Мок-репозиторий пользователей
type mockUserRepo struct {
	mu     sync.Mutex
	users  map[int]*models.User
	nextID int
	err    error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[int]*models.User), nextID: 1}
}

func (m *mockUserRepo) FindByUsernameOrEmail(_ context.Context, identifier string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if u.Username == identifier {
			return u, nil
		}
	}
	for _, u := range m.users {
		if strings.EqualFold(u.Email, identifier) {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) GetUserByID(_ context.Context, id int) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (m *mockUserRepo) IsUsernameTaken(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) IsEmailTaken(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = m.nextID
	m.nextID++
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *mockUserRepo) setPasswordHash(_ context.Context, userID int, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

// Мок-репозиторий кодов. Предикаты повторяют SQL из repository/verification_code.go,
// ConsumeIfValid под мьютексом повторяет FOR UPDATE и условие used = FALSE.
// Меняя запросы там, меняйте и здесь.
type mockCodeRepo struct {
	mu     sync.Mutex
	codes  []*models.VerificationCode
	nextID int64
	err    error
}

func (m *mockCodeRepo) Create(ctx context.Context, vc *models.VerificationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if err := ctx.Err(); err != nil {
		return repository.ErrTimeout
	}
	m.nextID++
	vc.ID = m.nextID
	cp := *vc
	m.codes = append(m.codes, &cp)
	return nil
}

func (m *mockCodeRepo) CountSince(_ context.Context, userID int, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	n := 0
	for _, c := range m.codes {
		// created_at >= $2, как в SQL
		if c.UserID == userID && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *mockCodeRepo) latestLocked(match func(*models.VerificationCode) bool) *models.VerificationCode {
	var found []*models.VerificationCode
	for _, c := range m.codes {
		if match(c) {
			found = append(found, c)
		}
	}
	if len(found) == 0 {
		return nil
	}
	sort.Slice(found, func(i, j int) bool {
		if !found[i].CreatedAt.Equal(found[j].CreatedAt) {
			return found[i].CreatedAt.After(found[j].CreatedAt)
		}
		return found[i].ID > found[j].ID
	})
	return found[0]
}

func (m *mockCodeRepo) GetLatestByUserID(_ context.Context, userID int) (*models.VerificationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c := m.latestLocked(func(vc *models.VerificationCode) bool { return vc.UserID == userID })
	if c == nil {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCodeRepo) ConsumeIfValid(_ context.Context, code, userID int, check func(*models.VerificationCode) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	c := m.latestLocked(func(vc *models.VerificationCode) bool { return vc.Code == code && vc.UserID == userID })
	if c == nil {
		return false, nil
	}
	cp := *c
	if !check(&cp) || c.Used {
		return false, nil
	}
	c.Used = true
	return true, nil
}

func (m *mockCodeRepo) DeleteUsedOrCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.codes[:0]
	var n int64
	for _, c := range m.codes {
		if c.Used || c.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	m.codes = kept
	return n, nil
}

// codeFor достаёт последний код пользователя (как будто прочитан из письма).
func (m *mockCodeRepo) codeFor(userID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.latestLocked(func(vc *models.VerificationCode) bool { return vc.UserID == userID })
	if c == nil {
		return -1
	}
	return c.Code
}

type mockRevocationRepo struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	err     error
}

func newMockRevocationRepo() *mockRevocationRepo {
	return &mockRevocationRepo{revoked: make(map[string]time.Time)}
}

func (m *mockRevocationRepo) Revoke(_ context.Context, jti string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.revoked[jti]; !ok {
		m.revoked[jti] = revokedAt
	}
	return nil
}

func (m *mockRevocationRepo) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.revoked[jti]
	return ok, nil
}

func (m *mockRevocationRepo) DeleteRevokedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for jti, at := range m.revoked {
		if at.Before(cutoff) {
			delete(m.revoked, jti)
			n++
		}
	}
	return n, nil
}

type mockResetRepo struct {
	mu     sync.Mutex
	tokens map[int]*models.ResetToken
	users  *mockUserRepo
	nextID int
}

func newMockResetRepo(users *mockUserRepo) *mockResetRepo {
	return &mockResetRepo{tokens: make(map[int]*models.ResetToken), users: users}
}

// Replace под мьютексом повторяет транзакцию с блокировкой строки пользователя.
func (m *mockResetRepo) Replace(_ context.Context, t *models.ResetToken) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var replaced int64
	for id, old := range m.tokens {
		if old.UserID == t.UserID {
			delete(m.tokens, id)
			replaced++
		}
	}
	m.nextID++
	t.ID = m.nextID
	cp := *t
	m.tokens[t.ID] = &cp
	return replaced, nil
}

func (m *mockResetRepo) GetByToken(_ context.Context, token string) (*models.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.Token == token {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockResetRepo) GetByID(_ context.Context, id int) (*models.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// ListByUserID: только для проверок в тестах.
func (m *mockResetRepo) ListByUserID(_ context.Context, userID int) ([]*models.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ResetToken
	for _, t := range m.tokens {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockResetRepo) ConsumeAndSetPassword(ctx context.Context, id, userID int, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[id]; !ok {
		return repository.ErrNotFound
	}
	if err := m.users.setPasswordHash(ctx, userID, passwordHash); err != nil {
		return err
	}
	delete(m.tokens, id)
	return nil
}

func (m *mockResetRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if t.IsExpired(now) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

type sentMessage struct {
	To    string
	Value string
}

type mockNotifier struct {
	mu     sync.Mutex
	codes  []sentMessage
	resets []sentMessage
	err    error
}

func (n *mockNotifier) SendVerificationCode(_ context.Context, to, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, sentMessage{To: to, Value: code})
	return n.err
}

func (n *mockNotifier) SendPasswordReset(_ context.Context, to, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, sentMessage{To: to, Value: token})
	return n.err
}

// testEnv собирает сервисы поверх моков с общими часами.
type testEnv struct {
	clock       *fakeClock
	users       *mockUserRepo
	codeRepo    *mockCodeRepo
	revokeRepo  *mockRevocationRepo
	resetRepo   *mockResetRepo
	notifier    *mockNotifier
	tokens      *utils.TokenManager
	hasher      *utils.BcryptHasher
	codes       *VerificationService
	revocations *RevocationService
	auth        *AuthService
	passwords   *PasswordService
	gate        *AdmissionGate
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	e := &testEnv{
		clock:      newFakeClock(),
		users:      newMockUserRepo(),
		codeRepo:   &mockCodeRepo{},
		revokeRepo: newMockRevocationRepo(),
		notifier:   &mockNotifier{},
		hasher:     utils.NewBcryptHasher(bcrypt.MinCost),
	}
	e.resetRepo = newMockResetRepo(e.users)
	e.tokens = utils.NewTokenManager(testSecret, 24*time.Hour, time.Hour).WithClock(e.clock.Now)

	e.codes = NewVerificationService(e.codeRepo, DefaultVerificationConfig())
	e.codes.now = e.clock.Now

	e.revocations = NewRevocationService(e.revokeRepo, time.Second)
	e.revocations.now = e.clock.Now

	e.auth = NewAuthService(e.users, e.codes, e.revocations, e.tokens, e.hasher, e.notifier, time.Second)

	e.passwords = NewPasswordService(e.users, e.resetRepo, e.tokens, e.hasher, e.notifier, time.Hour, time.Second)
	e.passwords.now = e.clock.Now

	e.gate = NewAdmissionGate(DefaultAdmissionConfig("/v1"), e.tokens, e.revocations, e.codes)
	return e
}

func (e *testEnv) addUser(t *testing.T, username, email, password string) *models.User {
	t.Helper()
	hash, err := e.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &models.User{Username: username, Email: email, PasswordHash: hash, Role: models.RoleFree}
	if err := e.users.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// addUserWithID заводит пользователя с конкретным id.
func (e *testEnv) addUserWithID(id int, username string) {
	e.users.mu.Lock()
	defer e.users.mu.Unlock()
	e.users.users[id] = &models.User{ID: id, Username: username, Email: username + "@example.com", Role: models.RoleFree}
}
