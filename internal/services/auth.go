package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"sync"
	"time"

	"authcore/internal/logger"
	"authcore/internal/models"
	"authcore/internal/repository"

	"go.uber.org/zap"
)

const (
	MsgCodePending = "Login success, waiting for code (use your last)"
	MsgCodeSent    = "Login success, waiting for code (sent another one)"
	MsgCodeValid   = "Code is valid"
	MsgCodeInvalid = "Code is not valid"
	MsgCodeResent  = "New code sent"
	MsgLoggedOut   = "Logged out"
)

// TokenIssuer: то, что AuthService нужно от менеджера токенов.
type TokenIssuer interface {
	IssueBearer(subject string) (string, error)
	ExtractJti(token string) (string, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
}

type LoginResult struct {
	Token    string
	Message  string
	CodeSent bool
	User     *models.User
}

// AuthService оркестрирует вход с кодом второго фактора.
type AuthService struct {
	users       repository.UserRepo
	codes       *VerificationService
	revocations *RevocationService
	tokens      TokenIssuer
	hasher      PasswordHasher
	notifier    Notifier
	timeout     time.Duration

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(
	users repository.UserRepo,
	codes *VerificationService,
	revocations *RevocationService,
	tokens TokenIssuer,
	hasher PasswordHasher,
	notifier Notifier,
	storageTimeout time.Duration,
) *AuthService {
	return &AuthService{
		users:       users,
		codes:       codes,
		revocations: revocations,
		tokens:      tokens,
		hasher:      hasher,
		notifier:    notifier,
		timeout:     storageTimeout,
	}
}

// RegisterUser создаёт пользователя с ролью FREE.
func (s *AuthService) RegisterUser(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	log := logger.WithCtx(ctx)
	log.Info("Регистрация пользователя (service)", zap.String("username", username))

	if username == "" || email == "" || password == "" {
		return nil, validationError("username, email and password are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, validationError("invalid email")
	}

	sctx, cancel := storageCtx(ctx, s.timeout)
	defer cancel()

	if taken, err := s.users.IsUsernameTaken(sctx, username); err != nil {
		return nil, storageError("check username", err)
	} else if taken {
		return nil, fmt.Errorf("%w: username already taken", ErrAlreadyExists)
	}
	if taken, err := s.users.IsEmailTaken(sctx, email); err != nil {
		return nil, storageError("check email", err)
	} else if taken {
		return nil, fmt.Errorf("%w: email already registered", ErrAlreadyExists)
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		log.Error("Ошибка хеширования пароля", zap.Error(err))
		return nil, err
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
		Role:         models.RoleFree,
	}
	// Гонка двух регистраций ловится уникальным индексом.
	if err := s.users.CreateUser(sctx, user); err != nil {
		log.Error("Ошибка создания пользователя", zap.Error(err))
		return nil, storageError("create user", err)
	}

	log.Info("Пользователь зарегистрирован (service)", zap.Int("user_id", user.ID))
	return user, nil
}

// Login проверяет пароль и решает, нужен ли новый код.
// Токен выдаётся сразу, но гейт не пустит дальше, пока код не подтверждён.
func (s *AuthService) Login(ctx context.Context, identifier, password, clientIP string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	log := logger.WithCtx(ctx)

	if identifier == "" || password == "" {
		return nil, validationError("username_or_email and password are required")
	}

	sctx, cancel := storageCtx(ctx, s.timeout)
	user, err := s.users.FindByUsernameOrEmail(sctx, identifier)
	cancel()
	if errors.Is(err, repository.ErrNotFound) {
		// Выравниваем время ответа с веткой неверного пароля.
		s.hasher.Verify(s.dummy(), password)
		log.Warn("Пользователь не найден (service)")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, storageError("find user", err)
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		log.Warn("Неверный пароль (service)", zap.Int("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}

	latest, err := s.codes.LatestFor(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	res := &LoginResult{User: user}
	if s.codes.IsPending(latest) {
		res.Message = MsgCodePending
	} else {
		vc, err := s.codes.GenerateLimited(ctx, user.ID, clientIP)
		if err != nil {
			return nil, err
		}
		s.notify(ctx, user, vc)
		res.Message = MsgCodeSent
		res.CodeSent = true
	}

	// Код уже сохранён отдельной операцией; при ошибке подписи он остаётся
	// и просто учитывается в лимите.
	res.Token, err = s.tokens.IssueBearer(strconv.Itoa(user.ID))
	if err != nil {
		log.Error("Ошибка выпуска токена", zap.Int("user_id", user.ID), zap.Error(err))
		return nil, err
	}

	log.Info("Вход выполнен, ожидается код (service)",
		zap.Int("user_id", user.ID), zap.Bool("code_sent", res.CodeSent))
	return res, nil
}

// VerifyCode гасит код субъекта токена. false без ошибки: код не подошёл.
func (s *AuthService) VerifyCode(ctx context.Context, userID, code int, clientIP string) (bool, error) {
	if _, err := s.requireUser(ctx, userID); err != nil {
		return false, err
	}
	return s.codes.VerifyAndConsume(ctx, code, userID, clientIP)
}

// ResendCode выпускает новый код в пределах того же лимита, что и Login.
func (s *AuthService) ResendCode(ctx context.Context, userID int, clientIP string) error {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return err
	}

	vc, err := s.codes.GenerateLimited(ctx, userID, clientIP)
	if errors.Is(err, ErrRateLimited) {
		return ErrResendLimited
	}
	if err != nil {
		return err
	}

	s.notify(ctx, user, vc)
	return nil
}

// Logout отзывает jti токена. Повторный logout того же токена не ошибка.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	jti, err := s.tokens.ExtractJti(token)
	if err != nil {
		return ErrUnauthorized
	}
	return s.revocations.Revoke(ctx, jti)
}

func (s *AuthService) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	sctx, cancel := storageCtx(ctx, s.timeout)
	defer cancel()

	user, err := s.users.GetUserByID(sctx, id)
	if err != nil {
		logger.WithCtx(ctx).Warn("Пользователь не найден по ID (service)", zap.Int("user_id", id), zap.Error(err))
		return nil, storageError("get user", err)
	}
	return user, nil
}

func (s *AuthService) requireUser(ctx context.Context, userID int) (*models.User, error) {
	user, err := s.GetUserByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUnauthorized
	}
	return user, err
}

func (s *AuthService) notify(ctx context.Context, user *models.User, vc *models.VerificationCode) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendVerificationCode(ctx, user.Email, vc.Formatted()); err != nil {
		logger.WithCtx(ctx).Warn("Код не отправлен", zap.Int("user_id", user.ID), zap.Error(err))
	}
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("timing-equalizer")
	})
	return s.dummyHash
}
