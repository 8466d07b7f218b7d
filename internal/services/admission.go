package services

import (
	"context"
	"path"
	"strconv"
	"strings"

	"authcore/internal/logger"

	"go.uber.org/zap"
)

// BearerValidator: проверки токена, которые нужны гейту.
type BearerValidator interface {
	Validate(token string) bool
	ExtractJti(token string) (string, error)
	ExtractSubject(token string) (string, error)
}

type AdmissionConfig struct {
	// APIPrefix: защищаемый префикс, например "/v1".
	APIPrefix string
	// PublicPaths пропускаются без токена (вместе с подпутями).
	PublicPaths []string
	// SecondFactorExempt требуют токен, но не подтверждённый код.
	SecondFactorExempt []string
}

func DefaultAdmissionConfig(prefix string) AdmissionConfig {
	prefix = "/" + strings.Trim(prefix, "/")
	return AdmissionConfig{
		APIPrefix: prefix,
		PublicPaths: []string{
			prefix + "/status",
			prefix + "/auth/signup",
			prefix + "/auth/login",
			prefix + "/auth/forgot_password",
			prefix + "/auth/reset_password",
		},
		SecondFactorExempt: []string{
			prefix + "/auth/verify_code",
			prefix + "/auth/resend_code",
			prefix + "/auth/logout",
		},
	}
}

type AdmissionRequest struct {
	Path          string
	Authorization string
	ClientIP      string
}

// Admission: результат допуска. Для публичных путей UserID == 0.
type Admission struct {
	Public  bool
	Subject string
	UserID  int
	Token   string
}

// AdmissionGate решает по каждому запросу: токен, отзыв, второй фактор.
type AdmissionGate struct {
	cfg         AdmissionConfig
	tokens      BearerValidator
	revocations *RevocationService
	codes       *VerificationService
}

func NewAdmissionGate(cfg AdmissionConfig, tokens BearerValidator, revocations *RevocationService, codes *VerificationService) *AdmissionGate {
	return &AdmissionGate{cfg: cfg, tokens: tokens, revocations: revocations, codes: codes}
}

func matchPath(p, base string) bool {
	return p == base || strings.HasPrefix(p, base+"/")
}

func matchAny(p string, bases []string) bool {
	for _, b := range bases {
		if matchPath(p, b) {
			return true
		}
	}
	return false
}

// BearerToken достаёт токен из заголовка Authorization.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (g *AdmissionGate) Admit(ctx context.Context, req AdmissionRequest) (*Admission, error) {
	p := path.Clean("/" + req.Path)
	log := logger.WithCtx(ctx)

	if !matchPath(p, g.cfg.APIPrefix) || matchAny(p, g.cfg.PublicPaths) {
		return &Admission{Public: true}, nil
	}

	token, ok := BearerToken(req.Authorization)
	if !ok || !g.tokens.Validate(token) {
		log.Debug("Нет или невалидный bearer-токен", zap.String("path", p))
		return nil, ErrUnauthorized
	}

	jti, err := g.tokens.ExtractJti(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	revoked, err := g.revocations.IsRevoked(ctx, jti)
	if err != nil {
		return nil, err
	}
	if revoked {
		log.Info("Отозванный токен", zap.String("jti", jti))
		return nil, ErrUnauthorized
	}

	subject, err := g.tokens.ExtractSubject(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	userID, err := strconv.Atoi(subject)
	if err != nil {
		return nil, ErrUnauthorized
	}

	adm := &Admission{Subject: subject, UserID: userID, Token: token}
	if matchAny(p, g.cfg.SecondFactorExempt) {
		return adm, nil
	}

	verified, err := g.codes.HasVerifiedLatest(ctx, userID, req.ClientIP)
	if err != nil {
		return nil, err
	}
	if !verified {
		log.Info("Второй фактор не подтверждён", zap.Int("user_id", userID), zap.String("path", p))
		return nil, ErrSecondFactorRequired
	}
	return adm, nil
}
