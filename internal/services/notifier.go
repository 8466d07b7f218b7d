package services

import (
	"context"
	"net/url"
	"strings"
	"time"

	"authcore/internal/logger"
	helpers "authcore/internal/utils/helpers"

	"go.uber.org/zap"
)

// Notifier: внешняя доставка кодов и ссылок. Ошибка доставки только логируется.
type Notifier interface {
	SendVerificationCode(ctx context.Context, to, code string) error
	SendPasswordReset(ctx context.Context, to, token string) error
}

type MailNotifier struct {
	mail     *EmailService
	baseURL  string
	codeTTL  time.Duration
	resetTTL time.Duration
}

func NewMailNotifier(mail *EmailService, baseURL string, codeTTL, resetTTL time.Duration) *MailNotifier {
	return &MailNotifier{
		mail:     mail,
		baseURL:  strings.TrimRight(baseURL, "/"),
		codeTTL:  codeTTL,
		resetTTL: resetTTL,
	}
}

func (n *MailNotifier) SendVerificationCode(ctx context.Context, to, code string) error {
	err := n.mail.Enqueue(EmailJob{
		To:      []string{to},
		Subject: "Код подтверждения входа",
		Body:    helpers.BuildVerificationCodeHTML(code, n.codeTTL),
		IsHTML:  true,
	})
	if err == nil {
		logger.WithCtx(ctx).Debug("Письмо с кодом поставлено в очередь")
	}
	return err
}

func (n *MailNotifier) ResetLink(token string) string {
	return n.baseURL + "/reset-password?token=" + url.QueryEscape(token)
}

func (n *MailNotifier) SendPasswordReset(ctx context.Context, to, token string) error {
	err := n.mail.Enqueue(EmailJob{
		To:      []string{to},
		Subject: "Восстановление пароля",
		Body:    helpers.BuildPasswordResetHTML(n.ResetLink(token), n.resetTTL),
		IsHTML:  true,
	})
	if err != nil {
		logger.WithCtx(ctx).Warn("Письмо для сброса пароля не поставлено в очередь", zap.Error(err))
	}
	return err
}
