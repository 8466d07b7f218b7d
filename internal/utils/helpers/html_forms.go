package helpers

import (
	"fmt"
	"html"
	"time"
)

// BuildSimpleHTML: общая обёртка для всех писем сервиса.
func BuildSimpleHTML(title, body string) string {
	return fmt.Sprintf(`
<html>
  <body style="font-family:Arial,sans-serif; background:#f9f9f9;">
    <table width="100%%" cellpadding="0" cellspacing="0" bgcolor="#f9f9f9">
      <tr>
        <td align="center" style="padding:32px 0;">
          <table width="500" bgcolor="#fff" cellpadding="24" cellspacing="0" style="border-radius:8px; box-shadow:0 1px 6px #eee;">
            <tr>
              <td>
                <h2 style="color:#2d74da; margin-top:0;">%s</h2>
                <div style="font-size:16px; color:#222;">%s</div>
                <hr style="margin:32px 0 16px 0; border:0; border-top:1px solid #eee;">
                <div style="font-size:12px; color:#999;">Письмо сгенерировано автоматически. Не отвечайте на него.</div>
              </td>
            </tr>
          </table>
        </td>
      </tr>
    </table>
  </body>
</html>
`, html.EscapeString(title), body)
}

// BuildVerificationCodeHTML: письмо с кодом второго фактора.
func BuildVerificationCodeHTML(code string, ttl time.Duration) string {
	body := fmt.Sprintf(`
      <p style="margin:0 0 16px 0;">Ваш код подтверждения входа:</p>
      <p style="font-size:32px;letter-spacing:8px;font-weight:bold;color:#222;margin:0 0 16px 0;">%s</p>
      <p style="font-size:14px;color:#555;">Код действует %d мин. и должен быть введён с того же устройства, с которого выполнялся вход.</p>
      <p style="font-size:12px;color:#999;margin-top:16px;">Если вы не входили в аккаунт, смените пароль.</p>
    `, html.EscapeString(code), int(ttl.Minutes()))
	return BuildSimpleHTML("Код подтверждения", body)
}

// BuildPasswordResetHTML: письмо со ссылкой на сброс пароля.
func BuildPasswordResetHTML(resetLink string, ttl time.Duration) string {
	link := html.EscapeString(resetLink)
	body := fmt.Sprintf(`
      <p style="margin:0 0 16px 0;">Вы запросили сброс пароля. Нажмите кнопку ниже, чтобы задать новый пароль:</p>
      <p>
        <a href="%s" style="display:inline-block;padding:12px 24px;background:#2d74da;color:#fff;text-decoration:none;border-radius:5px;font-weight:bold;">
          Сбросить пароль
        </a>
      </p>
      <p style="font-size:14px;color:#555;">Ссылка действует %d мин.</p>
      <p style="font-size:12px;color:#999;margin-top:16px;">Если кнопка не работает, скопируйте ссылку: %s</p>
    `, link, int(ttl.Minutes()), link)
	return BuildSimpleHTML("Восстановление пароля", body)
}
