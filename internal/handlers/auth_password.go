package handlers

import (
	"net/http"
	"strings"

	"authcore/internal/logger"
	"authcore/internal/services"
	helpers "authcore/internal/utils/helpres"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const msgResetRequested = "If the account exists, a reset link has been sent."

type PasswordHandler struct {
	svc *services.PasswordService
}

func NewPasswordHandler(svc *services.PasswordService) *PasswordHandler {
	return &PasswordHandler{svc: svc}
}

type forgotReq struct {
	UsernameOrEmail string `json:"username_or_email" validate:"required"`
}

type resetReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Forgot godoc
// @Summary Запрос восстановления пароля
// @Description Отправляет письмо со ссылкой для сброса пароля. Ответ всегда одинаковый, даже если аккаунт не найден.
// @Tags password
// @Accept json
// @Produce json
// @Param input body forgotReq true "Логин или email"
// @Success 200 {object} helpers.Response
// @Failure 400 {object} helpers.Response
// @Router /auth/forgot_password [post]
func (h *PasswordHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	log := logger.WithCtx(r.Context())

	var req forgotReq
	if err := decodeJSON(w, r, &req); err != nil {
		log.Warn("Невалидный payload в Forgot")
		helpers.WriteError(w, err)
		return
	}

	// Не раскрываем, существует ли аккаунт, всегда возвращаем 200
	if err := h.svc.RequestReset(r.Context(), req.UsernameOrEmail); err != nil {
		log.Error("Сбой при запросе восстановления пароля", zap.String("identifier_masked", maskEmail(req.UsernameOrEmail)), zap.Error(err))
	}

	helpers.JSON(w, http.StatusOK, msgResetRequested, nil)
}

// Reset godoc
// @Summary Сброс пароля по токену
// @Description Устанавливает новый пароль по токену из письма. Username должен совпадать с владельцем токена.
// @Tags password
// @Accept json
// @Produce json
// @Param token path string true "Токен из письма"
// @Param input body resetReq true "Username и новый пароль"
// @Success 200 {object} helpers.Response
// @Failure 400 {object} helpers.Response
// @Failure 401 {object} helpers.Response
// @Router /auth/reset_password/{token} [post]
func (h *PasswordHandler) Reset(w http.ResponseWriter, r *http.Request) {
	log := logger.WithCtx(r.Context())

	token := strings.TrimSpace(mux.Vars(r)["token"])
	if token == "" {
		helpers.WriteError(w, services.ErrInvalidResetToken)
		return
	}

	var req resetReq
	if err := decodeJSON(w, r, &req); err != nil {
		log.Warn("Невалидный payload в Reset")
		helpers.WriteError(w, err)
		return
	}

	if err := h.svc.ResetPassword(r.Context(), token, req.Username, req.Password); err != nil {
		log.Warn("Не удалось сбросить пароль по токену", zap.Error(err))
		helpers.WriteError(w, err)
		return
	}

	log.Info("Пароль успешно сброшен")
	helpers.JSON(w, http.StatusOK, "Password has been reset.", nil)
}

// maskEmail оставляет первый символ и домен: a***@example.com.
func maskEmail(s string) string {
	local, domain, ok := strings.Cut(s, "@")
	if !ok {
		if len(s) <= 1 {
			return "***"
		}
		return s[:1] + "***"
	}
	if local == "" {
		return "***@" + domain
	}
	return local[:1] + "***@" + domain
}
