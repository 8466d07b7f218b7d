package handlers

import (
	"net/http"
	"strconv"

	"authcore/internal/logger"
	"authcore/internal/models"
	"authcore/internal/reqctx"
	"authcore/internal/services"
	helpers "authcore/internal/utils/helpres"

	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	UsernameOrEmail string `json:"username_or_email" validate:"required"`
	Password        string `json:"password"          validate:"required"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type verifyCodeRequest struct {
	Code string `json:"code" validate:"required,numeric,len=6"`
}

// Register godoc
// @Summary Регистрация нового пользователя
// @Tags auth
// @Accept json
// @Produce json
// @Param input body registerRequest true "Данные регистрации"
// @Success 201 {object} models.UserProfileResponse
// @Failure 400 {object} helpers.Response
// @Failure 409 {object} helpers.Response
// @Router /auth/signup [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.WithCtx(r.Context()).Warn("Невалидный payload в Register", zap.Error(err))
		helpers.WriteError(w, err)
		return
	}

	user, err := h.authService.RegisterUser(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		logger.WithCtx(r.Context()).Warn("Ошибка регистрации пользователя", zap.Error(err))
		helpers.WriteError(w, err)
		return
	}

	helpers.JSON(w, http.StatusCreated, "User registered", profile(user))
}

// Login godoc
// @Summary Вход по паролю, выдаёт токен и отправляет код
// @Tags auth
// @Accept json
// @Produce json
// @Param input body loginRequest true "Данные для входа"
// @Success 200 {object} loginResponse
// @Failure 400 {object} helpers.Response
// @Failure 401 {object} helpers.Response
// @Failure 429 {object} helpers.Response
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		helpers.WriteError(w, err)
		return
	}

	ip, _ := reqctx.GetClientIP(r.Context())
	res, err := h.authService.Login(r.Context(), req.UsernameOrEmail, req.Password, ip)
	if err != nil {
		helpers.WriteError(w, err)
		return
	}

	helpers.JSON(w, http.StatusOK, res.Message, loginResponse{Token: res.Token})
}

// VerifyCode godoc
// @Summary Подтверждение кода второго фактора
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param input body verifyCodeRequest true "Код из письма"
// @Success 200 {object} helpers.Response
// @Failure 401 {object} helpers.Response
// @Router /auth/verify_code [post]
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := reqctx.GetUserID(r.Context())
	if !ok {
		helpers.WriteError(w, services.ErrUnauthorized)
		return
	}

	var req verifyCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		helpers.WriteError(w, err)
		return
	}
	code, err := strconv.Atoi(req.Code)
	if err != nil {
		helpers.Fail(w, http.StatusOK, services.MsgCodeInvalid)
		return
	}

	ip, _ := reqctx.GetClientIP(r.Context())
	valid, err := h.authService.VerifyCode(r.Context(), userID, code, ip)
	if err != nil {
		helpers.WriteError(w, err)
		return
	}
	if !valid {
		helpers.Fail(w, http.StatusOK, services.MsgCodeInvalid)
		return
	}
	helpers.JSON(w, http.StatusOK, services.MsgCodeValid, nil)
}

// ResendCode godoc
// @Summary Повторная отправка кода
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} helpers.Response
// @Failure 403 {object} helpers.Response
// @Router /auth/resend_code [post]
func (h *AuthHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := reqctx.GetUserID(r.Context())
	if !ok {
		helpers.WriteError(w, services.ErrUnauthorized)
		return
	}

	ip, _ := reqctx.GetClientIP(r.Context())
	if err := h.authService.ResendCode(r.Context(), userID, ip); err != nil {
		helpers.WriteError(w, err)
		return
	}
	helpers.JSON(w, http.StatusOK, services.MsgCodeResent, nil)
}

// Logout godoc
// @Summary Выход: отзыв текущего токена
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} helpers.Response
// @Failure 401 {object} helpers.Response
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := services.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		helpers.WriteError(w, services.ErrUnauthorized)
		return
	}
	if err := h.authService.Logout(r.Context(), token); err != nil {
		helpers.WriteError(w, err)
		return
	}
	helpers.JSON(w, http.StatusOK, services.MsgLoggedOut, nil)
}

// Me godoc
// @Summary Текущий пользователь
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.UserProfileResponse
// @Failure 401 {object} helpers.Response
// @Failure 403 {object} helpers.Response
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := reqctx.GetUserID(r.Context())
	if !ok {
		helpers.WriteError(w, services.ErrUnauthorized)
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		helpers.WriteError(w, err)
		return
	}
	helpers.JSON(w, http.StatusOK, "", profile(user))
}

func profile(u *models.User) models.UserProfileResponse {
	return models.UserProfileResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}
}
