package routes

import (
	"net/http"

	"authcore/internal/handlers"
	"authcore/internal/middleware"
	"authcore/internal/services"

	"github.com/gorilla/mux"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	Password *handlers.PasswordHandler
	Status   *handlers.StatusHandler
}

// InitRoutes регистрирует маршруты под prefix. Доступ решает Admission,
// поэтому деления на публичные и защищённые подроутеры здесь нет.
func InitRoutes(router *mux.Router, prefix string, h Handlers) {
	api := router.PathPrefix(prefix).Subrouter()

	api.HandleFunc("/status", h.Status.Status).Methods("GET")

	// --- Публичные маршруты ---
	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/signup", h.Auth.Register).Methods("POST")
	auth.HandleFunc("/login", h.Auth.Login).Methods("POST")
	auth.HandleFunc("/forgot_password", h.Password.Forgot).Methods("POST")
	auth.HandleFunc("/reset_password/{token}", h.Password.Reset).Methods("POST")

	// --- Токен без второго фактора ---
	auth.HandleFunc("/verify_code", h.Auth.VerifyCode).Methods("POST")
	auth.HandleFunc("/resend_code", h.Auth.ResendCode).Methods("POST")
	auth.HandleFunc("/logout", h.Auth.Logout).Methods("POST")

	// --- Токен и подтверждённый код ---
	auth.HandleFunc("/me", h.Auth.Me).Methods("GET")
}

// Wrap навешивает цепочку middleware на весь роутер, включая 404.
func Wrap(router http.Handler, gate *services.AdmissionGate) http.Handler {
	return middleware.RequestContext(
		middleware.Recoverer(
			middleware.Logging(
				middleware.Admission(gate)(router),
			),
		),
	)
}
