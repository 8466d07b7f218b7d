package middleware

import (
	"net/http"

	"authcore/internal/logger"
	"authcore/internal/reqctx"
	"authcore/internal/services"
	helpers "authcore/internal/utils/helpres"

	"go.uber.org/zap"
)

// Admission применяет AdmissionGate к каждому запросу и привязывает subject.
func Admission(gate *services.AdmissionGate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			ip, ok := reqctx.GetClientIP(r.Context())
			if !ok {
				ip = ClientIP(r)
			}

			adm, err := gate.Admit(r.Context(), services.AdmissionRequest{
				Path:          r.URL.Path,
				Authorization: r.Header.Get("Authorization"),
				ClientIP:      ip,
			})
			if err != nil {
				logger.WithCtx(r.Context()).Warn("Admission: запрос отклонён",
					zap.String("path", r.URL.Path), zap.Error(err))
				helpers.WriteError(w, err)
				return
			}

			ctx := r.Context()
			if !adm.Public {
				ctx = reqctx.WithUserID(ctx, adm.UserID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
