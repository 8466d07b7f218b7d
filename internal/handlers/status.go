package handlers

import (
	"context"
	"net/http"
	"time"

	"authcore/internal/logger"
	helpers "authcore/internal/utils/helpres"

	"go.uber.org/zap"
)

// Pinger: хранилище, доступность которого показывает /status.
type Pinger interface {
	Ping(ctx context.Context) error
}

type StatusHandler struct {
	db      Pinger
	timeout time.Duration
}

func NewStatusHandler(db Pinger, timeout time.Duration) *StatusHandler {
	return &StatusHandler{db: db, timeout: timeout}
}

type statusResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

// Status godoc
// @Summary Проверка живости сервиса и хранилища
// @Tags status
// @Produce json
// @Success 200 {object} statusResponse
// @Failure 503 {object} helpers.Response
// @Router /status [get]
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		logger.WithCtx(r.Context()).Error("Хранилище недоступно", zap.Error(err))
		helpers.Unavailable(w, helpers.RetryAfter, "storage unavailable")
		return
	}
	helpers.JSON(w, http.StatusOK, "", statusResponse{Status: "ok", Storage: "ok"})
}
