package helpers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Response: единый конверт ответа: {success, message, data}.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func write(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(resp)
	if err != nil {
		return
	}
}

func JSON(w http.ResponseWriter, status int, message string, data interface{}) {
	write(w, status, Response{Success: true, Message: message, Data: data})
}

// Fail: ответ без ошибки транспорта, но с success=false (например, неверный код).
func Fail(w http.ResponseWriter, status int, message string) {
	write(w, status, Response{Success: false, Message: message})
}

func Error(w http.ResponseWriter, status int, errMsg string) {
	write(w, status, Response{Success: false, Message: errMsg})
}

// Unavailable: 503 с подсказкой клиенту, когда повторить.
func Unavailable(w http.ResponseWriter, retryAfter time.Duration, errMsg string) {
	secs := int(retryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	Error(w, http.StatusServiceUnavailable, errMsg)
}
