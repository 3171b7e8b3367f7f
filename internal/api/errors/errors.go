// Пакет errors — конструкторы стандартных ошибок HTTP API.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок API.
const (
	CodeValidationError       = "VALIDATION_ERROR"
	CodeNotFound              = "NOT_FOUND"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeForbidden             = "FORBIDDEN"
	CodeConflict              = "CONFLICT"
	CodeQuotaCapacityExceeded = "QUOTA_CAPACITY_EXCEEDED"
	CodeQuotaCountExceeded    = "QUOTA_COUNT_EXCEEDED"
	CodeTokenRequired         = "TOKEN_REQUIRED"
	CodeNotVerified           = "NOT_VERIFIED"
	CodeShareCodeExhausted    = "SHARE_CODE_EXHAUSTED"
	CodeDeliveryFailed        = "DELIVERY_FAILED"
	CodeInternalError         = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден (или недоступен вызывающему —
// намеренно не различается).
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409 конфликт (дублирующийся ресурс).
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// QuotaCapacityExceeded — 429 лимит полосы исчерпан.
func QuotaCapacityExceeded(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeQuotaCapacityExceeded, message)
}

// QuotaCountExceeded — 429 лимит количества скачиваний исчерпан.
func QuotaCountExceeded(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeQuotaCountExceeded, message)
}

// TokenRequired — 403 токен скачивания не установлен.
func TokenRequired(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeTokenRequired, message)
}

// NotVerified — 403 требуется верификация токена.
func NotVerified(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeNotVerified, message)
}

// ShareCodeExhausted — 500 выпуск кода исчерпал попытки.
func ShareCodeExhausted(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeShareCodeExhausted, message)
}

// DeliveryFailed — 502 доставка через bot-module не удалась.
func DeliveryFailed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeDeliveryFailed, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
