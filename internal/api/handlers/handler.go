// handler.go — общая обвязка HTTP-обработчиков Vault Module:
// структура Handler с сервисами, JSON-хелперы, DTO записей и квот,
// разбор параметров и вычисление привилегий действующего пользователя.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/tgvault/vault-module/internal/api/errors"
	"github.com/bigkaa/tgvault/vault-module/internal/api/middleware"
	"github.com/bigkaa/tgvault/vault-module/internal/config"
	"github.com/bigkaa/tgvault/vault-module/internal/domain/model"
	"github.com/bigkaa/tgvault/vault-module/internal/service"
)

// Handler — обработчики API Vault Module.
// Делегирует бизнес-логику в сервисный слой.
type Handler struct {
	cfg      *config.Config
	upload   *service.UploadService
	files    *service.FileService
	download *service.DownloadService
	shares   *service.ShareCodeService
	quota    *service.QuotaService
	tokens   *service.TokenService
	stats    *service.StatsService
	logger   *slog.Logger
}

// New создаёт обработчик API.
func New(
	cfg *config.Config,
	upload *service.UploadService,
	files *service.FileService,
	download *service.DownloadService,
	shares *service.ShareCodeService,
	quota *service.QuotaService,
	tokens *service.TokenService,
	stats *service.StatsService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		cfg:      cfg,
		upload:   upload,
		files:    files,
		download: download,
		shares:   shares,
		quota:    quota,
		tokens:   tokens,
		stats:    stats,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// --- DTO ---

// fileResponse — представление записи файла в API.
type fileResponse struct {
	ID               string     `json:"id"`
	OwnerID          int64      `json:"owner_id"`
	OwnerUsername    *string    `json:"owner_username,omitempty"`
	OriginalFilename string     `json:"original_filename"`
	DisplayName      *string    `json:"display_name,omitempty"`
	EffectiveName    string     `json:"effective_name"`
	FileKind         string     `json:"file_kind"`
	MimeType         *string    `json:"mime_type,omitempty"`
	FileSize         int64      `json:"file_size"`
	ChannelID        int64      `json:"channel_id"`
	MessageID        int64      `json:"message_id"`
	PlatformFileID   string     `json:"platform_file_id"`
	Caption          *string    `json:"caption,omitempty"`
	Tags             []string   `json:"tags"`
	ShareCode        *string    `json:"share_code,omitempty"`
	ShareCodeUses    int64      `json:"share_code_uses"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	UploadedAt       time.Time  `json:"uploaded_at"`
}

// toFileResponse преобразует доменную запись в DTO.
func toFileResponse(rec *model.FileRecord) fileResponse {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	return fileResponse{
		ID:               rec.ID,
		OwnerID:          rec.OwnerID,
		OwnerUsername:    rec.OwnerUsername,
		OriginalFilename: rec.OriginalFilename,
		DisplayName:      rec.DisplayName,
		EffectiveName:    rec.EffectiveName(),
		FileKind:         rec.FileKind,
		MimeType:         rec.MimeType,
		FileSize:         rec.FileSize,
		ChannelID:        rec.ChannelID,
		MessageID:        rec.MessageID,
		PlatformFileID:   rec.PlatformFileID,
		Caption:          rec.Caption,
		Tags:             tags,
		ShareCode:        rec.ShareCode,
		ShareCodeUses:    rec.ShareCodeUses,
		ExpiresAt:        rec.ExpiresAt,
		UploadedAt:       rec.UploadedAt,
	}
}

// toFileResponses преобразует срез записей.
func toFileResponses(recs []*model.FileRecord) []fileResponse {
	out := make([]fileResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toFileResponse(rec))
	}
	return out
}

// quotaResponse — представление квоты в API.
// Остатки при безлимите (лимит 0) отдаются как null.
type quotaResponse struct {
	OwnerID            int64      `json:"owner_id"`
	BytesUsed          int64      `json:"bytes_used"`
	BytesLimit         int64      `json:"bytes_limit"`
	RemainingBytes     *int64     `json:"remaining_bytes"`
	DownloadsUsed      int64      `json:"downloads_used"`
	DownloadsLimit     int64      `json:"downloads_limit"`
	RemainingDownloads *int64     `json:"remaining_downloads"`
	ResetTime          *time.Time `json:"reset_time,omitempty"`
	TokenSet           bool       `json:"token_set"`
	Verified           bool       `json:"verified"`
	VerifiedUntil      *time.Time `json:"verified_until,omitempty"`
}

// toQuotaResponse преобразует доменную квоту в DTO.
func toQuotaResponse(q *model.UserQuota) quotaResponse {
	resp := quotaResponse{
		OwnerID:        q.OwnerID,
		BytesUsed:      q.BytesUsed,
		BytesLimit:     q.BytesLimit,
		DownloadsUsed:  q.DownloadsUsed,
		DownloadsLimit: q.DownloadsLimit,
		ResetTime:      q.ResetTime,
		TokenSet:       q.Token != nil,
		Verified:       q.IsVerified(time.Now().UTC()),
		VerifiedUntil:  q.VerifiedUntil,
	}
	if q.BytesLimit > 0 {
		r := int64(q.RemainingBytes())
		resp.RemainingBytes = &r
	}
	if q.DownloadsLimit > 0 {
		r := int64(q.RemainingDownloads())
		resp.RemainingDownloads = &r
	}
	return resp
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса в указанную структуру.
// Возвращает false и пишет 400, если тело невалидно.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.ValidationError(w, "Невалидное JSON-тело запроса: "+err.Error())
		return false
	}
	return true
}

// parseRecordID валидирует UUID записи из URL.
// Возвращает false и пишет 400 при невалидном UUID.
func parseRecordID(w http.ResponseWriter, raw string) (string, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		apierrors.ValidationError(w, "Невалидный идентификатор записи: ожидается UUID")
		return "", false
	}
	return id.String(), true
}

// parseOwnerID разбирает owner_id из строки.
// Возвращает false и пишет 400 при невалидном значении.
func parseOwnerID(w http.ResponseWriter, raw string) (int64, bool) {
	if raw == "" {
		apierrors.ValidationError(w, "Параметр owner_id обязателен")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		apierrors.ValidationError(w, "Невалидный owner_id: ожидается положительное целое")
		return 0, false
	}
	return id, true
}

// optionalString возвращает nil для пустой строки.
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// parsePage разбирает номер страницы из query (по умолчанию 1).
func parsePage(raw string) int {
	if raw == "" {
		return 1
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// isPrivileged вычисляет привилегию действующего пользователя:
// владелец входит в список админов конфигурации ИЛИ JWT несёт
// админскую роль.
func (h *Handler) isPrivileged(r *http.Request, ownerID int64) bool {
	if h.cfg.IsAdmin(ownerID) {
		return true
	}
	claims := middleware.ClaimsFromContext(r.Context())
	return claims != nil && claims.IsAdmin()
}

// requireAdmin проверяет, что запрос выполняется с админскими правами
// для указанного действующего владельца. Пишет 403 при отказе.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request, ownerID int64) bool {
	if h.isPrivileged(r, ownerID) {
		return true
	}
	apierrors.Forbidden(w, "Недостаточно прав: требуются права администратора")
	return false
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrCapacityExceeded):
		apierrors.QuotaCapacityExceeded(w, err.Error())
	case errors.Is(err, service.ErrCountExceeded):
		apierrors.QuotaCountExceeded(w, err.Error())
	case errors.Is(err, service.ErrNoToken):
		apierrors.TokenRequired(w, err.Error())
	case errors.Is(err, service.ErrNotVerified):
		apierrors.NotVerified(w, err.Error())
	case errors.Is(err, service.ErrCollisionExhausted):
		apierrors.ShareCodeExhausted(w, err.Error())
	case errors.Is(err, service.ErrDeliveryFailed):
		apierrors.DeliveryFailed(w, err.Error())
	default:
		h.logger.Error("Внутренняя ошибка обработки запроса",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
