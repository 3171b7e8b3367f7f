// sharecodes.go — HTTP handlers кодов общего доступа.
// Выпуск кода владельцем, просмотр по коду, доставка по коду.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/tgvault/vault-module/internal/api/errors"
)

// issueShareCodeRequest — тело POST /api/v1/files/{id}/share-code.
type issueShareCodeRequest struct {
	OwnerID int64 `json:"owner_id"`
}

// issueShareCodeResponse — ответ выпуска кода.
type issueShareCodeResponse struct {
	ShareCode string `json:"share_code"`
}

// IssueShareCode обрабатывает POST /api/v1/files/{id}/share-code.
// Идемпотентно: повторный вызов возвращает уже выпущенный код.
func (h *Handler) IssueShareCode(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRecordID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req issueShareCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OwnerID <= 0 {
		apierrors.ValidationError(w, "Поле owner_id обязательно")
		return
	}

	code, err := h.shares.IssueOrGet(r.Context(), id, req.OwnerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, issueShareCodeResponse{ShareCode: code})
}

// LookupShareCode обрабатывает GET /api/v1/share-codes/{code}.
// Просмотр записи по коду без доставки; счётчик использований
// двигает только доставка.
func (h *Handler) LookupShareCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		apierrors.ValidationError(w, "Код общего доступа обязателен")
		return
	}

	rec, err := h.shares.Lookup(r.Context(), code)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFileResponse(rec))
}

// deliverShareCodeRequest — тело POST /api/v1/share-codes/{code}/deliver.
type deliverShareCodeRequest struct {
	RecipientID int64 `json:"recipient_id"`
}

// DeliverShareCode обрабатывает POST /api/v1/share-codes/{code}/deliver.
// Доставка по коду обходит токен-гейт и квоту получателя: код сам
// по себе — граница доступа.
func (h *Handler) DeliverShareCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		apierrors.ValidationError(w, "Код общего доступа обязателен")
		return
	}

	var req deliverShareCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RecipientID <= 0 {
		apierrors.ValidationError(w, "Поле recipient_id обязательно")
		return
	}

	rec, err := h.download.RedeemAndDeliver(r.Context(), code, req.RecipientID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFileResponse(rec))
}
