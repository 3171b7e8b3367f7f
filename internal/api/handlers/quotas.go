// quotas.go — HTTP handlers квот и токена скачивания.
// Статус квоты, админская установка лимитов, установка и верификация токена.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/tgvault/vault-module/internal/api/errors"
)

// GetQuota обрабатывает GET /api/v1/quotas/{owner_id}.
// Статус отдаётся с применённым плановым сбросом счётчиков.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parseOwnerID(w, chi.URLParam(r, "owner_id"))
	if !ok {
		return
	}

	quota, err := h.quota.Status(r.Context(), ownerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toQuotaResponse(quota))
}

// setLimitsRequest — тело PUT /api/v1/quotas/{owner_id}/limits.
// Лимит полосы задаётся в мегабайтах, 0 — безлимит.
type setLimitsRequest struct {
	ActingOwnerID int64 `json:"acting_owner_id"`
	CapacityMB    int64 `json:"capacity_mb"`
	CountLimit    int64 `json:"count_limit"`
}

// SetLimits обрабатывает PUT /api/v1/quotas/{owner_id}/limits.
// Только для администраторов.
func (h *Handler) SetLimits(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parseOwnerID(w, chi.URLParam(r, "owner_id"))
	if !ok {
		return
	}

	var req setLimitsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.requireAdmin(w, r, req.ActingOwnerID) {
		return
	}
	if req.CapacityMB < 0 || req.CountLimit < 0 {
		apierrors.ValidationError(w, "Лимиты не могут быть отрицательными")
		return
	}

	if err := h.quota.SetLimits(r.Context(), ownerID, req.CapacityMB*1024*1024, req.CountLimit); err != nil {
		h.writeServiceError(w, err)
		return
	}

	quota, err := h.quota.Status(r.Context(), ownerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuotaResponse(quota))
}

// setTokenRequest — тело POST /api/v1/quotas/{owner_id}/token.
type setTokenRequest struct {
	Token string `json:"token"`
}

// SetToken обрабатывает POST /api/v1/quotas/{owner_id}/token.
// Перезаписывает токен безусловно.
func (h *Handler) SetToken(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parseOwnerID(w, chi.URLParam(r, "owner_id"))
	if !ok {
		return
	}

	var req setTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.tokens.SetToken(r.Context(), ownerID, req.Token); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// verifyTokenRequest — тело POST /api/v1/quotas/{owner_id}/token/verify.
type verifyTokenRequest struct {
	Token string `json:"token"`
}

// verifyTokenResponse — результат верификации.
type verifyTokenResponse struct {
	Verified bool `json:"verified"`
}

// VerifyToken обрабатывает POST /api/v1/quotas/{owner_id}/token/verify.
// Успех открывает окно верификации; неуспех не трогает действующее окно.
func (h *Handler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parseOwnerID(w, chi.URLParam(r, "owner_id"))
	if !ok {
		return
	}

	var req verifyTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	verified, err := h.tokens.Verify(r.Context(), ownerID, req.Token)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyTokenResponse{Verified: verified})
}
