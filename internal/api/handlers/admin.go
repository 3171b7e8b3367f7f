// admin.go — HTTP handlers админской статистики.
// Глобальная сводка хранилища и карточка пользователя.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ownerUsageResponse — занятое место одного владельца.
type ownerUsageResponse struct {
	OwnerID    int64 `json:"owner_id"`
	FileCount  int64 `json:"file_count"`
	TotalBytes int64 `json:"total_bytes"`
}

// globalStatsResponse — сводные показатели хранилища.
type globalStatsResponse struct {
	FileCount  int64                `json:"file_count"`
	TotalBytes int64                `json:"total_bytes"`
	OwnerCount int64                `json:"owner_count"`
	TopOwners  []ownerUsageResponse `json:"top_owners"`
}

// GetAdminStats обрабатывает GET /api/v1/admin/stats.
func (h *Handler) GetAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Global(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := globalStatsResponse{
		FileCount:  stats.Totals.FileCount,
		TotalBytes: stats.Totals.TotalBytes,
		OwnerCount: stats.Totals.OwnerCount,
		TopOwners:  make([]ownerUsageResponse, 0, len(stats.TopOwners)),
	}
	for _, owner := range stats.TopOwners {
		resp.TopOwners = append(resp.TopOwners, ownerUsageResponse{
			OwnerID:    owner.OwnerID,
			FileCount:  owner.FileCount,
			TotalBytes: owner.TotalBytes,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// userStatsResponse — карточка пользователя для админа.
type userStatsResponse struct {
	Quota       quotaResponse      `json:"quota"`
	Usage       ownerUsageResponse `json:"usage"`
	RecentFiles []fileResponse     `json:"recent_files"`
}

// GetAdminUser обрабатывает GET /api/v1/admin/users/{owner_id}.
func (h *Handler) GetAdminUser(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parseOwnerID(w, chi.URLParam(r, "owner_id"))
	if !ok {
		return
	}

	stats, err := h.stats.User(r.Context(), ownerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userStatsResponse{
		Quota: toQuotaResponse(stats.Quota),
		Usage: ownerUsageResponse{
			OwnerID:    stats.Usage.OwnerID,
			FileCount:  stats.Usage.FileCount,
			TotalBytes: stats.Usage.TotalBytes,
		},
		RecentFiles: toFileResponses(stats.RecentFiles),
	})
}
