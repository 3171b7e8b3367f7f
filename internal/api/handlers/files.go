// files.go — HTTP handlers файловых операций Vault Module.
// Регистрация загрузки, получение, список, поиск, переименование,
// теги, срок хранения, скачивание, удаление.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/tgvault/vault-module/internal/api/errors"
	"github.com/bigkaa/tgvault/vault-module/internal/service"
)

// uploadFileRequest — тело запроса регистрации загрузки.
// bot-module уже разместил байты в канале и передаёт указатель
// (channel_id, message_id) вместе с метаданными.
type uploadFileRequest struct {
	OwnerID              int64    `json:"owner_id"`
	OwnerUsername        string   `json:"owner_username,omitempty"`
	OriginalFilename     string   `json:"original_filename"`
	FileKind             string   `json:"file_kind"`
	MimeType             string   `json:"mime_type,omitempty"`
	FileSize             int64    `json:"file_size"`
	ChannelID            int64    `json:"channel_id"`
	MessageID            int64    `json:"message_id"`
	PlatformFileID       string   `json:"platform_file_id"`
	PlatformFileUniqueID string   `json:"platform_file_unique_id"`
	Caption              string   `json:"caption,omitempty"`
	Tags                 []string `json:"tags,omitempty"`
}

// uploadFileResponse — ответ регистрации загрузки.
type uploadFileResponse struct {
	Duplicate bool         `json:"duplicate"`
	File      fileResponse `json:"file"`
}

// UploadFile обрабатывает POST /api/v1/files.
// 201 + запись при новой регистрации, 200 + duplicate:true при
// повторной загрузке того же файла.
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	var req uploadFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.OwnerID <= 0 {
		apierrors.ValidationError(w, "Поле owner_id обязательно")
		return
	}
	if !h.cfg.IsAllowed(req.OwnerID) {
		apierrors.Forbidden(w, "Пользователь не допущен к работе с хранилищем")
		return
	}

	rec, duplicate, err := h.upload.Register(r.Context(), &service.UploadRequest{
		OwnerID:              req.OwnerID,
		OwnerUsername:        optionalString(req.OwnerUsername),
		OriginalFilename:     req.OriginalFilename,
		FileKind:             req.FileKind,
		MimeType:             optionalString(req.MimeType),
		FileSize:             req.FileSize,
		ChannelID:            req.ChannelID,
		MessageID:            req.MessageID,
		PlatformFileID:       req.PlatformFileID,
		PlatformFileUniqueID: req.PlatformFileUniqueID,
		Caption:              optionalString(req.Caption),
		Tags:                 req.Tags,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, uploadFileResponse{
		Duplicate: duplicate,
		File:      toFileResponse(rec),
	})
}

// GetFile обрабатывает GET /api/v1/files/{id}?owner_id=.
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRecordID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	ownerID, ok := parseOwnerID(w, r.URL.Query().Get("owner_id"))
	if !ok {
		return
	}

	rec, err := h.files.Get(r.Context(), id, ownerID, h.isPrivileged(r, ownerID))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFileResponse(rec))
}

// listFilesResponse — страница списка файлов.
type listFilesResponse struct {
	Files []fileResponse `json:"files"`
	Page  int            `json:"page"`
	Total int            `json:"total"`
}

// ListFiles обрабатывает GET /api/v1/files?owner_id=&page=.
// Страницы нумеруются с 1, новые файлы первыми.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parseOwnerID(w, r.URL.Query().Get("owner_id"))
	if !ok {
		return
	}
	page := parsePage(r.URL.Query().Get("page"))

	recs, total, err := h.files.List(r.Context(), ownerID, page)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listFilesResponse{
		Files: toFileResponses(recs),
		Page:  page,
		Total: total,
	})
}

// searchFilesResponse — результат поиска.
type searchFilesResponse struct {
	Files []fileResponse `json:"files"`
}

// SearchFiles обрабатывает GET /api/v1/files/search?owner_id=&name=|tag=.
// Ровно один из параметров name/tag должен быть задан.
func (h *Handler) SearchFiles(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parseOwnerID(w, r.URL.Query().Get("owner_id"))
	if !ok {
		return
	}

	name := r.URL.Query().Get("name")
	tag := r.URL.Query().Get("tag")
	if (name == "") == (tag == "") {
		apierrors.ValidationError(w, "Требуется ровно один из параметров: name или tag")
		return
	}

	var (
		recs []fileResponse
		err  error
	)
	if name != "" {
		results, searchErr := h.files.SearchByName(r.Context(), ownerID, name)
		err = searchErr
		recs = toFileResponses(results)
	} else {
		results, searchErr := h.files.SearchByTag(r.Context(), ownerID, tag)
		err = searchErr
		recs = toFileResponses(results)
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchFilesResponse{Files: recs})
}

// updateFileRequest — тело PATCH /api/v1/files/{id}.
// Допускает переименование и/или замену тегов за один вызов.
type updateFileRequest struct {
	OwnerID     int64     `json:"owner_id"`
	DisplayName *string   `json:"display_name,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

// UpdateFile обрабатывает PATCH /api/v1/files/{id}: rename / set-tags.
func (h *Handler) UpdateFile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRecordID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req updateFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OwnerID <= 0 {
		apierrors.ValidationError(w, "Поле owner_id обязательно")
		return
	}
	if req.DisplayName == nil && req.Tags == nil {
		apierrors.ValidationError(w, "Требуется хотя бы одно из полей: display_name, tags")
		return
	}

	if req.DisplayName != nil {
		if err := h.files.Rename(r.Context(), id, req.OwnerID, *req.DisplayName); err != nil {
			h.writeServiceError(w, err)
			return
		}
	}
	if req.Tags != nil {
		if err := h.files.SetTags(r.Context(), id, req.OwnerID, *req.Tags); err != nil {
			h.writeServiceError(w, err)
			return
		}
	}

	rec, err := h.files.Get(r.Context(), id, req.OwnerID, h.isPrivileged(r, req.OwnerID))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(rec))
}

// setExpiryRequest — тело POST /api/v1/files/{id}/expiry.
type setExpiryRequest struct {
	OwnerID int64 `json:"owner_id"`
	Days    int   `json:"days"`
}

// setExpiryResponse — ответ установки срока хранения.
type setExpiryResponse struct {
	ExpiresAt *time.Time `json:"expires_at"`
}

// SetExpiry обрабатывает POST /api/v1/files/{id}/expiry.
// Допустимые значения days: 0 (бессрочно), 1, 7, 30.
func (h *Handler) SetExpiry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRecordID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req setExpiryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OwnerID <= 0 {
		apierrors.ValidationError(w, "Поле owner_id обязательно")
		return
	}

	expiresAt, err := h.files.SetExpiry(r.Context(), id, req.OwnerID, req.Days)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, setExpiryResponse{ExpiresAt: expiresAt})
}

// downloadRequest — тело POST /api/v1/files/{id}/download.
type downloadRequest struct {
	OwnerID int64 `json:"owner_id"`
}

// DownloadFile обрабатывает POST /api/v1/files/{id}/download.
// Оркестрация: токен-гейт → квота → доставка через bot-module → расход.
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRecordID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req downloadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OwnerID <= 0 {
		apierrors.ValidationError(w, "Поле owner_id обязательно")
		return
	}

	rec, err := h.download.Download(r.Context(), id, req.OwnerID, h.isPrivileged(r, req.OwnerID))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFileResponse(rec))
}

// deleteFileResponse — ответ удаления.
type deleteFileResponse struct {
	Deleted bool `json:"deleted"`
}

// DeleteFile обрабатывает DELETE /api/v1/files/{id}?owner_id=&force=.
// Удаление идемпотентно: отсутствие записи — deleted:false, не ошибка.
// force=true — админский вариант, обходит проверку владения.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRecordID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	ownerID, ok := parseOwnerID(w, r.URL.Query().Get("owner_id"))
	if !ok {
		return
	}

	force := r.URL.Query().Get("force") == "true"
	if force && !h.requireAdmin(w, r, ownerID) {
		return
	}

	deleted, err := h.files.Delete(r.Context(), id, ownerID, force)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteFileResponse{Deleted: deleted})
}
