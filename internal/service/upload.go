// upload.go — оркестрация регистрации загрузки.
//
// Порядок обязателен: дедупликация по стабильному уникальному
// идентификатору платформы ДО любой персистентной записи; попадание
// замыкает загрузку и возвращает существующую запись без изменения
// расхода квоты. Проверка и вставка не атомарны: две почти
// одновременные загрузки одного unique id могут вставиться обе —
// принятый компромисс дизайна, строгая дедупликация требует внешнего
// ограничения уникальности (owner_id, platform_file_unique_id).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/tgvault/vault-module/internal/domain/model"
	"github.com/bigkaa/tgvault/vault-module/internal/repository"
)

// Prometheus-метрики загрузки.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vm_uploads_total",
		Help: "Общее количество регистраций загрузки (по исходу).",
	}, []string{"status"})

	orphanedFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vm_orphaned_files_total",
		Help: "Количество осиротевших файлов: байты в канале размещены, запись не создана.",
	})
)

// UploadRequest — передача от внешнего коллаборатора загрузки:
// идентификаторы платформы, метаданные и указатель хранения уже
// размещённых байтов.
type UploadRequest struct {
	OwnerID              int64
	OwnerUsername        *string
	OriginalFilename     string
	FileKind             string
	MimeType             *string
	FileSize             int64
	ChannelID            int64
	MessageID            int64
	PlatformFileID       string
	PlatformFileUniqueID string
	Caption              *string
	Tags                 []string
}

// UploadService — регистрация входящих файлов.
type UploadService struct {
	fileRepo          repository.FileRepository
	quota             *QuotaService
	maxFileSize       int64
	defaultExpiryDays int
	logger            *slog.Logger
}

// NewUploadService создаёт сервис регистрации загрузки.
// maxFileSize — максимальный принимаемый размер файла в байтах.
// defaultExpiryDays — срок хранения, назначаемый новым записям (0 — бессрочно).
func NewUploadService(
	fileRepo repository.FileRepository,
	quota *QuotaService,
	maxFileSize int64,
	defaultExpiryDays int,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		fileRepo:          fileRepo,
		quota:             quota,
		maxFileSize:       maxFileSize,
		defaultExpiryDays: defaultExpiryDays,
		logger:            logger.With(slog.String("component", "upload_service")),
	}
}

// Register регистрирует загруженный файл.
// Возвращает запись и признак дубликата: при попадании дедупликации
// возвращается существующая запись (duplicate=true), расход не меняется.
func (s *UploadService) Register(ctx context.Context, req *UploadRequest) (*model.FileRecord, bool, error) {
	if err := s.validate(req); err != nil {
		return nil, false, err
	}

	// Дедупликация по стабильному идентификатору — до любой записи.
	// Ротируемый platform_file_id для этого непригоден.
	existing, err := s.fileRepo.FindDuplicate(ctx, req.OwnerID, req.PlatformFileUniqueID)
	if err == nil {
		uploadsTotal.WithLabelValues("duplicate").Inc()
		s.logger.Info("Дубликат загрузки, возвращена существующая запись",
			slog.String("record_id", existing.ID),
			slog.Int64("owner_id", req.OwnerID),
			slog.String("unique_file_id", req.PlatformFileUniqueID),
		)
		return existing, true, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		uploadsTotal.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("проверка дубликата: %w", err)
	}

	now := time.Now().UTC()
	rec := &model.FileRecord{
		ID:                   uuid.NewString(),
		OwnerID:              req.OwnerID,
		OwnerUsername:        req.OwnerUsername,
		OriginalFilename:     req.OriginalFilename,
		FileKind:             req.FileKind,
		MimeType:             req.MimeType,
		FileSize:             req.FileSize,
		ChannelID:            req.ChannelID,
		MessageID:            req.MessageID,
		PlatformFileID:       req.PlatformFileID,
		PlatformFileUniqueID: req.PlatformFileUniqueID,
		Caption:              req.Caption,
		Tags:                 NormalizeTags(req.Tags),
		UploadedAt:           now,
		Version:              model.SchemaVersion,
	}
	if s.defaultExpiryDays > 0 {
		expiresAt := now.AddDate(0, 0, s.defaultExpiryDays)
		rec.ExpiresAt = &expiresAt
	}

	if err := s.fileRepo.Insert(ctx, rec); err != nil {
		// Байты уже лежат в канале, а записи о них нет — транзакции
		// между подсистемами не существует. Логируем с указателем
		// хранения для ручной сверки.
		orphanedFilesTotal.Inc()
		uploadsTotal.WithLabelValues("error").Inc()
		s.logger.Error("ОСИРОТЕВШИЙ ФАЙЛ: вставка записи не удалась после размещения байтов",
			slog.Int64("owner_id", req.OwnerID),
			slog.Int64("channel_id", req.ChannelID),
			slog.Int64("message_id", req.MessageID),
			slog.String("unique_file_id", req.PlatformFileUniqueID),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, repository.ErrConflict) {
			return nil, false, fmt.Errorf("%w: указатель хранения уже занят", ErrConflict)
		}
		return nil, false, fmt.Errorf("вставка записи: %w", err)
	}

	if err := s.quota.AddUsage(ctx, req.OwnerID, req.FileSize); err != nil {
		// Запись создана, расход не учтён — отката нет, ошибка уходит
		// вызывающему как есть
		s.logger.Error("Расход загрузки не учтён",
			slog.String("record_id", rec.ID),
			slog.Int64("owner_id", req.OwnerID),
			slog.String("error", err.Error()),
		)
		return nil, false, err
	}

	uploadsTotal.WithLabelValues("created").Inc()
	s.logger.Info("Файл зарегистрирован",
		slog.String("record_id", rec.ID),
		slog.Int64("owner_id", req.OwnerID),
		slog.String("filename", rec.OriginalFilename),
		slog.Int64("size", rec.FileSize),
	)

	return rec, false, nil
}

// validate отклоняет некорректные запросы до обращения к хранилищу.
func (s *UploadService) validate(req *UploadRequest) error {
	switch {
	case req.OwnerID <= 0:
		return fmt.Errorf("%w: некорректный идентификатор владельца", ErrValidation)
	case req.OriginalFilename == "":
		return fmt.Errorf("%w: пустое имя файла", ErrValidation)
	case req.FileKind == "":
		return fmt.Errorf("%w: не указан тип содержимого", ErrValidation)
	case req.FileSize <= 0:
		return fmt.Errorf("%w: размер файла должен быть положительным", ErrValidation)
	case req.FileSize > s.maxFileSize:
		return fmt.Errorf("%w: размер файла %d превышает предел %d байт", ErrValidation, req.FileSize, s.maxFileSize)
	case req.ChannelID == 0 || req.MessageID == 0:
		return fmt.Errorf("%w: неполный указатель хранения", ErrValidation)
	case req.PlatformFileID == "":
		return fmt.Errorf("%w: не указан идентификатор файла платформы", ErrValidation)
	case req.PlatformFileUniqueID == "":
		return fmt.Errorf("%w: не указан стабильный уникальный идентификатор файла", ErrValidation)
	}
	return nil
}
