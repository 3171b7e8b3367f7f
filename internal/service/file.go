// file.go — сервис записей файлов: чтение, поиск и владельческие мутации.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/tgvault/vault-module/internal/domain/model"
	"github.com/bigkaa/tgvault/vault-module/internal/repository"
)

const (
	// searchNameLimit — предел результатов поиска по имени.
	searchNameLimit = 20
	// searchTagLimit — предел результатов поиска по тегу.
	searchTagLimit = 50
	// maxDisplayNameLength — предел длины отображаемого имени.
	maxDisplayNameLength = 255
	// maxTagsPerRecord — предел количества тегов у записи.
	maxTagsPerRecord = 30
)

// expiryPresets — допустимые предустановки срока хранения в днях.
// 0 — бессрочно.
var expiryPresets = map[int]bool{0: true, 1: true, 7: true, 30: true}

// FileService — операции над записями файлов.
type FileService struct {
	fileRepo repository.FileRepository
	cache    *CacheService
	pageSize int
	logger   *slog.Logger
}

// NewFileService создаёт сервис записей файлов.
func NewFileService(
	fileRepo repository.FileRepository,
	cache *CacheService,
	pageSize int,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		fileRepo: fileRepo,
		cache:    cache,
		pageSize: pageSize,
		logger:   logger.With(slog.String("component", "file_service")),
	}
}

// Get возвращает запись по id с проверкой владения.
// Чужая запись для непривилегированного вызывающего неотличима от
// отсутствующей — оба случая дают ErrNotFound.
func (s *FileService) Get(ctx context.Context, id string, ownerID int64, privileged bool) (*model.FileRecord, error) {
	rec, err := s.getCached(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID && !privileged {
		return nil, ErrNotFound
	}
	return rec, nil
}

// List возвращает страницу файлов владельца (новые первыми) и общее
// количество его файлов.
func (s *FileService) List(ctx context.Context, ownerID int64, page int) ([]*model.FileRecord, int, error) {
	if page < 1 {
		page = 1
	}

	offset := (page - 1) * s.pageSize
	files, err := s.fileRepo.ListByOwner(ctx, ownerID, s.pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("список файлов: %w", err)
	}

	total, err := s.fileRepo.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт файлов: %w", err)
	}

	return files, total, nil
}

// SearchByName ищет файлы владельца по подстроке имени
// (регистронезависимо), не более searchNameLimit результатов.
func (s *FileService) SearchByName(ctx context.Context, ownerID int64, substring string) ([]*model.FileRecord, error) {
	substring = strings.TrimSpace(substring)
	if substring == "" {
		return nil, fmt.Errorf("%w: пустая строка поиска", ErrValidation)
	}

	files, err := s.fileRepo.SearchByName(ctx, ownerID, substring, searchNameLimit)
	if err != nil {
		return nil, fmt.Errorf("поиск по имени: %w", err)
	}
	return files, nil
}

// SearchByTag ищет файлы владельца по точному совпадению
// нормализованного тега, не более searchTagLimit результатов.
func (s *FileService) SearchByTag(ctx context.Context, ownerID int64, tag string) ([]*model.FileRecord, error) {
	normalized := NormalizeTag(tag)
	if normalized == "" {
		return nil, fmt.Errorf("%w: пустой тег", ErrValidation)
	}

	files, err := s.fileRepo.SearchByTag(ctx, ownerID, normalized, searchTagLimit)
	if err != nil {
		return nil, fmt.Errorf("поиск по тегу: %w", err)
	}
	return files, nil
}

// Rename устанавливает отображаемое имя записи.
func (s *FileService) Rename(ctx context.Context, id string, ownerID int64, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return fmt.Errorf("%w: пустое имя", ErrValidation)
	}
	if len(displayName) > maxDisplayNameLength {
		return fmt.Errorf("%w: имя длиннее %d символов", ErrValidation, maxDisplayNameLength)
	}

	ok, err := s.fileRepo.Rename(ctx, id, ownerID, displayName)
	if err != nil {
		return fmt.Errorf("переименование: %w", err)
	}
	if !ok {
		return ErrNotFound
	}

	s.cache.Delete(id)
	s.logger.Info("Файл переименован",
		slog.String("record_id", id),
		slog.Int64("owner_id", ownerID),
	)
	return nil
}

// SetTags заменяет теги записи нормализованным набором.
func (s *FileService) SetTags(ctx context.Context, id string, ownerID int64, tags []string) error {
	normalized := NormalizeTags(tags)
	if len(normalized) > maxTagsPerRecord {
		return fmt.Errorf("%w: больше %d тегов", ErrValidation, maxTagsPerRecord)
	}

	ok, err := s.fileRepo.SetTags(ctx, id, ownerID, normalized)
	if err != nil {
		return fmt.Errorf("установка тегов: %w", err)
	}
	if !ok {
		return ErrNotFound
	}

	s.cache.Delete(id)
	s.logger.Info("Теги файла обновлены",
		slog.String("record_id", id),
		slog.Int64("owner_id", ownerID),
		slog.Int("tags", len(normalized)),
	)
	return nil
}

// SetExpiry устанавливает срок хранения по предустановке в днях
// (0, 1, 7 или 30; 0 — бессрочно). Возвращает назначенное время
// истечения (nil — бессрочно).
func (s *FileService) SetExpiry(ctx context.Context, id string, ownerID int64, days int) (*time.Time, error) {
	if !expiryPresets[days] {
		return nil, fmt.Errorf("%w: недопустимый срок %d дней, допустимые: 0, 1, 7, 30", ErrValidation, days)
	}

	var expiresAt *time.Time
	if days > 0 {
		t := time.Now().UTC().AddDate(0, 0, days)
		expiresAt = &t
	}

	ok, err := s.fileRepo.SetExpiry(ctx, id, ownerID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("установка срока хранения: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	s.cache.Delete(id)
	s.logger.Info("Срок хранения файла обновлён",
		slog.String("record_id", id),
		slog.Int64("owner_id", ownerID),
		slog.Int("days", days),
	)
	return expiresAt, nil
}

// Delete удаляет запись. force пропускает проверку владения
// (принудительное админское удаление). Удаление идемпотентно:
// отсутствующая запись — no-op (deleted=false), не ошибка.
func (s *FileService) Delete(ctx context.Context, id string, ownerID int64, force bool) (bool, error) {
	var (
		deleted bool
		err     error
	)
	if force {
		deleted, err = s.fileRepo.AdminDelete(ctx, id)
	} else {
		deleted, err = s.fileRepo.Delete(ctx, id, ownerID)
	}
	if err != nil {
		return false, fmt.Errorf("удаление записи: %w", err)
	}

	if deleted {
		s.cache.Delete(id)
		s.logger.Info("Файл удалён",
			slog.String("record_id", id),
			slog.Int64("owner_id", ownerID),
			slog.Bool("force", force),
		)
	}
	return deleted, nil
}

// getCached возвращает запись из кэша или репозитория.
func (s *FileService) getCached(ctx context.Context, id string) (*model.FileRecord, error) {
	if rec, ok := s.cache.Get(id); ok {
		return rec, nil
	}

	rec, err := s.fileRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение записи: %w", err)
	}

	s.cache.Set(id, rec)
	return rec, nil
}

// NormalizeTag приводит тег к канонической форме:
// нижний регистр, без ведущего '#' и окружающих пробелов.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
}

// NormalizeTags нормализует набор тегов, отбрасывая пустые и повторы.
// Порядок первых вхождений сохраняется.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	result := make([]string, 0, len(tags))
	for _, t := range tags {
		n := NormalizeTag(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		result = append(result, n)
	}
	return result
}
