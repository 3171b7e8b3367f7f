package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/tgvault/vault-module/internal/domain/model"
)

// fileColumns — список столбцов таблицы file_records для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const fileColumns = `id, owner_id, owner_username, original_filename, display_name,
	file_kind, mime_type, file_size, channel_id, message_id,
	platform_file_id, platform_file_unique_id, caption, tags,
	share_code, share_code_uses, expires_at, uploaded_at, schema_version`

// GlobalTotals — сводные показатели хранилища для админской статистики.
type GlobalTotals struct {
	// FileCount — общее количество файлов
	FileCount int64
	// TotalBytes — суммарный размер всех файлов в байтах
	TotalBytes int64
	// OwnerCount — количество уникальных владельцев
	OwnerCount int64
}

// OwnerUsage — занятое место одного владельца.
type OwnerUsage struct {
	// OwnerID — идентификатор владельца
	OwnerID int64
	// FileCount — количество файлов владельца
	FileCount int64
	// TotalBytes — суммарный размер файлов владельца в байтах
	TotalBytes int64
}

// FileRepository — доступ к записям файлов в file_records.
type FileRepository interface {
	// Insert создаёт запись файла. Нарушение уникальности указателя
	// хранения (channel_id, message_id) возвращает ErrConflict.
	Insert(ctx context.Context, f *model.FileRecord) error
	// FindDuplicate ищет запись владельца по стабильному уникальному
	// идентификатору файла платформы. ErrNotFound — дубликата нет.
	FindDuplicate(ctx context.Context, ownerID int64, uniqueFileID string) (*model.FileRecord, error)
	// GetByID возвращает запись по UUID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.FileRecord, error)
	// GetByShareCode возвращает запись по коду общего доступа или ErrNotFound.
	// Код должен быть нормализован (верхний регистр) до вызова.
	GetByShareCode(ctx context.Context, code string) (*model.FileRecord, error)
	// ListByOwner возвращает файлы владельца, новые первыми.
	ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]*model.FileRecord, error)
	// CountByOwner возвращает количество файлов владельца.
	CountByOwner(ctx context.Context, ownerID int64) (int, error)
	// SearchByName ищет по подстроке оригинального имени файла
	// (регистронезависимо), новые первыми.
	SearchByName(ctx context.Context, ownerID int64, substring string, limit int) ([]*model.FileRecord, error)
	// SearchByTag ищет по точному совпадению нормализованного тега.
	SearchByTag(ctx context.Context, ownerID int64, tag string, limit int) ([]*model.FileRecord, error)
	// Rename устанавливает отображаемое имя. Возвращает false, если
	// запись не найдена или не принадлежит владельцу.
	Rename(ctx context.Context, id string, ownerID int64, displayName string) (bool, error)
	// SetTags заменяет теги записи. Семантика владения как у Rename.
	SetTags(ctx context.Context, id string, ownerID int64, tags []string) (bool, error)
	// SetExpiry устанавливает время истечения (nil — бессрочно).
	SetExpiry(ctx context.Context, id string, ownerID int64, expiresAt *time.Time) (bool, error)
	// AssignShareCode привязывает код к записи без кода. Возвращает
	// false, если запись не найдена, чужая или код уже привязан.
	// Коллизия по глобальному индексу кодов — ErrConflict.
	AssignShareCode(ctx context.Context, id string, ownerID int64, code string) (bool, error)
	// IncrementShareUses атомарно увеличивает счётчик использований кода.
	IncrementShareUses(ctx context.Context, id string) error
	// Delete удаляет запись владельца. false — записи нет или она чужая.
	Delete(ctx context.Context, id string, ownerID int64) (bool, error)
	// AdminDelete удаляет запись без проверки владения.
	AdminDelete(ctx context.Context, id string) (bool, error)
	// ExpiringWithin возвращает записи с expires_at в интервале [from, to),
	// отсортированные по времени истечения.
	ExpiringWithin(ctx context.Context, from, to time.Time, limit int) ([]*model.FileRecord, error)
	// PurgeExpired удаляет записи с истёкшим expires_at. Возвращает
	// количество удалённых записей.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	// Totals возвращает сводные показатели хранилища.
	Totals(ctx context.Context) (*GlobalTotals, error)
	// OwnerTotals возвращает количество и суммарный размер файлов владельца.
	OwnerTotals(ctx context.Context, ownerID int64) (*OwnerUsage, error)
	// TopOwners возвращает владельцев с наибольшим занятым местом.
	TopOwners(ctx context.Context, limit int) ([]*OwnerUsage, error)
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// scanFile — адаптер сырой строки БД к типизированной записи.
// Версионированная схема: строки версии 1 не имеют display_name,
// caption и owner_username — отсутствующие поля приводятся к
// значениям по умолчанию, версия поднимается до актуальной формы
// чтения. Принимает как pgx.Row, так и pgx.Rows.
func scanFile(row pgx.Row) (*model.FileRecord, error) {
	f := &model.FileRecord{}
	err := row.Scan(
		&f.ID, &f.OwnerID, &f.OwnerUsername, &f.OriginalFilename, &f.DisplayName,
		&f.FileKind, &f.MimeType, &f.FileSize, &f.ChannelID, &f.MessageID,
		&f.PlatformFileID, &f.PlatformFileUniqueID, &f.Caption, &f.Tags,
		&f.ShareCode, &f.ShareCodeUses, &f.ExpiresAt, &f.UploadedAt, &f.Version,
	)
	if err != nil {
		return nil, err
	}

	// Дефолты отсутствующих полей старых версий
	if f.Tags == nil {
		f.Tags = []string{}
	}
	if f.Version < 1 {
		f.Version = 1
	}

	return f, nil
}

func (r *fileRepo) Insert(ctx context.Context, f *model.FileRecord) error {
	query := `
		INSERT INTO file_records (id, owner_id, owner_username, original_filename, display_name,
			file_kind, mime_type, file_size, channel_id, message_id,
			platform_file_id, platform_file_unique_id, caption, tags,
			share_code, share_code_uses, expires_at, uploaded_at, schema_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := r.db.Exec(ctx, query,
		f.ID, f.OwnerID, f.OwnerUsername, f.OriginalFilename, f.DisplayName,
		f.FileKind, f.MimeType, f.FileSize, f.ChannelID, f.MessageID,
		f.PlatformFileID, f.PlatformFileUniqueID, f.Caption, f.Tags,
		f.ShareCode, f.ShareCodeUses, f.ExpiresAt, f.UploadedAt, f.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: указатель хранения уже занят", ErrConflict)
		}
		return fmt.Errorf("ошибка вставки записи файла: %w", err)
	}
	return nil
}

func (r *fileRepo) FindDuplicate(ctx context.Context, ownerID int64, uniqueFileID string) (*model.FileRecord, error) {
	// При нарушенном инварианте дедупликации (гонка двух загрузок)
	// детерминированно возвращаем самую раннюю запись.
	query := fmt.Sprintf(`
		SELECT %s FROM file_records
		WHERE owner_id = $1 AND platform_file_unique_id = $2
		ORDER BY uploaded_at ASC
		LIMIT 1`, fileColumns)

	f, err := scanFile(r.db.QueryRow(ctx, query, ownerID, uniqueFileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска дубликата: %w", err)
	}
	return f, nil
}

func (r *fileRepo) GetByID(ctx context.Context, id string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records WHERE id = $1`, fileColumns)

	f, err := scanFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи файла: %w", err)
	}
	return f, nil
}

func (r *fileRepo) GetByShareCode(ctx context.Context, code string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records WHERE share_code = $1`, fileColumns)

	f, err := scanFile(r.db.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска по коду общего доступа: %w", err)
	}
	return f, nil
}

func (r *fileRepo) ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM file_records
		WHERE owner_id = $1
		ORDER BY uploaded_at DESC
		LIMIT $2 OFFSET $3`, fileColumns)

	return r.queryFiles(ctx, query, ownerID, limit, offset)
}

func (r *fileRepo) CountByOwner(ctx context.Context, ownerID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM file_records WHERE owner_id = $1`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта файлов владельца: %w", err)
	}
	return count, nil
}

func (r *fileRepo) SearchByName(ctx context.Context, ownerID int64, substring string, limit int) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM file_records
		WHERE owner_id = $1 AND original_filename ILIKE $2
		ORDER BY uploaded_at DESC
		LIMIT $3`, fileColumns)

	return r.queryFiles(ctx, query, ownerID, "%"+substring+"%", limit)
}

func (r *fileRepo) SearchByTag(ctx context.Context, ownerID int64, tag string, limit int) ([]*model.FileRecord, error) {
	// Оператор @> — точное вхождение тега в массив
	query := fmt.Sprintf(`
		SELECT %s FROM file_records
		WHERE owner_id = $1 AND tags @> $2
		ORDER BY uploaded_at DESC
		LIMIT $3`, fileColumns)

	return r.queryFiles(ctx, query, ownerID, []string{tag}, limit)
}

func (r *fileRepo) Rename(ctx context.Context, id string, ownerID int64, displayName string) (bool, error) {
	query := `
		UPDATE file_records
		SET display_name = $3
		WHERE id = $1 AND owner_id = $2`

	tag, err := r.db.Exec(ctx, query, id, ownerID, displayName)
	if err != nil {
		return false, fmt.Errorf("ошибка переименования: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *fileRepo) SetTags(ctx context.Context, id string, ownerID int64, tags []string) (bool, error) {
	query := `
		UPDATE file_records
		SET tags = $3
		WHERE id = $1 AND owner_id = $2`

	tag, err := r.db.Exec(ctx, query, id, ownerID, tags)
	if err != nil {
		return false, fmt.Errorf("ошибка установки тегов: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *fileRepo) SetExpiry(ctx context.Context, id string, ownerID int64, expiresAt *time.Time) (bool, error) {
	query := `
		UPDATE file_records
		SET expires_at = $3
		WHERE id = $1 AND owner_id = $2`

	tag, err := r.db.Exec(ctx, query, id, ownerID, expiresAt)
	if err != nil {
		return false, fmt.Errorf("ошибка установки срока хранения: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *fileRepo) AssignShareCode(ctx context.Context, id string, ownerID int64, code string) (bool, error) {
	// Оптимистичный check-then-set: привязываем только к записи без кода,
	// глобальную уникальность гарантирует частичный уникальный индекс.
	query := `
		UPDATE file_records
		SET share_code = $3, share_code_uses = 0
		WHERE id = $1 AND owner_id = $2 AND share_code IS NULL`

	tag, err := r.db.Exec(ctx, query, id, ownerID, code)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("%w: код %s уже занят", ErrConflict, code)
		}
		return false, fmt.Errorf("ошибка привязки кода общего доступа: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *fileRepo) IncrementShareUses(ctx context.Context, id string) error {
	query := `
		UPDATE file_records
		SET share_code_uses = share_code_uses + 1
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ошибка инкремента использований кода: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileRepo) Delete(ctx context.Context, id string, ownerID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM file_records WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления записи файла: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *fileRepo) AdminDelete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM file_records WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("ошибка принудительного удаления записи: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *fileRepo) ExpiringWithin(ctx context.Context, from, to time.Time, limit int) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM file_records
		WHERE expires_at IS NOT NULL AND expires_at >= $1 AND expires_at < $2
		ORDER BY expires_at ASC
		LIMIT $3`, fileColumns)

	return r.queryFiles(ctx, query, from, to, limit)
}

func (r *fileRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM file_records WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки истёкших записей: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *fileRepo) Totals(ctx context.Context) (*GlobalTotals, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(file_size), 0), COUNT(DISTINCT owner_id)
		FROM file_records`

	t := &GlobalTotals{}
	err := r.db.QueryRow(ctx, query).Scan(&t.FileCount, &t.TotalBytes, &t.OwnerCount)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта сводных показателей: %w", err)
	}
	return t, nil
}

func (r *fileRepo) OwnerTotals(ctx context.Context, ownerID int64) (*OwnerUsage, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(file_size), 0)
		FROM file_records
		WHERE owner_id = $1`

	u := &OwnerUsage{OwnerID: ownerID}
	err := r.db.QueryRow(ctx, query, ownerID).Scan(&u.FileCount, &u.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта показателей владельца: %w", err)
	}
	return u, nil
}

func (r *fileRepo) TopOwners(ctx context.Context, limit int) ([]*OwnerUsage, error) {
	query := `
		SELECT owner_id, COUNT(*), COALESCE(SUM(file_size), 0)
		FROM file_records
		GROUP BY owner_id
		ORDER BY COALESCE(SUM(file_size), 0) DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса крупнейших владельцев: %w", err)
	}
	defer rows.Close()

	var result []*OwnerUsage
	for rows.Next() {
		u := &OwnerUsage{}
		if err := rows.Scan(&u.OwnerID, &u.FileCount, &u.TotalBytes); err != nil {
			return nil, fmt.Errorf("ошибка сканирования показателей владельца: %w", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

// queryFiles выполняет SELECT и сканирует все строки через адаптер.
func (r *fileRepo) queryFiles(ctx context.Context, query string, args ...any) ([]*model.FileRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса записей файлов: %w", err)
	}
	defer rows.Close()

	var result []*model.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи файла: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}
