package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/tgvault/vault-module/internal/domain/model"
)

// quotaColumns — список столбцов таблицы user_quotas для SELECT-запросов.
const quotaColumns = `owner_id, bytes_used, bytes_limit, downloads_used, downloads_limit,
	reset_time, token, verified_until, updated_at`

// QuotaRepository — доступ к квотам пользователей в user_quotas.
// Все изменения счётчиков — одиночные атомарные UPDATE: параллельные
// add/remove не теряют обновлений, read-modify-write не используется.
type QuotaRepository interface {
	// GetOrCreate возвращает квоту владельца, лениво создавая запись
	// с переданными лимитами по умолчанию при первом обращении.
	GetOrCreate(ctx context.Context, ownerID, defaultBytesLimit, defaultDownloadsLimit int64) (*model.UserQuota, error)
	// GetByOwner возвращает квоту владельца или ErrNotFound.
	GetByOwner(ctx context.Context, ownerID int64) (*model.UserQuota, error)
	// AddUsage атомарно прибавляет bytes к полосе и 1 к счётчику скачиваний.
	AddUsage(ctx context.Context, ownerID, bytes int64) error
	// RemoveUsage атомарно вычитает bytes и 1 скачивание.
	// Счётчики не опускаются ниже нуля даже при параллельных вычитаниях.
	RemoveUsage(ctx context.Context, ownerID, bytes int64) error
	// ResetCounters обнуляет счётчики и назначает следующее время сброса.
	ResetCounters(ctx context.Context, ownerID int64, nextReset time.Time) error
	// SetResetTime назначает время сброса без обнуления счётчиков.
	// Используется при инициализации отсутствующего reset_time.
	SetResetTime(ctx context.Context, ownerID int64, resetTime time.Time) error
	// SetLimits устанавливает лимиты владельца (upsert).
	SetLimits(ctx context.Context, ownerID, bytesLimit, downloadsLimit int64) error
	// SetToken безусловно перезаписывает токен владельца.
	SetToken(ctx context.Context, ownerID int64, token string) error
	// SetVerifiedUntil устанавливает конец окна верификации.
	SetVerifiedUntil(ctx context.Context, ownerID int64, until time.Time) error
}

// quotaRepo — реализация QuotaRepository через pgx.
type quotaRepo struct {
	db DBTX
}

// NewQuotaRepository создаёт репозиторий квот.
func NewQuotaRepository(db DBTX) QuotaRepository {
	return &quotaRepo{db: db}
}

// scanQuota — адаптер сырой строки БД к типизированной квоте.
func scanQuota(row pgx.Row) (*model.UserQuota, error) {
	q := &model.UserQuota{}
	err := row.Scan(
		&q.OwnerID, &q.BytesUsed, &q.BytesLimit, &q.DownloadsUsed, &q.DownloadsLimit,
		&q.ResetTime, &q.Token, &q.VerifiedUntil, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (r *quotaRepo) GetOrCreate(ctx context.Context, ownerID, defaultBytesLimit, defaultDownloadsLimit int64) (*model.UserQuota, error) {
	// Ленивое создание: ON CONFLICT DO NOTHING устойчиво к гонке двух
	// первых обращений одного владельца — выживает ровно одна запись.
	insert := `
		INSERT INTO user_quotas (owner_id, bytes_used, bytes_limit, downloads_used, downloads_limit, updated_at)
		VALUES ($1, 0, $2, 0, $3, $4)
		ON CONFLICT (owner_id) DO NOTHING`

	_, err := r.db.Exec(ctx, insert, ownerID, defaultBytesLimit, defaultDownloadsLimit, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("ошибка создания квоты: %w", err)
	}

	return r.GetByOwner(ctx, ownerID)
}

func (r *quotaRepo) GetByOwner(ctx context.Context, ownerID int64) (*model.UserQuota, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_quotas WHERE owner_id = $1`, quotaColumns)

	q, err := scanQuota(r.db.QueryRow(ctx, query, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения квоты: %w", err)
	}
	return q, nil
}

func (r *quotaRepo) AddUsage(ctx context.Context, ownerID, bytes int64) error {
	query := `
		UPDATE user_quotas
		SET bytes_used = bytes_used + $2,
		    downloads_used = downloads_used + 1,
		    updated_at = $3
		WHERE owner_id = $1`

	tag, err := r.db.Exec(ctx, query, ownerID, bytes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ошибка учёта расхода квоты: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *quotaRepo) RemoveUsage(ctx context.Context, ownerID, bytes int64) error {
	// GREATEST не даёт счётчикам уйти в минус при параллельных вычитаниях
	query := `
		UPDATE user_quotas
		SET bytes_used = GREATEST(bytes_used - $2, 0),
		    downloads_used = GREATEST(downloads_used - 1, 0),
		    updated_at = $3
		WHERE owner_id = $1`

	tag, err := r.db.Exec(ctx, query, ownerID, bytes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ошибка возврата расхода квоты: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *quotaRepo) ResetCounters(ctx context.Context, ownerID int64, nextReset time.Time) error {
	query := `
		UPDATE user_quotas
		SET bytes_used = 0,
		    downloads_used = 0,
		    reset_time = $2,
		    updated_at = $3
		WHERE owner_id = $1`

	tag, err := r.db.Exec(ctx, query, ownerID, nextReset, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ошибка сброса счётчиков квоты: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *quotaRepo) SetResetTime(ctx context.Context, ownerID int64, resetTime time.Time) error {
	query := `
		UPDATE user_quotas
		SET reset_time = $2, updated_at = $3
		WHERE owner_id = $1`

	tag, err := r.db.Exec(ctx, query, ownerID, resetTime, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ошибка назначения времени сброса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *quotaRepo) SetLimits(ctx context.Context, ownerID, bytesLimit, downloadsLimit int64) error {
	query := `
		INSERT INTO user_quotas (owner_id, bytes_used, bytes_limit, downloads_used, downloads_limit, updated_at)
		VALUES ($1, 0, $2, 0, $3, $4)
		ON CONFLICT (owner_id) DO UPDATE
		SET bytes_limit = EXCLUDED.bytes_limit,
		    downloads_limit = EXCLUDED.downloads_limit,
		    updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query, ownerID, bytesLimit, downloadsLimit, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ошибка установки лимитов квоты: %w", err)
	}
	return nil
}

func (r *quotaRepo) SetToken(ctx context.Context, ownerID int64, token string) error {
	query := `
		UPDATE user_quotas
		SET token = $2, updated_at = $3
		WHERE owner_id = $1`

	tag, err := r.db.Exec(ctx, query, ownerID, token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ошибка установки токена: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *quotaRepo) SetVerifiedUntil(ctx context.Context, ownerID int64, until time.Time) error {
	query := `
		UPDATE user_quotas
		SET verified_until = $2, updated_at = $3
		WHERE owner_id = $1`

	tag, err := r.db.Exec(ctx, query, ownerID, until, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ошибка установки окна верификации: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
