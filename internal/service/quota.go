// quota.go — сервис учёта квот (полоса + количество скачиваний).
//
// Плановый сброс счётчиков выполняется внутри запроса, перед каждой
// проверкой ёмкости, а не фоновым таймером: первое действие пользователя
// в новых сутках детерминированно запускает его собственный сброс
// независимо от глобального планировщика.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/tgvault/vault-module/internal/domain/model"
	"github.com/bigkaa/tgvault/vault-module/internal/repository"
)

// Причины решения проверки квоты.
const (
	// ReasonOK — расход допустим.
	ReasonOK = "ok"
	// ReasonExempt — привилегированный вызывающий, лимиты не применяются.
	ReasonExempt = "exempt"
	// ReasonCapacityExceeded — остатка полосы недостаточно.
	ReasonCapacityExceeded = "capacity_exceeded"
	// ReasonCountExceeded — остаток скачиваний исчерпан.
	ReasonCountExceeded = "count_exceeded"
)

// Prometheus-метрики квот.
var (
	quotaDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vm_quota_denials_total",
		Help: "Общее количество отказов проверки квоты (по причине).",
	}, []string{"reason"})

	quotaResetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vm_quota_resets_total",
		Help: "Общее количество плановых сбросов счётчиков квот.",
	})
)

// ConsumeDecision — результат проверки квоты.
type ConsumeDecision struct {
	// Allowed — расход допустим
	Allowed bool
	// Quota — актуальная квота (после планового сброса, если он случился)
	Quota *model.UserQuota
	// Reason — причина решения (ok, exempt, capacity_exceeded, count_exceeded)
	Reason string
}

// QuotaService — учёт потребления и лимитов пользователей.
type QuotaService struct {
	repo                  repository.QuotaRepository
	defaultBytesLimit     int64
	defaultDownloadsLimit int64
	logger                *slog.Logger
}

// NewQuotaService создаёт сервис квот.
// defaultBytesLimit и defaultDownloadsLimit — лимиты, с которыми лениво
// создаётся квота при первом обращении (0 — безлимит).
func NewQuotaService(
	repo repository.QuotaRepository,
	defaultBytesLimit, defaultDownloadsLimit int64,
	logger *slog.Logger,
) *QuotaService {
	return &QuotaService{
		repo:                  repo,
		defaultBytesLimit:     defaultBytesLimit,
		defaultDownloadsLimit: defaultDownloadsLimit,
		logger:                logger.With(slog.String("component", "quota_service")),
	}
}

// GetOrCreate возвращает квоту владельца, лениво создавая её с лимитами
// по умолчанию.
func (s *QuotaService) GetOrCreate(ctx context.Context, ownerID int64) (*model.UserQuota, error) {
	q, err := s.repo.GetOrCreate(ctx, ownerID, s.defaultBytesLimit, s.defaultDownloadsLimit)
	if err != nil {
		return nil, fmt.Errorf("получение квоты: %w", err)
	}
	return q, nil
}

// Status возвращает квоту владельца с применённым плановым сбросом.
func (s *QuotaService) Status(ctx context.Context, ownerID int64) (*model.UserQuota, error) {
	q, err := s.GetOrCreate(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.applyScheduledReset(ctx, q, time.Now().UTC())
}

// CanConsume проверяет, допустим ли расход amount байт владельцем.
//
// Порядок проверки: плановый сброс → освобождение привилегированных →
// остаток полосы → остаток скачиваний. Привилегированные вызывающие
// всегда получают allowed=true с причиной exempt, но запись квоты
// материализуется и читается — расход отслеживается и без принуждения.
func (s *QuotaService) CanConsume(ctx context.Context, ownerID, amount int64, privileged bool) (*ConsumeDecision, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: отрицательный объём расхода", ErrValidation)
	}

	q, err := s.GetOrCreate(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	q, err = s.applyScheduledReset(ctx, q, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if privileged {
		return &ConsumeDecision{Allowed: true, Quota: q, Reason: ReasonExempt}, nil
	}

	if q.RemainingBytes() < float64(amount) {
		quotaDenialsTotal.WithLabelValues(ReasonCapacityExceeded).Inc()
		return &ConsumeDecision{Allowed: false, Quota: q, Reason: ReasonCapacityExceeded}, nil
	}

	if q.RemainingDownloads() <= 0 {
		quotaDenialsTotal.WithLabelValues(ReasonCountExceeded).Inc()
		return &ConsumeDecision{Allowed: false, Quota: q, Reason: ReasonCountExceeded}, nil
	}

	return &ConsumeDecision{Allowed: true, Quota: q, Reason: ReasonOK}, nil
}

// AddUsage атомарно учитывает расход: amount байт полосы и одно скачивание.
func (s *QuotaService) AddUsage(ctx context.Context, ownerID, amount int64) error {
	err := s.repo.AddUsage(ctx, ownerID, amount)
	if errors.Is(err, repository.ErrNotFound) {
		// Квота ещё не материализована — создаём и повторяем
		if _, createErr := s.GetOrCreate(ctx, ownerID); createErr != nil {
			return createErr
		}
		err = s.repo.AddUsage(ctx, ownerID, amount)
	}
	if err != nil {
		return fmt.Errorf("учёт расхода: %w", err)
	}
	return nil
}

// RemoveUsage атомарно возвращает расход. Счётчики не уходят в минус.
func (s *QuotaService) RemoveUsage(ctx context.Context, ownerID, amount int64) error {
	err := s.repo.RemoveUsage(ctx, ownerID, amount)
	if errors.Is(err, repository.ErrNotFound) {
		// Квоты нет — возвращать нечего
		return nil
	}
	if err != nil {
		return fmt.Errorf("возврат расхода: %w", err)
	}
	return nil
}

// SetLimits устанавливает лимиты владельца (админская операция, upsert).
func (s *QuotaService) SetLimits(ctx context.Context, ownerID, bytesLimit, downloadsLimit int64) error {
	if bytesLimit < 0 || downloadsLimit < 0 {
		return fmt.Errorf("%w: лимиты не могут быть отрицательными", ErrValidation)
	}

	if err := s.repo.SetLimits(ctx, ownerID, bytesLimit, downloadsLimit); err != nil {
		return fmt.Errorf("установка лимитов: %w", err)
	}

	s.logger.Info("Лимиты квоты обновлены",
		slog.Int64("owner_id", ownerID),
		slog.Int64("bytes_limit", bytesLimit),
		slog.Int64("downloads_limit", downloadsLimit),
	)

	return nil
}

// applyScheduledReset выполняет проверку планового сброса.
// reset_time отсутствует — назначаем следующую полночь UTC и считаем,
// что сброс только что произошёл (счётчики не трогаем). reset_time
// наступил — обнуляем счётчики и переносим reset_time на следующую
// полночь UTC строго после now.
func (s *QuotaService) applyScheduledReset(ctx context.Context, q *model.UserQuota, now time.Time) (*model.UserQuota, error) {
	if q.ResetTime == nil {
		next := nextMidnightUTC(now)
		if err := s.repo.SetResetTime(ctx, q.OwnerID, next); err != nil {
			return nil, fmt.Errorf("инициализация времени сброса: %w", err)
		}
		q.ResetTime = &next
		return q, nil
	}

	if now.Before(*q.ResetTime) {
		return q, nil
	}

	next := nextMidnightUTC(now)
	if err := s.repo.ResetCounters(ctx, q.OwnerID, next); err != nil {
		return nil, fmt.Errorf("плановый сброс счётчиков: %w", err)
	}

	quotaResetsTotal.Inc()
	s.logger.Info("Счётчики квоты сброшены по расписанию",
		slog.Int64("owner_id", q.OwnerID),
		slog.Time("next_reset", next),
	)

	q.BytesUsed = 0
	q.DownloadsUsed = 0
	q.ResetTime = &next
	return q, nil
}

// nextMidnightUTC возвращает ближайшую полночь UTC строго после now.
func nextMidnightUTC(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
