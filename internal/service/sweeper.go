// sweeper.go — фоновый обход истекающих файлов.
//
// Каждый тик: записи с expires_at в окне ближайших 24 часов группируются
// по владельцу, каждому уходит одно агрегированное предупреждение со
// списком файлов. Обходчик только предупреждает — сами истёкшие записи
// вычищает хранилище своим механизмом по expires_at (здесь он выражен
// отдельным шагом очистки в начале тика). Отказ уведомления одного
// владельца не прерывает обход остальных.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/tgvault/vault-module/internal/domain/model"
	"github.com/bigkaa/tgvault/vault-module/internal/repository"
)

const (
	// sweepWindow — горизонт предупреждения об истечении.
	sweepWindow = 24 * time.Hour
	// sweepBatchLimit — предел записей, рассматриваемых за тик.
	sweepBatchLimit = 200
)

// Notifier — контракт внешнего коллаборатора уведомлений.
// Реализуется botclient.Client.
type Notifier interface {
	Notify(ctx context.Context, recipientID int64, text string) error
}

// Prometheus-метрики обходчика.
var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vm_sweep_runs_total",
		Help: "Общее количество запусков обходчика истечений.",
	})
	sweepWarnedOwnersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vm_sweep_warned_owners_total",
		Help: "Количество владельцев, получивших предупреждение об истечении.",
	})
	sweepNotifyFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vm_sweep_notify_failures_total",
		Help: "Количество отказов отправки предупреждения.",
	})
	sweepPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vm_sweep_purged_total",
		Help: "Количество записей, вычищенных по истечении expires_at.",
	})
	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vm_sweep_duration_seconds",
		Help:    "Длительность одного обхода в секундах.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

// SweepResult — результат одного обхода.
type SweepResult struct {
	// Purged — количество вычищенных истёкших записей
	Purged int64
	// Expiring — количество записей в окне предупреждения
	Expiring int
	// WarnedOwners — количество владельцев, получивших уведомление
	WarnedOwners int
	// Failures — количество владельцев, которым уведомление не ушло
	Failures int
	// Duration — длительность обхода
	Duration time.Duration
}

// ExpiryService — периодический обходчик истекающих файлов.
type ExpiryService struct {
	fileRepo repository.FileRepository
	notifier Notifier
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewExpiryService создаёт обходчик истечений.
func NewExpiryService(
	fileRepo repository.FileRepository,
	notifier Notifier,
	interval time.Duration,
	logger *slog.Logger,
) *ExpiryService {
	return &ExpiryService{
		fileRepo: fileRepo,
		notifier: notifier,
		interval: interval,
		logger:   logger.With(slog.String("component", "expiry_sweeper")),
	}
}

// Start запускает фоновую горутину обходчика с периодическим тикером.
// Вызывается один раз при старте приложения.
func (s *ExpiryService) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(sweepCtx)

	s.logger.Info("Обходчик истечений запущен",
		slog.String("interval", s.interval.String()),
	)
}

// Stop останавливает фоновый процесс обходчика.
func (s *ExpiryService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Обходчик истечений остановлен")
}

// run — основной цикл фоновой горутины.
func (s *ExpiryService) run(ctx context.Context) {
	// Первый запуск — сразу после старта
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один обход. Потокобезопасен: mutex защищает от
// параллельного запуска.
func (s *ExpiryService) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	now := start.UTC()
	result := &SweepResult{}

	s.logger.Debug("Обход истечений начат")

	// Шаг хранилища: вычистка записей с наступившим expires_at.
	// Байты в канале к этому моменту недостижимы по смыслу записи.
	purged, err := s.fileRepo.PurgeExpired(ctx, now)
	if err != nil {
		s.logger.Error("Ошибка вычистки истёкших записей",
			slog.String("error", err.Error()),
		)
	} else {
		result.Purged = purged
		sweepPurgedTotal.Add(float64(purged))
	}

	// Окно предупреждения: [now, now+24h)
	expiring, err := s.fileRepo.ExpiringWithin(ctx, now, now.Add(sweepWindow), sweepBatchLimit)
	if err != nil {
		s.logger.Error("Ошибка выборки истекающих записей",
			slog.String("error", err.Error()),
		)
		return result
	}
	result.Expiring = len(expiring)

	// Группировка по владельцу: одно агрегированное сообщение каждому
	byOwner := make(map[int64][]*model.FileRecord)
	for _, rec := range expiring {
		byOwner[rec.OwnerID] = append(byOwner[rec.OwnerID], rec)
	}

	// Детерминированный порядок обхода владельцев
	owners := make([]int64, 0, len(byOwner))
	for owner := range byOwner {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })

	for _, owner := range owners {
		text := buildExpiryDigest(byOwner[owner])
		if err := s.notifier.Notify(ctx, owner, text); err != nil {
			// Отказ изолирован: логируем и идём к следующему владельцу
			result.Failures++
			sweepNotifyFailuresTotal.Inc()
			s.logger.Error("Предупреждение об истечении не доставлено",
				slog.Int64("owner_id", owner),
				slog.Int("records", len(byOwner[owner])),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.WarnedOwners++
		sweepWarnedOwnersTotal.Inc()
	}

	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	s.logger.Info("Обход истечений завершён",
		slog.Int64("purged", result.Purged),
		slog.Int("expiring", result.Expiring),
		slog.Int("warned_owners", result.WarnedOwners),
		slog.Int("failures", result.Failures),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// buildExpiryDigest собирает одно агрегированное предупреждение:
// имя, размер и время истечения каждого файла владельца.
func buildExpiryDigest(records []*model.FileRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Срок хранения истекает у файлов: %d. После истечения они будут удалены безвозвратно.\n", len(records))
	for _, rec := range records {
		expires := "—"
		if rec.ExpiresAt != nil {
			expires = rec.ExpiresAt.UTC().Format("2006-01-02 15:04 UTC")
		}
		fmt.Fprintf(&b, "• %s (%s) — до %s\n", rec.EffectiveName(), humanSize(rec.FileSize), expires)
	}
	return b.String()
}

// humanSize форматирует размер в байтах для человека.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d Б", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	suffixes := []string{"КБ", "МБ", "ГБ", "ТБ"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), suffixes[exp])
}
