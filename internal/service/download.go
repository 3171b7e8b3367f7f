// download.go — оркестрация скачивания.
//
// Конвейер владельческого скачивания: ограждение токеном
// (привилегированные минуют) → проверка квоты → чтение записи →
// доставка внешним коллаборатором → учёт расхода. Скачивание по коду
// общего доступа минует ограждение и квоту владельца: погашенный код
// сам по себе разрешает одну доставку.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/tgvault/vault-module/internal/domain/model"
)

// Deliverer — контракт внешнего коллаборатора доставки: по указателю
// хранения копирует байты получателю. Реализуется botclient.Client.
type Deliverer interface {
	Deliver(ctx context.Context, recipientID, channelID, messageID int64) error
}

// Prometheus-метрики скачивания.
var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vm_downloads_total",
		Help: "Общее количество запросов скачивания (по исходу).",
	}, []string{"status"})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vm_download_bytes_total",
		Help: "Суммарный размер доставленных файлов в байтах.",
	})

	deliveryFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vm_delivery_failures_total",
		Help: "Количество отказов доставки bot-module.",
	})

	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vm_download_duration_seconds",
		Help:    "Длительность конвейера скачивания в секундах.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

// DownloadService — конвейер выдачи файлов.
type DownloadService struct {
	files     *FileService
	quota     *QuotaService
	tokens    *TokenService
	shares    *ShareCodeService
	deliverer Deliverer
	logger    *slog.Logger
}

// NewDownloadService создаёт сервис скачивания.
func NewDownloadService(
	files *FileService,
	quota *QuotaService,
	tokens *TokenService,
	shares *ShareCodeService,
	deliverer Deliverer,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		files:     files,
		quota:     quota,
		tokens:    tokens,
		shares:    shares,
		deliverer: deliverer,
		logger:    logger.With(slog.String("component", "download_service")),
	}
}

// Download выдаёт владельцу его файл.
//
// Шаги:
//  1. Ограждение токеном (привилегированные минуют)
//  2. Чтение записи с проверкой владения
//  3. Проверка квоты на размер файла
//  4. Доставка через bot-module
//  5. Учёт расхода
func (ds *DownloadService) Download(ctx context.Context, recordID string, ownerID int64, privileged bool) (*model.FileRecord, error) {
	start := time.Now()

	// 1. Ограждение токеном
	if err := ds.tokens.CheckDownloadAccess(ctx, ownerID, privileged); err != nil {
		downloadsTotal.WithLabelValues("gate_refused").Inc()
		return nil, err
	}

	// 2. Запись с проверкой владения
	rec, err := ds.files.Get(ctx, recordID, ownerID, privileged)
	if err != nil {
		downloadsTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	// 3. Квота
	decision, err := ds.quota.CanConsume(ctx, ownerID, rec.FileSize, privileged)
	if err != nil {
		downloadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if !decision.Allowed {
		downloadsTotal.WithLabelValues(decision.Reason).Inc()
		switch decision.Reason {
		case ReasonCountExceeded:
			return nil, ErrCountExceeded
		default:
			return nil, ErrCapacityExceeded
		}
	}

	// 4. Доставка
	if err := ds.deliver(ctx, ownerID, rec); err != nil {
		return nil, err
	}

	// 5. Учёт расхода
	if err := ds.quota.AddUsage(ctx, ownerID, rec.FileSize); err != nil {
		ds.logger.Error("Файл доставлен, но расход не учтён",
			slog.String("record_id", rec.ID),
			slog.Int64("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	downloadsTotal.WithLabelValues("success").Inc()
	downloadBytesTotal.Add(float64(rec.FileSize))
	downloadDuration.Observe(time.Since(start).Seconds())

	ds.logger.Info("Файл доставлен владельцу",
		slog.String("record_id", rec.ID),
		slog.Int64("owner_id", ownerID),
		slog.Int64("size", rec.FileSize),
	)

	return rec, nil
}

// RedeemAndDeliver гасит код общего доступа и доставляет файл
// получателю. Владение не передаётся; ограждение и квота владельца
// не участвуют.
func (ds *DownloadService) RedeemAndDeliver(ctx context.Context, code string, recipientID int64) (*model.FileRecord, error) {
	rec, err := ds.shares.Redeem(ctx, code)
	if err != nil {
		downloadsTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	if err := ds.deliver(ctx, recipientID, rec); err != nil {
		return nil, err
	}

	downloadsTotal.WithLabelValues("success").Inc()
	downloadBytesTotal.Add(float64(rec.FileSize))

	ds.logger.Info("Файл доставлен по коду общего доступа",
		slog.String("record_id", rec.ID),
		slog.Int64("recipient_id", recipientID),
	)

	return rec, nil
}

// deliver вызывает коллаборатора доставки. Классификация ошибки от
// bot-module непрозрачна: логируется как есть, вызывающему уходит
// общий отказ ErrDeliveryFailed.
func (ds *DownloadService) deliver(ctx context.Context, recipientID int64, rec *model.FileRecord) error {
	if err := ds.deliverer.Deliver(ctx, recipientID, rec.ChannelID, rec.MessageID); err != nil {
		deliveryFailuresTotal.Inc()
		downloadsTotal.WithLabelValues("delivery_failed").Inc()
		ds.logger.Error("Отказ доставки bot-module",
			slog.String("record_id", rec.ID),
			slog.Int64("recipient_id", recipientID),
			slog.Int64("channel_id", rec.ChannelID),
			slog.Int64("message_id", rec.MessageID),
			slog.String("classification", err.Error()),
		)
		return ErrDeliveryFailed
	}
	return nil
}
