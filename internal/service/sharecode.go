// sharecode.go — выпуск и погашение коротких публичных кодов доступа.
//
// Выпуск — оптимистичный цикл check-then-set против глобального
// уникального индекса кодов без блокировок. Алфавит из 38 символов при
// длине 8 даёт 38^8 ≈ 4.3×10^12 комбинаций: даже при миллионе выпущенных
// кодов вероятность коллизии одной попытки ≈ 2×10^-7, а провал десяти
// попыток подряд практически невозможен и означает не невезение, а
// повреждение индекса. Поэтому после 10 попыток выпуск закрывается
// отказом, а не бесконечным циклом.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/tgvault/vault-module/internal/domain/model"
	"github.com/bigkaa/tgvault/vault-module/internal/repository"
)

const (
	// shareCodeLength — длина кода общего доступа.
	shareCodeLength = 8
	// shareCodeAttempts — предел попыток подбора свободного кода.
	shareCodeAttempts = 10
	// shareCodeAlphabet — URL-безопасный алфавит кода (верхний регистр).
	shareCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"
)

// Prometheus-метрики кодов общего доступа.
var (
	shareCodesIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vm_share_codes_issued_total",
		Help: "Общее количество выпущенных кодов общего доступа.",
	})
	shareCodeCollisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vm_share_code_collisions_total",
		Help: "Общее количество коллизий при выпуске кода.",
	})
	shareCodeExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vm_share_code_exhausted_total",
		Help: "Количество отказов выпуска после исчерпания попыток.",
	})
	shareCodeRedemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vm_share_code_redemptions_total",
		Help: "Общее количество погашений кодов общего доступа.",
	})
)

// ShareCodeService — выпуск и погашение кодов общего доступа.
type ShareCodeService struct {
	fileRepo repository.FileRepository
	cache    *CacheService
	logger   *slog.Logger
}

// NewShareCodeService создаёт сервис кодов общего доступа.
func NewShareCodeService(
	fileRepo repository.FileRepository,
	cache *CacheService,
	logger *slog.Logger,
) *ShareCodeService {
	return &ShareCodeService{
		fileRepo: fileRepo,
		cache:    cache,
		logger:   logger.With(slog.String("component", "share_code_service")),
	}
}

// IssueOrGet возвращает код общего доступа записи, выпуская его при
// необходимости. Идемпотентен: повторный вызов возвращает тот же код.
// Чужая или отсутствующая запись — ErrNotFound (без различия).
func (s *ShareCodeService) IssueOrGet(ctx context.Context, recordID string, ownerID int64) (string, error) {
	rec, err := s.fileRepo.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("получение записи: %w", err)
	}
	if rec.OwnerID != ownerID {
		return "", ErrNotFound
	}

	if rec.ShareCode != nil {
		return *rec.ShareCode, nil
	}

	for attempt := 1; attempt <= shareCodeAttempts; attempt++ {
		code, err := generateShareCode()
		if err != nil {
			return "", fmt.Errorf("генерация кода: %w", err)
		}

		bound, err := s.fileRepo.AssignShareCode(ctx, recordID, ownerID, code)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				// Код занят другой записью — пробуем следующий
				shareCodeCollisionsTotal.Inc()
				s.logger.Warn("Коллизия кода общего доступа",
					slog.String("record_id", recordID),
					slog.Int("attempt", attempt),
				)
				continue
			}
			return "", fmt.Errorf("привязка кода: %w", err)
		}

		if !bound {
			// Запись исчезла или код привязала параллельная попытка —
			// перечитываем и возвращаем её результат
			rec, err := s.fileRepo.GetByID(ctx, recordID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return "", ErrNotFound
				}
				return "", fmt.Errorf("повторное чтение записи: %w", err)
			}
			if rec.ShareCode != nil {
				return *rec.ShareCode, nil
			}
			continue
		}

		s.cache.Delete(recordID)
		shareCodesIssuedTotal.Inc()
		s.logger.Info("Код общего доступа выпущен",
			slog.String("record_id", recordID),
			slog.Int64("owner_id", ownerID),
			slog.Int("attempt", attempt),
		)
		return code, nil
	}

	shareCodeExhaustedTotal.Inc()
	s.logger.Error("Выпуск кода общего доступа исчерпал попытки",
		slog.String("record_id", recordID),
		slog.Int("attempts", shareCodeAttempts),
	)
	return "", ErrCollisionExhausted
}

// Lookup разрешает код общего доступа в запись без погашения:
// счётчик использований не меняется. Регистр кода на границе не важен.
func (s *ShareCodeService) Lookup(ctx context.Context, code string) (*model.FileRecord, error) {
	normalized := NormalizeShareCode(code)
	if normalized == "" {
		return nil, fmt.Errorf("%w: пустой код общего доступа", ErrValidation)
	}

	rec, err := s.fileRepo.GetByShareCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("поиск по коду: %w", err)
	}
	return rec, nil
}

// Redeem разрешает код общего доступа в запись. Чистый поиск: владение
// не передаётся, погашение лишь разрешает одну доставку. Счётчик
// использований увеличивается best-effort — его сбой не блокирует
// доставку. Регистр кода на границе не важен.
func (s *ShareCodeService) Redeem(ctx context.Context, code string) (*model.FileRecord, error) {
	rec, err := s.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := s.fileRepo.IncrementShareUses(ctx, rec.ID); err != nil {
		s.logger.Warn("Не удалось увеличить счётчик использований кода",
			slog.String("record_id", rec.ID),
			slog.String("error", err.Error()),
		)
	} else {
		rec.ShareCodeUses++
	}
	s.cache.Delete(rec.ID)

	shareCodeRedemptionsTotal.Inc()
	return rec, nil
}

// NormalizeShareCode приводит код к канонической форме:
// верхний регистр, без окружающих пробелов.
func NormalizeShareCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// generateShareCode возвращает криптослучайный код из shareCodeAlphabet.
// Выборка с отбраковкой: байты за пределами кратного алфавиту порога
// отбрасываются, иначе остаток 256 % 38 перекашивает первые символы
// алфавита.
func generateShareCode() (string, error) {
	const limit = 256 - 256%len(shareCodeAlphabet)

	out := make([]byte, 0, shareCodeLength)
	buf := make([]byte, shareCodeLength)
	for len(out) < shareCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, shareCodeAlphabet[int(b)%len(shareCodeAlphabet)])
			if len(out) == shareCodeLength {
				break
			}
		}
	}
	return string(out), nil
}
