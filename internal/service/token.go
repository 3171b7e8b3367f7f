// token.go — сервис токена скачивания (общий секрет + окно верификации).
//
// Успешная верификация открывает окно на 30 минут; скачивание (для
// непривилегированных) требует и установленного токена, и действующего
// окна. Отказы различимы: "нет токена" и "не верифицирован" — чтобы
// вызывающий мог подсказать правильный следующий шаг.
package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/tgvault/vault-module/internal/repository"
)

const (
	// verificationWindow — длительность окна верификации после
	// успешной проверки токена.
	verificationWindow = 30 * time.Minute
	// tokenMinLength — минимальная длина токена.
	tokenMinLength = 4
)

// TokenService — установка и верификация токена скачивания.
type TokenService struct {
	repo                  repository.QuotaRepository
	defaultBytesLimit     int64
	defaultDownloadsLimit int64
	logger                *slog.Logger
}

// NewTokenService создаёт сервис токенов.
// Токен хранится в записи квоты, поэтому сервису нужны те же лимиты
// по умолчанию для ленивой материализации записи.
func NewTokenService(
	repo repository.QuotaRepository,
	defaultBytesLimit, defaultDownloadsLimit int64,
	logger *slog.Logger,
) *TokenService {
	return &TokenService{
		repo:                  repo,
		defaultBytesLimit:     defaultBytesLimit,
		defaultDownloadsLimit: defaultDownloadsLimit,
		logger:                logger.With(slog.String("component", "token_service")),
	}
}

// SetToken безусловно перезаписывает токен владельца.
// Смена токена не требует повторной аутентификации — принятый
// компромисс: токен защищает скачивание, а не учётную запись.
func (s *TokenService) SetToken(ctx context.Context, ownerID int64, token string) error {
	if len(token) < tokenMinLength {
		return fmt.Errorf("%w: токен короче %d символов", ErrValidation, tokenMinLength)
	}

	if _, err := s.repo.GetOrCreate(ctx, ownerID, s.defaultBytesLimit, s.defaultDownloadsLimit); err != nil {
		return fmt.Errorf("материализация квоты: %w", err)
	}

	if err := s.repo.SetToken(ctx, ownerID, token); err != nil {
		return fmt.Errorf("установка токена: %w", err)
	}

	s.logger.Info("Токен скачивания обновлён",
		slog.Int64("owner_id", ownerID),
	)

	return nil
}

// Verify сравнивает кандидата с хранимым токеном. Совпадение открывает
// окно верификации на 30 минут и возвращает true. Несовпадение
// возвращает false и не трогает прежнее состояние верификации.
func (s *TokenService) Verify(ctx context.Context, ownerID int64, candidate string) (bool, error) {
	q, err := s.repo.GetOrCreate(ctx, ownerID, s.defaultBytesLimit, s.defaultDownloadsLimit)
	if err != nil {
		return false, fmt.Errorf("получение квоты: %w", err)
	}

	if q.Token == nil {
		return false, ErrNoToken
	}

	if subtle.ConstantTimeCompare([]byte(*q.Token), []byte(candidate)) != 1 {
		s.logger.Warn("Неуспешная попытка верификации токена",
			slog.Int64("owner_id", ownerID),
		)
		return false, nil
	}

	until := time.Now().UTC().Add(verificationWindow)
	if err := s.repo.SetVerifiedUntil(ctx, ownerID, until); err != nil {
		return false, fmt.Errorf("открытие окна верификации: %w", err)
	}

	s.logger.Info("Токен верифицирован",
		slog.Int64("owner_id", ownerID),
		slog.Time("verified_until", until),
	)

	return true, nil
}

// IsVerified сообщает, действует ли окно верификации владельца.
// Окно в прошлом эквивалентно отсутствующему.
func (s *TokenService) IsVerified(ctx context.Context, ownerID int64) (bool, error) {
	q, err := s.repo.GetOrCreate(ctx, ownerID, s.defaultBytesLimit, s.defaultDownloadsLimit)
	if err != nil {
		return false, fmt.Errorf("получение квоты: %w", err)
	}
	return q.IsVerified(time.Now().UTC()), nil
}

// CheckDownloadAccess — контракт ограждения скачивания.
// Привилегированные вызывающие минуют ограждение целиком. Остальным
// нужен установленный токен И действующая верификация; отказы
// различимы (ErrNoToken / ErrNotVerified).
func (s *TokenService) CheckDownloadAccess(ctx context.Context, ownerID int64, privileged bool) error {
	if privileged {
		return nil
	}

	q, err := s.repo.GetOrCreate(ctx, ownerID, s.defaultBytesLimit, s.defaultDownloadsLimit)
	if err != nil {
		return fmt.Errorf("получение квоты: %w", err)
	}

	if q.Token == nil {
		return ErrNoToken
	}
	if !q.IsVerified(time.Now().UTC()) {
		return ErrNotVerified
	}
	return nil
}
