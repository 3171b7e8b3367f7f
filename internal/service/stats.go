// stats.go — админская статистика хранилища.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/tgvault/vault-module/internal/domain/model"
	"github.com/bigkaa/tgvault/vault-module/internal/repository"
)

const (
	// topOwnersLimit — сколько крупнейших владельцев показывает сводка.
	topOwnersLimit = 10
	// recentFilesLimit — сколько последних файлов входит в карточку пользователя.
	recentFilesLimit = 5
)

// GlobalStats — сводные показатели хранилища.
type GlobalStats struct {
	// Totals — общие показатели: файлы, байты, владельцы
	Totals *repository.GlobalTotals
	// TopOwners — крупнейшие владельцы по занятому месту
	TopOwners []*repository.OwnerUsage
}

// UserStats — карточка одного пользователя.
type UserStats struct {
	// Quota — квота с применённым плановым сбросом
	Quota *model.UserQuota
	// Usage — количество и суммарный размер файлов
	Usage *repository.OwnerUsage
	// RecentFiles — последние загруженные файлы
	RecentFiles []*model.FileRecord
}

// StatsService — статистика для админской панели.
type StatsService struct {
	fileRepo repository.FileRepository
	quota    *QuotaService
	logger   *slog.Logger
}

// NewStatsService создаёт сервис статистики.
func NewStatsService(
	fileRepo repository.FileRepository,
	quota *QuotaService,
	logger *slog.Logger,
) *StatsService {
	return &StatsService{
		fileRepo: fileRepo,
		quota:    quota,
		logger:   logger.With(slog.String("component", "stats_service")),
	}
}

// Global возвращает сводные показатели хранилища и крупнейших владельцев.
func (s *StatsService) Global(ctx context.Context) (*GlobalStats, error) {
	totals, err := s.fileRepo.Totals(ctx)
	if err != nil {
		return nil, fmt.Errorf("сводные показатели: %w", err)
	}

	top, err := s.fileRepo.TopOwners(ctx, topOwnersLimit)
	if err != nil {
		return nil, fmt.Errorf("крупнейшие владельцы: %w", err)
	}

	return &GlobalStats{Totals: totals, TopOwners: top}, nil
}

// User возвращает карточку пользователя: квоту, занятое место и
// последние файлы.
func (s *StatsService) User(ctx context.Context, ownerID int64) (*UserStats, error) {
	quota, err := s.quota.Status(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	usage, err := s.fileRepo.OwnerTotals(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("показатели владельца: %w", err)
	}

	recent, err := s.fileRepo.ListByOwner(ctx, ownerID, recentFilesLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("последние файлы: %w", err)
	}

	return &UserStats{Quota: quota, Usage: usage, RecentFiles: recent}, nil
}
