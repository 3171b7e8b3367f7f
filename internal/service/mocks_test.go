// mocks_test.go — рукописные моки репозиториев и коллабораторов
// для unit-тестов сервисного слоя. Функциональные поля: тест задаёт
// только нужные ему методы, незаданный вызов — провал теста.
package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/tgvault/vault-module/internal/domain/model"
	"github.com/bigkaa/tgvault/vault-module/internal/repository"
)

// testLogger — slog-логгер, отбрасывающий вывод.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testCache — кэш для тестов.
func testCache() *CacheService {
	return NewCacheService(16, time.Minute)
}

// --- mockFileRepo ---

type mockFileRepo struct {
	t *testing.T

	insertFn             func(ctx context.Context, f *model.FileRecord) error
	findDuplicateFn      func(ctx context.Context, ownerID int64, uniqueFileID string) (*model.FileRecord, error)
	getByIDFn            func(ctx context.Context, id string) (*model.FileRecord, error)
	getByShareCodeFn     func(ctx context.Context, code string) (*model.FileRecord, error)
	listByOwnerFn        func(ctx context.Context, ownerID int64, limit, offset int) ([]*model.FileRecord, error)
	countByOwnerFn       func(ctx context.Context, ownerID int64) (int, error)
	searchByNameFn       func(ctx context.Context, ownerID int64, substring string, limit int) ([]*model.FileRecord, error)
	searchByTagFn        func(ctx context.Context, ownerID int64, tag string, limit int) ([]*model.FileRecord, error)
	renameFn             func(ctx context.Context, id string, ownerID int64, displayName string) (bool, error)
	setTagsFn            func(ctx context.Context, id string, ownerID int64, tags []string) (bool, error)
	setExpiryFn          func(ctx context.Context, id string, ownerID int64, expiresAt *time.Time) (bool, error)
	assignShareCodeFn    func(ctx context.Context, id string, ownerID int64, code string) (bool, error)
	incrementShareUsesFn func(ctx context.Context, id string) error
	deleteFn             func(ctx context.Context, id string, ownerID int64) (bool, error)
	adminDeleteFn        func(ctx context.Context, id string) (bool, error)
	expiringWithinFn     func(ctx context.Context, from, to time.Time, limit int) ([]*model.FileRecord, error)
	purgeExpiredFn       func(ctx context.Context, now time.Time) (int64, error)
	totalsFn             func(ctx context.Context) (*repository.GlobalTotals, error)
	ownerTotalsFn        func(ctx context.Context, ownerID int64) (*repository.OwnerUsage, error)
	topOwnersFn          func(ctx context.Context, limit int) ([]*repository.OwnerUsage, error)
}

var _ repository.FileRepository = (*mockFileRepo)(nil)

func (m *mockFileRepo) Insert(ctx context.Context, f *model.FileRecord) error {
	if m.insertFn == nil {
		m.t.Fatal("неожиданный вызов Insert")
	}
	return m.insertFn(ctx, f)
}

func (m *mockFileRepo) FindDuplicate(ctx context.Context, ownerID int64, uniqueFileID string) (*model.FileRecord, error) {
	if m.findDuplicateFn == nil {
		m.t.Fatal("неожиданный вызов FindDuplicate")
	}
	return m.findDuplicateFn(ctx, ownerID, uniqueFileID)
}

func (m *mockFileRepo) GetByID(ctx context.Context, id string) (*model.FileRecord, error) {
	if m.getByIDFn == nil {
		m.t.Fatal("неожиданный вызов GetByID")
	}
	return m.getByIDFn(ctx, id)
}

func (m *mockFileRepo) GetByShareCode(ctx context.Context, code string) (*model.FileRecord, error) {
	if m.getByShareCodeFn == nil {
		m.t.Fatal("неожиданный вызов GetByShareCode")
	}
	return m.getByShareCodeFn(ctx, code)
}

func (m *mockFileRepo) ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]*model.FileRecord, error) {
	if m.listByOwnerFn == nil {
		m.t.Fatal("неожиданный вызов ListByOwner")
	}
	return m.listByOwnerFn(ctx, ownerID, limit, offset)
}

func (m *mockFileRepo) CountByOwner(ctx context.Context, ownerID int64) (int, error) {
	if m.countByOwnerFn == nil {
		m.t.Fatal("неожиданный вызов CountByOwner")
	}
	return m.countByOwnerFn(ctx, ownerID)
}

func (m *mockFileRepo) SearchByName(ctx context.Context, ownerID int64, substring string, limit int) ([]*model.FileRecord, error) {
	if m.searchByNameFn == nil {
		m.t.Fatal("неожиданный вызов SearchByName")
	}
	return m.searchByNameFn(ctx, ownerID, substring, limit)
}

func (m *mockFileRepo) SearchByTag(ctx context.Context, ownerID int64, tag string, limit int) ([]*model.FileRecord, error) {
	if m.searchByTagFn == nil {
		m.t.Fatal("неожиданный вызов SearchByTag")
	}
	return m.searchByTagFn(ctx, ownerID, tag, limit)
}

func (m *mockFileRepo) Rename(ctx context.Context, id string, ownerID int64, displayName string) (bool, error) {
	if m.renameFn == nil {
		m.t.Fatal("неожиданный вызов Rename")
	}
	return m.renameFn(ctx, id, ownerID, displayName)
}

func (m *mockFileRepo) SetTags(ctx context.Context, id string, ownerID int64, tags []string) (bool, error) {
	if m.setTagsFn == nil {
		m.t.Fatal("неожиданный вызов SetTags")
	}
	return m.setTagsFn(ctx, id, ownerID, tags)
}

func (m *mockFileRepo) SetExpiry(ctx context.Context, id string, ownerID int64, expiresAt *time.Time) (bool, error) {
	if m.setExpiryFn == nil {
		m.t.Fatal("неожиданный вызов SetExpiry")
	}
	return m.setExpiryFn(ctx, id, ownerID, expiresAt)
}

func (m *mockFileRepo) AssignShareCode(ctx context.Context, id string, ownerID int64, code string) (bool, error) {
	if m.assignShareCodeFn == nil {
		m.t.Fatal("неожиданный вызов AssignShareCode")
	}
	return m.assignShareCodeFn(ctx, id, ownerID, code)
}

func (m *mockFileRepo) IncrementShareUses(ctx context.Context, id string) error {
	if m.incrementShareUsesFn == nil {
		m.t.Fatal("неожиданный вызов IncrementShareUses")
	}
	return m.incrementShareUsesFn(ctx, id)
}

func (m *mockFileRepo) Delete(ctx context.Context, id string, ownerID int64) (bool, error) {
	if m.deleteFn == nil {
		m.t.Fatal("неожиданный вызов Delete")
	}
	return m.deleteFn(ctx, id, ownerID)
}

func (m *mockFileRepo) AdminDelete(ctx context.Context, id string) (bool, error) {
	if m.adminDeleteFn == nil {
		m.t.Fatal("неожиданный вызов AdminDelete")
	}
	return m.adminDeleteFn(ctx, id)
}

func (m *mockFileRepo) ExpiringWithin(ctx context.Context, from, to time.Time, limit int) ([]*model.FileRecord, error) {
	if m.expiringWithinFn == nil {
		m.t.Fatal("неожиданный вызов ExpiringWithin")
	}
	return m.expiringWithinFn(ctx, from, to, limit)
}

func (m *mockFileRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.purgeExpiredFn == nil {
		m.t.Fatal("неожиданный вызов PurgeExpired")
	}
	return m.purgeExpiredFn(ctx, now)
}

func (m *mockFileRepo) Totals(ctx context.Context) (*repository.GlobalTotals, error) {
	if m.totalsFn == nil {
		m.t.Fatal("неожиданный вызов Totals")
	}
	return m.totalsFn(ctx)
}

func (m *mockFileRepo) OwnerTotals(ctx context.Context, ownerID int64) (*repository.OwnerUsage, error) {
	if m.ownerTotalsFn == nil {
		m.t.Fatal("неожиданный вызов OwnerTotals")
	}
	return m.ownerTotalsFn(ctx, ownerID)
}

func (m *mockFileRepo) TopOwners(ctx context.Context, limit int) ([]*repository.OwnerUsage, error) {
	if m.topOwnersFn == nil {
		m.t.Fatal("неожиданный вызов TopOwners")
	}
	return m.topOwnersFn(ctx, limit)
}

// --- fakeQuotaRepo ---

// fakeQuotaRepo — in-memory реализация QuotaRepository: квоты сервисного
// слоя удобнее проверять против работающего хранилища, чем через
// перечисление вызовов.
type fakeQuotaRepo struct {
	mu     sync.Mutex
	quotas map[int64]*model.UserQuota

	// failAddUsage — имитация отказа AddUsage
	failAddUsage error
}

var _ repository.QuotaRepository = (*fakeQuotaRepo)(nil)

func newFakeQuotaRepo() *fakeQuotaRepo {
	return &fakeQuotaRepo{quotas: make(map[int64]*model.UserQuota)}
}

// put кладёт квоту напрямую (подготовка теста).
func (f *fakeQuotaRepo) put(q *model.UserQuota) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotas[q.OwnerID] = q
}

// get читает квоту напрямую (проверка теста).
func (f *fakeQuotaRepo) get(ownerID int64) *model.UserQuota {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quotas[ownerID]
}

func (f *fakeQuotaRepo) GetOrCreate(_ context.Context, ownerID, defaultBytesLimit, defaultDownloadsLimit int64) (*model.UserQuota, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if q, ok := f.quotas[ownerID]; ok {
		cp := *q
		return &cp, nil
	}
	q := &model.UserQuota{
		OwnerID:        ownerID,
		BytesLimit:     defaultBytesLimit,
		DownloadsLimit: defaultDownloadsLimit,
		UpdatedAt:      time.Now().UTC(),
	}
	f.quotas[ownerID] = q
	cp := *q
	return &cp, nil
}

func (f *fakeQuotaRepo) GetByOwner(_ context.Context, ownerID int64) (*model.UserQuota, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotas[ownerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (f *fakeQuotaRepo) AddUsage(_ context.Context, ownerID, bytes int64) error {
	if f.failAddUsage != nil {
		return f.failAddUsage
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotas[ownerID]
	if !ok {
		return repository.ErrNotFound
	}
	q.BytesUsed += bytes
	q.DownloadsUsed++
	return nil
}

func (f *fakeQuotaRepo) RemoveUsage(_ context.Context, ownerID, bytes int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotas[ownerID]
	if !ok {
		return repository.ErrNotFound
	}
	q.BytesUsed -= bytes
	if q.BytesUsed < 0 {
		q.BytesUsed = 0
	}
	if q.DownloadsUsed > 0 {
		q.DownloadsUsed--
	}
	return nil
}

func (f *fakeQuotaRepo) ResetCounters(_ context.Context, ownerID int64, nextReset time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotas[ownerID]
	if !ok {
		return repository.ErrNotFound
	}
	q.BytesUsed = 0
	q.DownloadsUsed = 0
	q.ResetTime = &nextReset
	return nil
}

func (f *fakeQuotaRepo) SetResetTime(_ context.Context, ownerID int64, resetTime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotas[ownerID]
	if !ok {
		return repository.ErrNotFound
	}
	q.ResetTime = &resetTime
	return nil
}

func (f *fakeQuotaRepo) SetLimits(_ context.Context, ownerID, bytesLimit, downloadsLimit int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotas[ownerID]
	if !ok {
		q = &model.UserQuota{OwnerID: ownerID}
		f.quotas[ownerID] = q
	}
	q.BytesLimit = bytesLimit
	q.DownloadsLimit = downloadsLimit
	return nil
}

func (f *fakeQuotaRepo) SetToken(_ context.Context, ownerID int64, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotas[ownerID]
	if !ok {
		return repository.ErrNotFound
	}
	q.Token = &token
	return nil
}

func (f *fakeQuotaRepo) SetVerifiedUntil(_ context.Context, ownerID int64, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotas[ownerID]
	if !ok {
		return repository.ErrNotFound
	}
	q.VerifiedUntil = &until
	return nil
}

// --- mockDeliverer / mockNotifier ---

// mockDeliverer — мок коллаборатора доставки.
type mockDeliverer struct {
	deliverFn func(ctx context.Context, recipientID, channelID, messageID int64) error
	calls     int
}

func (m *mockDeliverer) Deliver(ctx context.Context, recipientID, channelID, messageID int64) error {
	m.calls++
	if m.deliverFn == nil {
		return nil
	}
	return m.deliverFn(ctx, recipientID, channelID, messageID)
}

// mockNotifier — мок коллаборатора уведомлений.
type mockNotifier struct {
	notifyFn func(ctx context.Context, recipientID int64, text string) error
	sent     []int64
}

func (m *mockNotifier) Notify(ctx context.Context, recipientID int64, text string) error {
	m.sent = append(m.sent, recipientID)
	if m.notifyFn == nil {
		return nil
	}
	return m.notifyFn(ctx, recipientID, text)
}
