// upload_test.go — тесты регистрации загрузки: дедупликация до записи,
// валидация, осиротевший файл при сбое вставки, срок хранения и учёт
// расхода по умолчанию.
package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/tgvault/vault-module/internal/domain/model"
	"github.com/bigkaa/tgvault/vault-module/internal/repository"
)

const testMaxFileSize = int64(50 * 1024 * 1024)

func newUploadService(fileRepo *mockFileRepo, quotaRepo *fakeQuotaRepo, defaultExpiryDays int) *UploadService {
	quota := NewQuotaService(quotaRepo, 0, 0, testLogger())
	return NewUploadService(fileRepo, quota, testMaxFileSize, defaultExpiryDays, testLogger())
}

// validUploadRequest — корректный запрос-заготовка.
func validUploadRequest() *UploadRequest {
	return &UploadRequest{
		OwnerID:              1,
		OriginalFilename:     "отчёт.pdf",
		FileKind:             "document",
		FileSize:             1024,
		ChannelID:            -100200,
		MessageID:            42,
		PlatformFileID:       "BQACAgIAAxkBAAN",
		PlatformFileUniqueID: "AgADtQQAAt",
	}
}

func TestUploadDuplicateReturnsExistingWithoutUsage(t *testing.T) {
	existing := &model.FileRecord{ID: "rec-1", OwnerID: 1, FileSize: 1024}
	fileRepo := &mockFileRepo{
		t: t,
		findDuplicateFn: func(_ context.Context, ownerID int64, uniqueFileID string) (*model.FileRecord, error) {
			if ownerID != 1 || uniqueFileID != "AgADtQQAAt" {
				t.Errorf("дедупликация запрошена с неверными ключами: owner=%d unique=%q", ownerID, uniqueFileID)
			}
			return existing, nil
		},
		// Insert не задан: попадание дедупликации не должно ничего писать
	}
	quotaRepo := newFakeQuotaRepo()
	svc := newUploadService(fileRepo, quotaRepo, 0)

	rec, duplicate, err := svc.Register(context.Background(), validUploadRequest())
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !duplicate {
		t.Error("повторная загрузка должна помечаться duplicate=true")
	}
	if rec.ID != "rec-1" {
		t.Errorf("должна вернуться существующая запись, получена %q", rec.ID)
	}
	if quotaRepo.get(1) != nil {
		t.Error("попадание дедупликации не должно трогать расход квоты")
	}
}

func TestUploadValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *UploadRequest)
	}{
		{"нулевой владелец", func(r *UploadRequest) { r.OwnerID = 0 }},
		{"пустое имя файла", func(r *UploadRequest) { r.OriginalFilename = "" }},
		{"пустой тип содержимого", func(r *UploadRequest) { r.FileKind = "" }},
		{"нулевой размер", func(r *UploadRequest) { r.FileSize = 0 }},
		{"размер сверх предела", func(r *UploadRequest) { r.FileSize = testMaxFileSize + 1 }},
		{"нет channel_id", func(r *UploadRequest) { r.ChannelID = 0 }},
		{"нет message_id", func(r *UploadRequest) { r.MessageID = 0 }},
		{"нет идентификатора платформы", func(r *UploadRequest) { r.PlatformFileID = "" }},
		{"нет стабильного идентификатора", func(r *UploadRequest) { r.PlatformFileUniqueID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Моки без методов: обращение к хранилищу провалит тест
			svc := newUploadService(&mockFileRepo{t: t}, newFakeQuotaRepo(), 0)
			req := validUploadRequest()
			tt.mutate(req)

			if _, _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrValidation) {
				t.Errorf("ожидался ErrValidation, получено %v", err)
			}
		})
	}
}

func TestUploadDedupRaceAdmitsBothInserts(t *testing.T) {
	// Принятое окно гонки: find_duplicate → insert не атомарны.
	// Две одновременные загрузки одного файла, обе промахнувшиеся
	// мимо дедупликации, создают две записи — без ошибок и с учётом
	// расхода за каждую. Чтение разрешает дубль детерминированно
	// в пользу самой ранней записи (см. тесты репозитория).
	inserts := 0
	fileRepo := &mockFileRepo{
		t: t,
		findDuplicateFn: func(_ context.Context, _ int64, _ string) (*model.FileRecord, error) {
			return nil, repository.ErrNotFound
		},
		insertFn: func(_ context.Context, _ *model.FileRecord) error {
			inserts++
			return nil
		},
	}
	quotaRepo := newFakeQuotaRepo()
	svc := newUploadService(fileRepo, quotaRepo, 0)

	first, _, err := svc.Register(context.Background(), validUploadRequest())
	if err != nil {
		t.Fatalf("первая загрузка: %v", err)
	}
	second, duplicate, err := svc.Register(context.Background(), validUploadRequest())
	if err != nil {
		t.Fatalf("вторая загрузка в окне гонки: %v", err)
	}

	if duplicate {
		t.Error("промах дедупликации не помечается дубликатом")
	}
	if inserts != 2 {
		t.Errorf("обе загрузки должны вставиться: вставок %d", inserts)
	}
	if first.ID == second.ID {
		t.Error("записи окна гонки различны")
	}
	if q := quotaRepo.get(1); q == nil || q.BytesUsed != 2048 {
		t.Error("расход учитывается за каждую вставку окна гонки")
	}
}

func TestUploadInsertFailureLeavesQuotaUntouched(t *testing.T) {
	fileRepo := &mockFileRepo{
		t: t,
		findDuplicateFn: func(_ context.Context, _ int64, _ string) (*model.FileRecord, error) {
			return nil, repository.ErrNotFound
		},
		insertFn: func(_ context.Context, _ *model.FileRecord) error {
			return errors.New("обрыв соединения")
		},
	}
	quotaRepo := newFakeQuotaRepo()
	svc := newUploadService(fileRepo, quotaRepo, 0)

	if _, _, err := svc.Register(context.Background(), validUploadRequest()); err == nil {
		t.Fatal("сбой вставки должен возвращать ошибку")
	}
	if quotaRepo.get(1) != nil {
		t.Error("при осиротевшем файле расход квоты не должен учитываться")
	}
}

func TestUploadInsertConflict(t *testing.T) {
	fileRepo := &mockFileRepo{
		t: t,
		findDuplicateFn: func(_ context.Context, _ int64, _ string) (*model.FileRecord, error) {
			return nil, repository.ErrNotFound
		},
		insertFn: func(_ context.Context, _ *model.FileRecord) error {
			return repository.ErrConflict
		},
	}
	svc := newUploadService(fileRepo, newFakeQuotaRepo(), 0)

	if _, _, err := svc.Register(context.Background(), validUploadRequest()); !errors.Is(err, ErrConflict) {
		t.Errorf("занятый указатель хранения: ожидался ErrConflict, получено %v", err)
	}
}

func TestUploadSuccessCreatesRecordAndAddsUsage(t *testing.T) {
	var inserted *model.FileRecord
	fileRepo := &mockFileRepo{
		t: t,
		findDuplicateFn: func(_ context.Context, _ int64, _ string) (*model.FileRecord, error) {
			return nil, repository.ErrNotFound
		},
		insertFn: func(_ context.Context, rec *model.FileRecord) error {
			inserted = rec
			return nil
		},
	}
	quotaRepo := newFakeQuotaRepo()
	svc := newUploadService(fileRepo, quotaRepo, 7)

	req := validUploadRequest()
	req.Tags = []string{"#Отчёт", "отчёт", "  ", "финансы"}

	before := time.Now().UTC()
	rec, duplicate, err := svc.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if duplicate {
		t.Error("новая запись не должна помечаться дубликатом")
	}
	if inserted == nil || inserted != rec {
		t.Fatal("возвращена не вставленная запись")
	}

	if rec.ID == "" {
		t.Error("записи не назначен идентификатор")
	}
	if rec.Version != model.SchemaVersion {
		t.Errorf("версия схемы записи: ожидалась %d, получена %d", model.SchemaVersion, rec.Version)
	}
	if got := rec.Tags; len(got) != 2 || got[0] != "отчёт" || got[1] != "финансы" {
		t.Errorf("теги должны нормализоваться с дедупликацией: %v", got)
	}

	// Срок хранения по умолчанию: 7 дней от момента регистрации
	if rec.ExpiresAt == nil {
		t.Fatal("срок хранения по умолчанию не назначен")
	}
	want := before.AddDate(0, 0, 7)
	if diff := rec.ExpiresAt.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("срок хранения должен быть около %v, получен %v", want, rec.ExpiresAt)
	}

	q := quotaRepo.get(1)
	if q == nil {
		t.Fatal("расход загрузки не учтён: квота не материализована")
	}
	if q.BytesUsed != 1024 {
		t.Errorf("учтённый расход полосы: ожидалось 1024, получено %d", q.BytesUsed)
	}
}

func TestUploadZeroDefaultExpiryMeansUnlimited(t *testing.T) {
	fileRepo := &mockFileRepo{
		t: t,
		findDuplicateFn: func(_ context.Context, _ int64, _ string) (*model.FileRecord, error) {
			return nil, repository.ErrNotFound
		},
		insertFn: func(_ context.Context, _ *model.FileRecord) error {
			return nil
		},
	}
	svc := newUploadService(fileRepo, newFakeQuotaRepo(), 0)

	rec, _, err := svc.Register(context.Background(), validUploadRequest())
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if rec.ExpiresAt != nil {
		t.Errorf("при нулевом сроке по умолчанию запись бессрочна: %v", rec.ExpiresAt)
	}
}

func TestUploadUsageFailureReturnsError(t *testing.T) {
	fileRepo := &mockFileRepo{
		t: t,
		findDuplicateFn: func(_ context.Context, _ int64, _ string) (*model.FileRecord, error) {
			return nil, repository.ErrNotFound
		},
		insertFn: func(_ context.Context, _ *model.FileRecord) error {
			return nil
		},
	}
	quotaRepo := newFakeQuotaRepo()
	quotaRepo.failAddUsage = errors.New("обрыв соединения")
	svc := newUploadService(fileRepo, quotaRepo, 0)

	if _, _, err := svc.Register(context.Background(), validUploadRequest()); err == nil {
		t.Error("неучтённый расход после вставки должен возвращаться как ошибка")
	}
}
