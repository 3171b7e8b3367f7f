// token_test.go — тесты токена скачивания: длина, окно верификации,
// сохранность действующего окна при неуспешной проверке, ограждение.
package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/tgvault/vault-module/internal/domain/model"
)

func newTokenService(repo *fakeQuotaRepo) *TokenService {
	return NewTokenService(repo, 0, 0, testLogger())
}

func TestTokenMinLength(t *testing.T) {
	svc := newTokenService(newFakeQuotaRepo())

	if err := svc.SetToken(context.Background(), 1, "abc"); !errors.Is(err, ErrValidation) {
		t.Errorf("токен короче 4 символов должен отклоняться, получено: %v", err)
	}
	if err := svc.SetToken(context.Background(), 1, "abcd"); err != nil {
		t.Errorf("токен из 4 символов должен приниматься: %v", err)
	}
}

func TestTokenVerifyOpensWindow(t *testing.T) {
	ctx := context.Background()
	repo := newFakeQuotaRepo()
	svc := newTokenService(repo)

	if err := svc.SetToken(ctx, 1, "секрет"); err != nil {
		t.Fatalf("установка токена: %v", err)
	}

	before := time.Now().UTC()
	ok, err := svc.Verify(ctx, 1, "секрет")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !ok {
		t.Fatal("совпадающий токен должен верифицироваться")
	}

	q := repo.get(1)
	if q.VerifiedUntil == nil {
		t.Fatal("окно верификации не открыто")
	}
	window := q.VerifiedUntil.Sub(before)
	if window < 29*time.Minute || window > 31*time.Minute {
		t.Errorf("окно верификации должно быть около 30 минут, получено %v", window)
	}
}

func TestTokenFailedVerifyKeepsExistingWindow(t *testing.T) {
	ctx := context.Background()
	repo := newFakeQuotaRepo()
	svc := newTokenService(repo)

	token := "секрет"
	valid := time.Now().UTC().Add(20 * time.Minute)
	repo.put(&model.UserQuota{OwnerID: 1, Token: &token, VerifiedUntil: &valid})

	ok, err := svc.Verify(ctx, 1, "не тот")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if ok {
		t.Error("несовпадающий токен не должен верифицироваться")
	}

	q := repo.get(1)
	if q.VerifiedUntil == nil || !q.VerifiedUntil.Equal(valid) {
		t.Errorf("неуспешная проверка не должна трогать действующее окно: %v", q.VerifiedUntil)
	}
}

func TestTokenVerifyWithoutToken(t *testing.T) {
	svc := newTokenService(newFakeQuotaRepo())

	if _, err := svc.Verify(context.Background(), 1, "любой"); !errors.Is(err, ErrNoToken) {
		t.Errorf("верификация без установленного токена: ожидался ErrNoToken, получено %v", err)
	}
}

func TestTokenExpiredWindowNotVerified(t *testing.T) {
	repo := newFakeQuotaRepo()
	token := "секрет"
	past := time.Now().UTC().Add(-time.Minute)
	repo.put(&model.UserQuota{OwnerID: 1, Token: &token, VerifiedUntil: &past})
	svc := newTokenService(repo)

	verified, err := svc.IsVerified(context.Background(), 1)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if verified {
		t.Error("истёкшее окно эквивалентно отсутствующему")
	}
}

func TestCheckDownloadAccess(t *testing.T) {
	ctx := context.Background()
	token := "секрет"
	future := time.Now().UTC().Add(10 * time.Minute)

	tests := []struct {
		name       string
		quota      *model.UserQuota
		privileged bool
		wantErr    error
	}{
		{
			name:       "привилегированный минует ограждение",
			quota:      nil,
			privileged: true,
			wantErr:    nil,
		},
		{
			name:    "нет токена",
			quota:   nil,
			wantErr: ErrNoToken,
		},
		{
			name:    "токен есть, верификации нет",
			quota:   &model.UserQuota{OwnerID: 1, Token: &token},
			wantErr: ErrNotVerified,
		},
		{
			name:    "токен и действующее окно",
			quota:   &model.UserQuota{OwnerID: 1, Token: &token, VerifiedUntil: &future},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeQuotaRepo()
			if tt.quota != nil {
				repo.put(tt.quota)
			}
			svc := newTokenService(repo)

			err := svc.CheckDownloadAccess(ctx, 1, tt.privileged)
			if tt.wantErr == nil && err != nil {
				t.Errorf("неожиданная ошибка: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ожидалась ошибка %v, получена %v", tt.wantErr, err)
			}
		})
	}
}
