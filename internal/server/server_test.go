// server_test.go — тесты маршрутизации: ограждение админской группы
// ролью vault-admin, допуск SA bot-module, открытые health endpoints.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bigkaa/tgvault/vault-module/internal/api/handlers"
	"github.com/bigkaa/tgvault/vault-module/internal/api/middleware"
	"github.com/bigkaa/tgvault/vault-module/internal/config"
	"github.com/bigkaa/tgvault/vault-module/internal/repository"
	"github.com/bigkaa/tgvault/vault-module/internal/service"
)

// statsOnlyRepo — заглушка FileRepository: отвечают только методы сводки,
// остальные в этих тестах не вызываются.
type statsOnlyRepo struct {
	repository.FileRepository
}

func (statsOnlyRepo) Totals(context.Context) (*repository.GlobalTotals, error) {
	return &repository.GlobalTotals{FileCount: 3, TotalBytes: 600, OwnerCount: 2}, nil
}

func (statsOnlyRepo) TopOwners(context.Context, int) ([]*repository.OwnerUsage, error) {
	return nil, nil
}

// injectClaims — подстановка claims в контекст вместо полной JWT-цепочки.
func injectClaims(claims *middleware.AuthClaims) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims != nil {
				ctx := context.WithValue(r.Context(), middleware.ContextKeyClaims, claims)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// newTestRouter собирает боевой роутер с переданными claims.
func newTestRouter(t *testing.T, claims *middleware.AuthClaims) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{Port: 8020}

	stats := service.NewStatsService(statsOnlyRepo{}, nil, logger)
	api := handlers.New(cfg, nil, nil, nil, nil, nil, nil, stats, logger)
	health := handlers.NewHealthHandler(nil, nil)

	srv := New(cfg, logger, api, health, injectClaims(claims))
	return srv.httpServer.Handler
}

func userClaims(roles ...string) *middleware.AuthClaims {
	return &middleware.AuthClaims{
		Subject:     "user-123",
		SubjectType: middleware.SubjectTypeUser,
		Roles:       roles,
	}
}

func TestAdminRoutesForbiddenWithoutRole(t *testing.T) {
	router := newTestRouter(t, userClaims("default-roles-tgvault"))

	for _, path := range []string{"/api/v1/admin/stats", "/api/v1/admin/users/1"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		if rec.Code != http.StatusForbidden {
			t.Errorf("%s без роли vault-admin: ожидался 403, получен %d", path, rec.Code)
		}
	}
}

func TestAdminRoutesUnauthorizedWithoutClaims(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("без claims ожидался 401, получен %d", rec.Code)
	}
}

func TestAdminRoutesAllowAdminUser(t *testing.T) {
	router := newTestRouter(t, userClaims(middleware.RoleAdmin))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("админ с ролью %s: ожидался 200, получен %d", middleware.RoleAdmin, rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, `"file_count":3`) {
		t.Errorf("ответ должен содержать сводку: %s", body)
	}
}

func TestAdminRoutesAllowServiceAccount(t *testing.T) {
	// bot-module проксирует админские команды со своим SA-токеном
	router := newTestRouter(t, &middleware.AuthClaims{
		Subject:     "sa-bot-module",
		SubjectType: middleware.SubjectTypeSA,
		ClientID:    "bot-module",
		Scopes:      []string{middleware.ScopeVaultRW},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("SA со scope %s: ожидался 200, получен %d", middleware.ScopeVaultRW, rec.Code)
	}
}

func TestHealthLiveOutsideAdminGate(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("liveness probe не требует авторизации: ожидался 200, получен %d", rec.Code)
	}
}
