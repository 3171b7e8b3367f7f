// Пакет server — HTTP-сервер Vault Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/tgvault/vault-module/internal/api/handlers"
	"github.com/bigkaa/tgvault/vault-module/internal/api/middleware"
	"github.com/bigkaa/tgvault/vault-module/internal/config"
)

// Таймауты HTTP-сервера.
const (
	httpReadTimeout  = 30 * time.Second
	httpWriteTimeout = 30 * time.Second
	httpIdleTimeout  = 120 * time.Second
)

// Server — HTTP-сервер Vault Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// middlewares добавляются в порядке переданного среза (metrics, logging, JWT).
func New(
	cfg *config.Config,
	logger *slog.Logger,
	api *handlers.Handler,
	health *handlers.HealthHandler,
	middlewares ...func(http.Handler) http.Handler,
) *Server {
	router := chi.NewRouter()

	// Применяем переданные middleware
	for _, mw := range middlewares {
		router.Use(mw)
	}

	// Health и метрики — вне JWT (исключения задаёт JWTAuthWithExclusions)
	router.Get("/health/live", health.HealthLive)
	router.Get("/health/ready", health.HealthReady)
	router.Get("/metrics", health.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/files", func(r chi.Router) {
			r.Post("/", api.UploadFile)
			r.Get("/", api.ListFiles)
			r.Get("/search", api.SearchFiles)
			r.Get("/{id}", api.GetFile)
			r.Patch("/{id}", api.UpdateFile)
			r.Delete("/{id}", api.DeleteFile)
			r.Post("/{id}/expiry", api.SetExpiry)
			r.Post("/{id}/download", api.DownloadFile)
			r.Post("/{id}/share-code", api.IssueShareCode)
		})

		r.Route("/share-codes", func(r chi.Router) {
			r.Get("/{code}", api.LookupShareCode)
			r.Post("/{code}/deliver", api.DeliverShareCode)
		})

		r.Route("/quotas", func(r chi.Router) {
			r.Get("/{owner_id}", api.GetQuota)
			r.Put("/{owner_id}/limits", api.SetLimits)
			r.Post("/{owner_id}/token", api.SetToken)
			r.Post("/{owner_id}/token/verify", api.VerifyToken)
		})

		// Админская статистика: роль vault-admin либо SA bot-module
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdminRole())
			r.Get("/stats", api.GetAdminStats)
			r.Get("/users/{owner_id}", api.GetAdminUser)
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  httpReadTimeout,
		WriteTimeout: httpWriteTimeout,
		IdleTimeout:  httpIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// JWTAuthWithExclusions оборачивает middleware, пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без middleware.
func JWTAuthWithExclusions(mw func(http.Handler) http.Handler, excludePrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Проверяем, начинается ли путь с исключённого префикса
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			// Применяем middleware
			mw(next).ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
