// Точка входа Vault Module — ядро файлового хранилища платформы tgvault.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// создаёт клиент bot-module, репозитории и сервисный слой, запускает
// фоновые задачи (обходчик истечений, topologymetrics), HTTP-сервер
// с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/tgvault/vault-module/internal/api/handlers"
	"github.com/bigkaa/tgvault/vault-module/internal/api/middleware"
	"github.com/bigkaa/tgvault/vault-module/internal/botclient"
	"github.com/bigkaa/tgvault/vault-module/internal/config"
	"github.com/bigkaa/tgvault/vault-module/internal/database"
	"github.com/bigkaa/tgvault/vault-module/internal/repository"
	"github.com/bigkaa/tgvault/vault-module/internal/server"
	"github.com/bigkaa/tgvault/vault-module/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Vault Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Предупреждение о дефолтной группе topologymetrics
	if os.Getenv("VM_DEPHEALTH_GROUP") == "" {
		logger.Warn("VM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Клиент bot-module (доставка файлов и уведомления)
	botClient, err := botclient.New(cfg.BotURL, cfg.BotToken, cfg.CACertPath, cfg.BotTimeout, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента bot-module", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Клиент bot-module создан", slog.String("url", cfg.BotURL))

	// 6. Repositories
	fileRepo := repository.NewFileRepository(pool)
	quotaRepo := repository.NewQuotaRepository(pool)

	// 7. Services
	cacheSvc := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)
	quotaSvc := service.NewQuotaService(
		quotaRepo,
		cfg.DefaultCapacityBytes(), cfg.DefaultCountLimit,
		logger,
	)
	tokenSvc := service.NewTokenService(
		quotaRepo,
		cfg.DefaultCapacityBytes(), cfg.DefaultCountLimit,
		logger,
	)
	fileSvc := service.NewFileService(fileRepo, cacheSvc, cfg.PageSize, logger)
	shareSvc := service.NewShareCodeService(fileRepo, cacheSvc, logger)
	uploadSvc := service.NewUploadService(
		fileRepo, quotaSvc,
		cfg.MaxFileSizeBytes(), cfg.DefaultExpiryDays,
		logger,
	)
	downloadSvc := service.NewDownloadService(
		fileSvc, quotaSvc, tokenSvc, shareSvc, botClient,
		logger,
	)
	statsSvc := service.NewStatsService(fileRepo, quotaSvc, logger)

	// 8. Обходчик истечений
	expirySvc := service.NewExpiryService(fileRepo, botClient, cfg.SweepInterval, logger)
	expirySvc.Start(ctx)

	// 8.1 topologymetrics — мониторинг зависимостей (PostgreSQL + bot-module)
	var dephealthSvc *service.DephealthService
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"vault-module",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.BotURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 9. Readiness checkers (PostgreSQL + JWKS)
	pgChecker := database.NewReadinessChecker(pool)
	jwksChecker, err := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.CACertPath)
	if err != nil {
		logger.Error("Ошибка создания JWKS readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, jwksChecker)

	// 10. API handler
	apiHandler := handlers.New(
		cfg,
		uploadSvc,
		fileSvc,
		downloadSvc,
		shareSvc,
		quotaSvc,
		tokenSvc,
		statsSvc,
		logger,
	)

	// 11. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.CACertPath,
		cfg.JWTIssuer,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 12. Создание и запуск HTTP-сервера.
	// Health и метрики исключены из JWT-аутентификации.
	srv := server.New(cfg, logger, apiHandler, healthHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
		server.JWTAuthWithExclusions(jwtAuth.Middleware(), "/health/", "/metrics"),
	)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	expirySvc.Stop()

	logger.Info("Vault Module остановлен")
}
