// Точка входа Package Store — хранилища метаданных временных пакетов файлов.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/package-store/internal/api/handlers"
	"github.com/bigkaa/goartstore/package-store/internal/api/openapi"
	"github.com/bigkaa/goartstore/package-store/internal/config"
	"github.com/bigkaa/goartstore/package-store/internal/database"
	"github.com/bigkaa/goartstore/package-store/internal/server"
	"github.com/bigkaa/goartstore/package-store/internal/service"
	"github.com/bigkaa/goartstore/package-store/internal/storage/docstore"
	"github.com/bigkaa/goartstore/package-store/internal/storage/medium"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("Package Store запускается",
		slog.String("service_id", cfg.ServiceID),
		slog.String("version", config.Version),
		slog.String("backend", cfg.Backend),
		slog.Int("port", cfg.Port),
		slog.Duration("package_ttl", cfg.PackageTTL),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Ошибка Package Store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Package Store остановлен")
}

// run собирает компоненты и блокируется до остановки HTTP-сервера.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Носитель документа и зависимости для topologymetrics
	m, deps, cleanup, err := openMedium(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// 2. Хранилище документа
	store := docstore.New(m, cfg.StoreMaxAttempts, logger)
	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("инициализация хранилища %s: %w", store.MediumName(), err)
	}
	logger.Info("Хранилище пакетов готово", slog.String("medium", store.MediumName()))

	// 3. Сервисы
	packageSvc := service.NewPackageService(store, cfg.PackageTTL, logger)
	validationSvc := service.NewValidationService(store, logger)

	// 4. topologymetrics — только для внешних носителей
	var depHealth handlers.DependencyHealth
	dephealthSvc, err := service.NewDephealthService(cfg.ServiceID, cfg.DephealthGroup, deps, logger)
	switch {
	case err == nil:
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		} else {
			depHealth = dephealthSvc
			defer dephealthSvc.Stop()
		}
	case errors.Is(err, service.ErrNoDependencies):
		logger.Debug("Носитель без внешних зависимостей, topologymetrics не запускается")
	default:
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	}

	// 5. Контракт API
	doc, err := openapi.Load()
	if err != nil {
		return err
	}
	specHandler, err := openapi.SpecJSONHandler(doc)
	if err != nil {
		return err
	}

	// 6. Handlers
	apiHandler := handlers.NewAPIHandler(
		handlers.NewPackagesHandler(packageSvc, validationSvc, openapi.NewBodyValidator(doc), logger),
		handlers.NewHealthHandler(store, depHealth),
		specHandler,
	)

	// 7. HTTP-сервер
	return server.New(cfg, logger, apiHandler).Run(ctx)
}

// openMedium создаёт носитель документа по cfg.Backend.
// Возвращает описания зависимостей для topologymetrics и функцию освобождения ресурсов.
func openMedium(ctx context.Context, cfg *config.Config, logger *slog.Logger) (medium.Medium, []dephealth.Option, func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case config.BackendMemory:
		logger.Warn("Документ хранится в памяти и будет потерян при остановке")
		return medium.NewMemoryMedium(), nil, noop, nil

	case config.BackendPostgres:
		if err := database.Migrate(cfg, logger); err != nil {
			return nil, nil, noop, err
		}
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return nil, nil, noop, err
		}

		// Проверка здоровья PostgreSQL идёт через существующий пул соединений
		pgDB := stdlib.OpenDBFromPool(pool)
		cleanup := func() {
			_ = pgDB.Close()
			pool.Close()
		}

		deps := []dephealth.Option{
			service.PostgresDependency(pgDB, cfg.DependencyURL(), cfg.DephealthCheckInterval),
		}
		return medium.NewPostgresMedium(pool, cfg.DocumentName), deps, cleanup, nil

	case config.BackendS3:
		client, err := medium.NewS3Client(ctx, medium.S3ClientConfig{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, nil, noop, err
		}

		var deps []dephealth.Option
		if cfg.S3Endpoint != "" {
			deps = append(deps, service.S3Dependency(cfg.S3Endpoint, cfg.DephealthCheckInterval))
		}
		return medium.NewS3Medium(client, cfg.S3Bucket, cfg.S3Key), deps, noop, nil

	default:
		return medium.NewFileMedium(cfg.DataFile, cfg.LockRetryInterval, logger), nil, noop, nil
	}
}
