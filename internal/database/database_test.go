package database

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/goartstore/package-store/internal/config"
	"github.com/bigkaa/goartstore/package-store/internal/storage/medium"
)

// setupTestDB запускает PostgreSQL в Docker-контейнере через testcontainers.
func setupTestDB(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("packages_test"),
		postgres.WithUsername("packages"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("PS_BACKEND", "postgres")
	t.Setenv("PS_DB_HOST", host)
	t.Setenv("PS_DB_PORT", port.Port())
	t.Setenv("PS_DB_NAME", "packages_test")
	t.Setenv("PS_DB_USER", "packages")
	t.Setenv("PS_DB_PASSWORD", "test-password")
	t.Setenv("PS_DB_SSL_MODE", "disable")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestPoolConfig проверяет перенос настроек пула из конфигурации
// без подключения к базе.
func TestPoolConfig(t *testing.T) {
	cfg := &config.Config{
		ServiceID:  "package-store-1",
		DBHost:     "db.local",
		DBPort:     5432,
		DBName:     "packages",
		DBUser:     "ps",
		DBPassword: "secret",
		DBSSLMode:  "disable",
		DBMaxConns: 2,
	}

	poolCfg, err := poolConfig(cfg)
	if err != nil {
		t.Fatalf("poolConfig() вернул ошибку: %v", err)
	}
	if poolCfg.MaxConns != 2 {
		t.Errorf("MaxConns: ожидалось 2, получено %d", poolCfg.MaxConns)
	}
	if got := poolCfg.ConnConfig.RuntimeParams["application_name"]; got != "package-store-1" {
		t.Errorf("application_name: получено %q", got)
	}
	if poolCfg.ConnConfig.Host != "db.local" || poolCfg.ConnConfig.Database != "packages" {
		t.Errorf("неожиданные параметры подключения: %s/%s", poolCfg.ConnConfig.Host, poolCfg.ConnConfig.Database)
	}
}

// TestMigrate проверяет применение миграций и их идемпотентность.
func TestMigrate(t *testing.T) {
	cfg := setupTestDB(t)
	logger := testLogger()

	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}
	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Повторный Migrate() вернул ошибку: %v", err)
	}

	ctx := context.Background()
	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	var exists bool
	err = pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = 'package_documents'
		)`).Scan(&exists)
	if err != nil {
		t.Fatalf("Ошибка проверки таблицы: %v", err)
	}
	if !exists {
		t.Error("Таблица package_documents не создана")
	}
}

// TestPostgresMedium проверяет compare-and-swap документа в PostgreSQL.
func TestPostgresMedium(t *testing.T) {
	cfg := setupTestDB(t)
	logger := testLogger()
	ctx := context.Background()

	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}
	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	m := medium.NewPostgresMedium(pool, "cas-test")

	if _, err := m.Read(ctx); !errors.Is(err, medium.ErrNotExist) {
		t.Fatalf("ожидалась ErrNotExist, получено %v", err)
	}

	v1, err := m.Write(ctx, []byte(`{"packages":[]}`), "")
	if err != nil {
		t.Fatalf("ошибка создания: %v", err)
	}
	if _, err := m.Write(ctx, []byte(`{}`), ""); !errors.Is(err, medium.ErrVersionConflict) {
		t.Fatalf("повторное создание: ожидалась ErrVersionConflict, получено %v", err)
	}

	v2, err := m.Write(ctx, []byte(`{"packages":[1]}`), v1)
	if err != nil {
		t.Fatalf("ошибка обновления: %v", err)
	}
	if _, err := m.Write(ctx, []byte(`{}`), v1); !errors.Is(err, medium.ErrVersionConflict) {
		t.Fatalf("устаревшая версия: ожидалась ErrVersionConflict, получено %v", err)
	}

	snap, err := m.Read(ctx)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if snap.Version != v2 || string(snap.Data) != `{"packages":[1]}` {
		t.Errorf("ожидалось (%s, %s), получено (%s, %s)", v2, `{"packages":[1]}`, snap.Version, snap.Data)
	}

	// Конкурентные писатели по одной версии: успешен ровно один
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Write(ctx, []byte(`{"packages":[2]}`), v2); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("ожидалась ровно одна успешная запись, получено %d", succeeded)
	}
}
