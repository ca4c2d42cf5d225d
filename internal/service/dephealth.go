// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Package Store мониторит внешний носитель документа:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode, critical)
//   - S3 — HTTP checker к health endpoint хранилища (critical)
//
// Файловый носитель и носитель в памяти внешних зависимостей не имеют.
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для S3
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"     // PostgreSQL checker (pool mode)
	"github.com/prometheus/client_golang/prometheus"
)

// s3HealthPath — health endpoint S3-совместимого хранилища (MinIO).
const s3HealthPath = "/minio/health/live"

// ErrNoDependencies — носитель не имеет внешних зависимостей.
var ErrNoDependencies = errors.New("нет зависимостей для мониторинга")

// PostgresDependency описывает PostgreSQL как критичную зависимость.
// db — *sql.DB, полученный из pgxpool через stdlib.OpenDBFromPool();
// connURL используется только для меток.
func PostgresDependency(db *sql.DB, connURL string, checkInterval time.Duration) dephealth.Option {
	return dephealth.AddDependency("postgresql", dephealth.TypePostgres,
		pgcheck.New(pgcheck.WithDB(db)),
		dephealth.FromURL(connURL),
		dephealth.CheckInterval(checkInterval),
		dephealth.Critical(true),
	)
}

// S3Dependency описывает S3-совместимое хранилище как критичную зависимость.
func S3Dependency(endpoint string, checkInterval time.Duration) dephealth.Option {
	return dephealth.HTTP("s3",
		dephealth.FromURL(endpoint),
		dephealth.WithHTTPHealthPath(s3HealthPath),
		dephealth.CheckInterval(checkInterval),
		dephealth.Critical(true),
		dephealth.WithHTTPTLSSkipVerify(true), // Dev-среда: self-signed сертификаты
	)
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
// Без зависимостей возвращает ErrNoDependencies.
func NewDephealthService(
	serviceID string,
	group string,
	deps []dephealth.Option,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, deps, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	deps []dephealth.Option,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, deps, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	serviceID string,
	group string,
	deps []dephealth.Option,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	if len(deps) == 0 {
		return nil, ErrNoDependencies
	}

	opts := []dephealth.Option{dephealth.WithLogger(logger)}
	opts = append(opts, deps...)
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
