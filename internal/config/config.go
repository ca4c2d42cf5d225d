// Пакет config — загрузка и валидация конфигурации Package Store
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Носители документа хранилища (PS_BACKEND).
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Config содержит все параметры конфигурации Package Store.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Идентификатор экземпляра (метки метрик topologymetrics)
	ServiceID string
	// Путь к TLS сертификату (опционально, вместе с TLSKey)
	TLSCert string
	// Путь к TLS приватному ключу
	TLSKey string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// --- Хранилище ---

	// Носитель документа: file, memory, postgres, s3
	Backend string
	// Срок жизни пакета с момента создания
	PackageTTL time.Duration
	// Максимум попыток цикла чтение-изменение-запись при конфликте версий
	StoreMaxAttempts int

	// --- Файловый носитель ---

	// Путь к JSON-документу
	DataFile string
	// Интервал повторных попыток захвата flock
	LockRetryInterval time.Duration

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимум соединений в пуле: документ меняется последовательно,
	// поэтому большой пул не нужен
	DBMaxConns int
	// Имя документа (строка таблицы package_documents)
	DocumentName string

	// --- S3 ---

	// Endpoint S3-совместимого хранилища (пусто — AWS)
	S3Endpoint string
	// Регион
	S3Region string
	// Бакет
	S3Bucket string
	// Ключ объекта документа
	S3Key string
	// Access key
	S3AccessKey string
	// Secret key
	S3SecretKey string

	// --- topologymetrics ---

	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// PS_PORT — порт HTTP-сервера (по умолчанию 8030)
	cfg.Port, err = getEnvInt("PS_PORT", 8030)
	if err != nil {
		return nil, fmt.Errorf("PS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.ServiceID = getEnvDefault("PS_SERVICE_ID", "package-store")

	// PS_TLS_CERT / PS_TLS_KEY — задаются только вместе
	cfg.TLSCert = getEnvDefault("PS_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("PS_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("PS_TLS_CERT и PS_TLS_KEY должны быть заданы вместе")
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PS_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("PS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("PS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// PS_PACKAGE_TTL — срок жизни пакета (по умолчанию 72h)
	cfg.PackageTTL, err = getEnvDuration("PS_PACKAGE_TTL", 72*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PS_PACKAGE_TTL: %w", err)
	}
	if cfg.PackageTTL <= 0 {
		return nil, fmt.Errorf("PS_PACKAGE_TTL: значение должно быть положительным")
	}

	cfg.StoreMaxAttempts, err = getEnvInt("PS_STORE_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, fmt.Errorf("PS_STORE_MAX_ATTEMPTS: %w", err)
	}
	if cfg.StoreMaxAttempts < 1 {
		return nil, fmt.Errorf("PS_STORE_MAX_ATTEMPTS: значение должно быть >= 1, получено %d", cfg.StoreMaxAttempts)
	}

	cfg.DephealthCheckInterval, err = getEnvDuration("PS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("PS_DEPHEALTH_GROUP", "package-store")

	// PS_BACKEND — носитель документа (по умолчанию file)
	cfg.Backend = getEnvDefault("PS_BACKEND", BackendFile)
	switch cfg.Backend {
	case BackendFile:
		err = cfg.loadFile()
	case BackendMemory:
	case BackendPostgres:
		err = cfg.loadPostgres()
	case BackendS3:
		err = cfg.loadS3()
	default:
		return nil, fmt.Errorf("PS_BACKEND: недопустимое значение %q, допустимые: file, memory, postgres, s3", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile читает параметры файлового носителя.
func (c *Config) loadFile() error {
	var err error

	c.DataFile = getEnvDefault("PS_DATA_FILE", "data/packages.json")

	c.LockRetryInterval, err = getEnvDuration("PS_LOCK_RETRY_INTERVAL", 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("PS_LOCK_RETRY_INTERVAL: %w", err)
	}
	if c.LockRetryInterval <= 0 {
		return fmt.Errorf("PS_LOCK_RETRY_INTERVAL: значение должно быть положительным")
	}
	return nil
}

// loadPostgres читает параметры PostgreSQL.
func (c *Config) loadPostgres() error {
	var err error

	c.DBHost, err = getEnvRequired("PS_DB_HOST")
	if err != nil {
		return err
	}
	c.DBPort, err = getEnvInt("PS_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("PS_DB_PORT: %w", err)
	}
	c.DBName, err = getEnvRequired("PS_DB_NAME")
	if err != nil {
		return err
	}
	c.DBUser, err = getEnvRequired("PS_DB_USER")
	if err != nil {
		return err
	}
	c.DBPassword, err = getEnvRequired("PS_DB_PASSWORD")
	if err != nil {
		return err
	}

	c.DBSSLMode = getEnvDefault("PS_DB_SSL_MODE", "disable")
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[c.DBSSLMode] {
		return fmt.Errorf("PS_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", c.DBSSLMode)
	}

	c.DBMaxConns, err = getEnvInt("PS_DB_MAX_CONNS", 4)
	if err != nil {
		return fmt.Errorf("PS_DB_MAX_CONNS: %w", err)
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("PS_DB_MAX_CONNS: должно быть не меньше 1, получено %d", c.DBMaxConns)
	}

	c.DocumentName = getEnvDefault("PS_DOCUMENT_NAME", "packages")
	return nil
}

// loadS3 читает параметры S3.
func (c *Config) loadS3() error {
	var err error

	c.S3Bucket, err = getEnvRequired("PS_S3_BUCKET")
	if err != nil {
		return err
	}
	c.S3AccessKey, err = getEnvRequired("PS_S3_ACCESS_KEY")
	if err != nil {
		return err
	}
	c.S3SecretKey, err = getEnvRequired("PS_S3_SECRET_KEY")
	if err != nil {
		return err
	}
	c.S3Endpoint = getEnvDefault("PS_S3_ENDPOINT", "")
	c.S3Region = getEnvDefault("PS_S3_REGION", "us-east-1")
	c.S3Key = getEnvDefault("PS_S3_KEY", "packages.json")
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения в формате golang-migrate (pgx5://).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// DependencyURL возвращает URL PostgreSQL без учётных данных
// для меток topologymetrics.
func (c *Config) DependencyURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// TLSEnabled сообщает, задан ли TLS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 72h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
