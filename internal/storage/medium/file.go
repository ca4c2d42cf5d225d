// file.go — документ в JSON-файле на локальной или общей файловой системе.
//
// Запись: блокировка flock на {file}.lock → сверка версии → temp → fsync → rename.
// Версия — SHA-256 содержимого, поэтому внешняя правка файла тоже
// распознаётся как конфликт.
package medium

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// lockSuffix — суффикс файла блокировки рядом с документом.
const lockSuffix = ".lock"

// DefaultLockRetryInterval — интервал повторных попыток захвата flock.
const DefaultLockRetryInterval = 10 * time.Millisecond

// FileMedium — носитель-файл.
type FileMedium struct {
	path          string
	retryInterval time.Duration
	logger        *slog.Logger
}

// NewFileMedium создаёт файловый носитель.
// retryInterval <= 0 заменяется на DefaultLockRetryInterval.
func NewFileMedium(path string, retryInterval time.Duration, logger *slog.Logger) *FileMedium {
	if retryInterval <= 0 {
		retryInterval = DefaultLockRetryInterval
	}
	return &FileMedium{
		path:          path,
		retryInterval: retryInterval,
		logger:        logger.With(slog.String("component", "file_medium")),
	}
}

// Name возвращает описание носителя.
func (m *FileMedium) Name() string {
	return "file:" + m.path
}

// Path возвращает путь к файлу документа.
func (m *FileMedium) Path() string {
	return m.path
}

// Read читает файл целиком. Rename атомарен, поэтому блокировка не нужна:
// читатель видит либо старую, либо новую версию.
func (m *FileMedium) Read(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("ошибка чтения %s: %w", m.path, err)
	}
	return &Snapshot{Data: data, Version: contentVersion(data)}, nil
}

// Write заменяет файл, если его версия совпадает с expected.
func (m *FileMedium) Write(ctx context.Context, data []byte, expected string) (string, error) {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	unlock, err := m.lock(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()

	current, err := m.currentVersion()
	if err != nil {
		return "", err
	}
	if current != expected {
		return "", fmt.Errorf("%w: %s: ожидалась %q, текущая %q", ErrVersionConflict, m.path, expected, current)
	}

	if err := m.replace(dir, data); err != nil {
		return "", err
	}
	return contentVersion(data), nil
}

// currentVersion возвращает версию файла под блокировкой ("" — файла нет).
func (m *FileMedium) currentVersion() (string, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("ошибка чтения %s: %w", m.path, err)
	}
	return contentVersion(data), nil
}

// replace атомарно записывает данные: temp → fsync → rename.
// Временный файл создаётся в той же директории, чтобы rename не пересекал ФС.
func (m *FileMedium) replace(dir string, data []byte) error {
	f, err := os.CreateTemp(dir, filepath.Base(m.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Chmod(tmpPath, 0o640); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка установки прав: %w", err)
	}

	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// lock захватывает эксклюзивный flock на {file}.lock.
// Неблокирующие попытки повторяются с retryInterval до отмены ctx.
func (m *FileMedium) lock(ctx context.Context) (func(), error) {
	lockPath := m.path + lockSuffix

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть lock-файл %s: %w", lockPath, err)
	}
	fd := int(f.Fd())

	ticker := time.NewTicker(m.retryInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		err := syscall.Flock(fd, syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) && !errors.Is(err, syscall.EINTR) {
			_ = f.Close()
			return nil, fmt.Errorf("ошибка flock %s: %w", lockPath, err)
		}
		if attempt == 1 {
			m.logger.Debug("Lock занят, ожидание",
				slog.String("lock", lockPath),
			)
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, fmt.Errorf("ожидание lock %s прервано: %w", lockPath, ctx.Err())
		case <-ticker.C:
		}
	}

	return func() {
		_ = syscall.Flock(fd, syscall.LOCK_UN)
		_ = f.Close()
	}, nil
}

// contentVersion вычисляет версию как SHA-256 содержимого.
func contentVersion(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
