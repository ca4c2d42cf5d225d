// postgres.go — документ как строка таблицы package_documents.
// Версия — счётчик version; CAS выполняется условием WHERE version = $n.
// Схема создаётся миграциями пакета database.
package medium

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется *pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresMedium — носитель в PostgreSQL.
type PostgresMedium struct {
	db   DBTX
	name string
}

// NewPostgresMedium создаёт носитель для документа с именем name.
func NewPostgresMedium(db DBTX, name string) *PostgresMedium {
	return &PostgresMedium{db: db, name: name}
}

// Name возвращает описание носителя.
func (m *PostgresMedium) Name() string {
	return "postgres:" + m.name
}

// Read читает документ и его версию.
func (m *PostgresMedium) Read(ctx context.Context) (*Snapshot, error) {
	query := `
		SELECT body, version
		FROM package_documents
		WHERE name = $1`

	var (
		body    string
		version int64
	)
	err := m.db.QueryRow(ctx, query, m.name).Scan(&body, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("ошибка чтения документа %s: %w", m.name, err)
	}

	return &Snapshot{
		Data:    []byte(body),
		Version: strconv.FormatInt(version, 10),
	}, nil
}

// Write вставляет документ (expected == "") или обновляет его при совпадении версии.
func (m *PostgresMedium) Write(ctx context.Context, data []byte, expected string) (string, error) {
	if expected == "" {
		return m.insert(ctx, data)
	}

	expectedVersion, err := strconv.ParseInt(expected, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: некорректная версия %q", ErrVersionConflict, expected)
	}

	query := `
		UPDATE package_documents
		SET body = $2, version = version + 1, updated_at = now()
		WHERE name = $1 AND version = $3
		RETURNING version`

	var version int64
	err = m.db.QueryRow(ctx, query, m.name, string(data), expectedVersion).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: документ %s, ожидалась версия %d", ErrVersionConflict, m.name, expectedVersion)
		}
		return "", fmt.Errorf("ошибка обновления документа %s: %w", m.name, err)
	}
	return strconv.FormatInt(version, 10), nil
}

func (m *PostgresMedium) insert(ctx context.Context, data []byte) (string, error) {
	query := `
		INSERT INTO package_documents (name, body, version)
		VALUES ($1, $2, 1)
		ON CONFLICT (name) DO NOTHING`

	tag, err := m.db.Exec(ctx, query, m.name, string(data))
	if err != nil {
		return "", fmt.Errorf("ошибка создания документа %s: %w", m.name, err)
	}
	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("%w: документ %s уже существует", ErrVersionConflict, m.name)
	}
	return "1", nil
}
