// packages.go — сервис метаданных пакетов: создание, чтение, отзыв,
// обновление непрозрачных полей. Используется обработчиками загрузки
// и API; содержимое файлов через этот сервис не проходит.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/package-store/internal/domain/model"
	"github.com/bigkaa/goartstore/package-store/internal/storage/docstore"
)

var (
	// ErrNotFound — пакет не найден.
	ErrNotFound = errors.New("пакет не найден")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
)

// CreateParams — параметры создания пакета.
type CreateParams struct {
	// ID — идентификатор пакета; пусто — генерируется UUID
	ID string
	// Fields — непрозрачные поля (filename, owner, параметры шифрования и т.д.)
	Fields map[string]json.RawMessage
}

// PackageService — сервис метаданных пакетов.
type PackageService struct {
	store  *docstore.Store
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewPackageService создаёт сервис. ttl <= 0 заменяется на model.DefaultTTL.
func NewPackageService(store *docstore.Store, ttl time.Duration, logger *slog.Logger, opts ...Option) *PackageService {
	if ttl <= 0 {
		ttl = model.DefaultTTL
	}
	o := applyOptions(opts)
	return &PackageService{
		store:  store,
		ttl:    ttl,
		now:    o.now,
		logger: logger.With(slog.String("component", "package_service")),
	}
}

// Create создаёт пакет: es_valido = true, expiracion = now + ttl.
func (s *PackageService) Create(ctx context.Context, params CreateParams) (*model.PackageRecord, error) {
	id := params.ID
	if id == "" {
		id = uuid.New().String()
	}

	rec, err := model.NewRecord(id, s.now(), s.ttl, params.Fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	created, err := s.store.Append(ctx, rec)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Пакет создан",
		slog.String("package_id", created.ID),
		slog.Time("expires_at", created.ExpiresAt),
	)
	return created, nil
}

// Get возвращает пакет без проверки срока. ErrNotFound, если пакета нет.
func (s *PackageService) Get(ctx context.Context, id string) (*model.PackageRecord, error) {
	rec, found, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// List возвращает все пакеты в порядке создания.
func (s *PackageService) List(ctx context.Context) ([]*model.PackageRecord, error) {
	doc, err := s.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Packages, nil
}

// Update применяет патч к пакету. ErrNotFound, если пакета нет.
// Недопустимые изменения дают model.ErrIllegalTransition или model.ErrReservedField.
func (s *PackageService) Update(ctx context.Context, id string, patch model.Patch) (*model.PackageRecord, error) {
	rec, found, err := s.store.UpdateByID(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if patch.Valid != nil && !*patch.Valid {
		s.logger.Info("Пакет отозван", slog.String("package_id", id))
	}
	return rec, nil
}

// Revoke переводит пакет в invalid. Повторный отзыв не является ошибкой.
func (s *PackageService) Revoke(ctx context.Context, id string) (*model.PackageRecord, error) {
	return s.Update(ctx, id, model.Revoke())
}

// UpdateFields перезаписывает непрозрачные поля пакета.
func (s *PackageService) UpdateFields(ctx context.Context, id string, fields map[string]json.RawMessage) (*model.PackageRecord, error) {
	return s.Update(ctx, id, model.Patch{Fields: fields})
}
