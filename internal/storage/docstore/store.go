// Пакет docstore — слой персистентности Package Store.
//
// Всё состояние хранится одним документом {"packages": [...]} на носителе
// (medium.Medium). Каждая изменяющая операция — полный цикл
// чтение → изменение → запись всего документа:
//   - внутри процесса циклы сериализуются мьютексом;
//   - между процессами запись условна по версии (CAS), при конфликте
//     цикл повторяется со свежего чтения, не более maxAttempts раз.
//
// Прочие ошибки ввода-вывода не повторяются. Отсутствующий документ
// создаётся автоматически перед любой операцией.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/goartstore/package-store/internal/domain/model"
	"github.com/bigkaa/goartstore/package-store/internal/storage/medium"
)

// DefaultMaxAttempts — число попыток цикла при конфликте версий по умолчанию.
const DefaultMaxAttempts = 5

var (
	// ErrStoreUnreadable — носитель не читается или документ повреждён.
	// Никогда не подменяется пустой коллекцией.
	ErrStoreUnreadable = errors.New("хранилище пакетов не читается")

	// ErrStoreUnwritable — документ не удалось записать.
	ErrStoreUnwritable = errors.New("хранилище пакетов не записывается")

	// ErrDuplicateID — запись с таким id уже существует.
	ErrDuplicateID = model.ErrDuplicateID
)

// MutateFunc изменяет найденную запись на месте.
// Возвращает true, если запись изменилась и документ нужно записать.
// При ошибке документ не записывается.
type MutateFunc func(rec *model.PackageRecord) (bool, error)

// Store — хранилище пакетов поверх носителя.
type Store struct {
	medium      medium.Medium
	maxAttempts int
	logger      *slog.Logger

	// mu сериализует циклы чтение-изменение-запись внутри процесса
	mu sync.Mutex
}

// New создаёт хранилище. maxAttempts < 1 заменяется на DefaultMaxAttempts.
func New(m medium.Medium, maxAttempts int, logger *slog.Logger) *Store {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Store{
		medium:      m,
		maxAttempts: maxAttempts,
		logger:      logger.With(slog.String("component", "docstore"), slog.String("medium", m.Name())),
	}
}

// MediumName возвращает описание носителя.
func (s *Store) MediumName() string {
	return s.medium.Name()
}

// Initialize создаёт пустой документ, если носитель его не содержит.
// Идемпотентна; существующее содержимое не проверяется и не перезаписывается.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.initialize(ctx)
}

// LoadAll возвращает копию всего документа.
func (s *Store) LoadAll(ctx context.Context) (doc *model.Document, err error) {
	defer s.observe("load_all", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, _, err = s.load(ctx)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// SaveAll атомарно заменяет документ целиком.
// Отклоняет повторяющиеся id (ErrDuplicateID), некорректные записи
// (model.ErrMalformedRecord, model.ErrReservedField), а также удаление записей
// и недопустимые изменения относительно записанного документа
// (model.ErrIllegalTransition).
func (s *Store) SaveAll(ctx context.Context, doc *model.Document) (err error) {
	defer s.observe("save_all", time.Now(), &err)

	next, err := doc.Canonical()
	if err != nil {
		return err
	}

	return s.update(ctx, func(current *model.Document) (bool, error) {
		if err := next.CheckSuccessorOf(current); err != nil {
			return false, err
		}
		current.Packages = next.Clone().Packages
		return true, nil
	})
}

// Append добавляет запись в конец коллекции.
// При совпадении id возвращает ErrDuplicateID, при зарезервированных именах
// непрозрачных полей — model.ErrReservedField, при некорректном JSON —
// model.ErrMalformedRecord; документ не меняется.
func (s *Store) Append(ctx context.Context, rec *model.PackageRecord) (_ *model.PackageRecord, err error) {
	defer s.observe("append", time.Now(), &err)

	if rec == nil {
		return nil, fmt.Errorf("%w: пустая запись", model.ErrMalformedRecord)
	}
	rec, err = rec.Canonical()
	if err != nil {
		return nil, err
	}

	err = s.update(ctx, func(current *model.Document) (bool, error) {
		if err := current.Append(rec.Clone()); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Пакет добавлен", slog.String("package_id", rec.ID))
	return rec.Clone(), nil
}

// FindByID возвращает копию записи. Отсутствие записи — (nil, false, nil).
func (s *Store) FindByID(ctx context.Context, id string) (_ *model.PackageRecord, _ bool, err error) {
	defer s.observe("find", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, _, err := s.load(ctx)
	if err != nil {
		return nil, false, err
	}

	rec, _ := doc.Find(id)
	if rec == nil {
		return nil, false, nil
	}
	return rec, true, nil
}

// UpdateByID применяет патч к записи. Отсутствие записи — (nil, false, nil).
// Пустой патч или патч без изменений не приводит к записи документа.
func (s *Store) UpdateByID(ctx context.Context, id string, patch model.Patch) (*model.PackageRecord, bool, error) {
	return s.Mutate(ctx, id, func(rec *model.PackageRecord) (bool, error) {
		return rec.Apply(patch)
	})
}

// Mutate выполняет fn над записью в одном цикле чтение-изменение-запись.
// Проверка и изменение видят одно и то же состояние документа.
// fn может быть вызвана повторно при конфликте версий.
// Возвращает итоговую копию записи; отсутствие записи — (nil, false, nil).
func (s *Store) Mutate(ctx context.Context, id string, fn MutateFunc) (_ *model.PackageRecord, found bool, err error) {
	defer s.observe("mutate", time.Now(), &err)

	var result *model.PackageRecord

	err = s.update(ctx, func(current *model.Document) (bool, error) {
		result, found = nil, false

		rec, _ := current.Find(id)
		if rec == nil {
			return false, nil
		}
		found = true

		before := rec.Clone()
		changed, err := fn(rec)
		if err != nil {
			return false, err
		}
		if err := model.CheckSuccessor(before, rec); err != nil {
			return false, err
		}

		result = rec.Clone()
		return changed, nil
	})
	if err != nil {
		return nil, false, err
	}

	return result, found, nil
}

// Ping читает и разбирает документ без блокировки и без записи.
// Используется проверкой готовности; обновляет ps_packages_total.
// Отсутствующий документ не считается ошибкой.
func (s *Store) Ping(ctx context.Context) error {
	snap, err := s.medium.Read(ctx)
	if err != nil {
		if errors.Is(err, medium.ErrNotExist) {
			packagesTotal.Set(0)
			return nil
		}
		return fmt.Errorf("%w: %w", ErrStoreUnreadable, err)
	}

	doc, err := model.DecodeDocument(snap.Data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnreadable, err)
	}
	packagesTotal.Set(float64(doc.Len()))
	return nil
}

// update выполняет цикл чтение-изменение-запись под мьютексом.
// fn изменяет документ и сообщает, нужна ли запись.
// При конфликте версий цикл повторяется со свежего чтения.
func (s *Store) update(ctx context.Context, fn func(current *model.Document) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 1; ; attempt++ {
		doc, version, err := s.load(ctx)
		if err != nil {
			return err
		}

		write, err := fn(doc)
		if err != nil {
			return err
		}
		if !write {
			return nil
		}

		data, err := doc.Encode()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStoreUnwritable, err)
		}

		_, err = s.medium.Write(ctx, data, version)
		if err == nil {
			packagesTotal.Set(float64(doc.Len()))
			return nil
		}

		if !errors.Is(err, medium.ErrVersionConflict) {
			s.logger.Error("Ошибка записи документа", slog.String("error", err.Error()))
			return fmt.Errorf("%w: %w", ErrStoreUnwritable, err)
		}

		storeConflictsTotal.Inc()
		if attempt >= s.maxAttempts {
			s.logger.Warn("Исчерпаны попытки записи документа",
				slog.Int("attempts", attempt),
			)
			return fmt.Errorf("%w: %d попыток: %w", ErrStoreUnwritable, attempt, err)
		}

		s.logger.Debug("Конфликт версий, повтор цикла",
			slog.Int("attempt", attempt),
		)
	}
}

// load читает и разбирает документ. Отсутствующий документ создаётся.
// Вызывается под mu.
func (s *Store) load(ctx context.Context) (*model.Document, string, error) {
	snap, err := s.medium.Read(ctx)
	if errors.Is(err, medium.ErrNotExist) {
		if err := s.initialize(ctx); err != nil {
			return nil, "", err
		}
		snap, err = s.medium.Read(ctx)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrStoreUnreadable, err)
	}

	doc, err := model.DecodeDocument(snap.Data)
	if err != nil {
		s.logger.Error("Документ хранилища повреждён", slog.String("error", err.Error()))
		return nil, "", fmt.Errorf("%w: %w", ErrStoreUnreadable, err)
	}

	packagesTotal.Set(float64(doc.Len()))
	return doc, snap.Version, nil
}

// initialize создаёт пустой документ, если его нет. Вызывается под mu.
func (s *Store) initialize(ctx context.Context) error {
	_, err := s.medium.Read(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, medium.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrStoreUnreadable, err)
	}

	data, err := model.NewDocument().Encode()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnwritable, err)
	}

	_, err = s.medium.Write(ctx, data, "")
	switch {
	case err == nil:
		s.logger.Info("Создан пустой документ хранилища")
		return nil
	case errors.Is(err, medium.ErrVersionConflict):
		// Документ создан другим процессом
		return nil
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnwritable, err)
	}
}

// observe фиксирует метрики операции.
func (s *Store) observe(operation string, start time.Time, err *error) {
	storeOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	storeOperationsTotal.WithLabelValues(operation, resultLabel(*err)).Inc()
}
