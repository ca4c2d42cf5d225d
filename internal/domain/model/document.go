// document.go — документ хранилища: упорядоченная коллекция записей,
// уникальная по id. Формат на носителе:
//
//	{"packages": [{"id": "...", "es_valido": true, "expiracion": "..."}]}
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedDocument — содержимое носителя не является документом хранилища.
	ErrMalformedDocument = errors.New("некорректный документ хранилища")

	// ErrDuplicateID — запись с таким id уже существует.
	ErrDuplicateID = errors.New("пакет с таким id уже существует")
)

// Document — всё персистентное состояние хранилища.
type Document struct {
	Packages []*PackageRecord `json:"packages"`
}

// NewDocument создаёт пустой документ.
func NewDocument() *Document {
	return &Document{Packages: make([]*PackageRecord, 0)}
}

// DecodeDocument разбирает документ из байтов носителя.
// Пустое содержимое, отсутствие коллекции packages, null-элементы,
// некорректные записи и повторяющиеся id дают ErrMalformedDocument.
func DecodeDocument(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: пустое содержимое", ErrMalformedDocument)
	}

	var raw struct {
		Packages *[]*PackageRecord `json:"packages"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	if raw.Packages == nil {
		return nil, fmt.Errorf("%w: отсутствует коллекция packages", ErrMalformedDocument)
	}

	doc := &Document{Packages: *raw.Packages}
	if doc.Packages == nil {
		doc.Packages = make([]*PackageRecord, 0)
	}

	seen := make(map[string]struct{}, len(doc.Packages))
	for i, rec := range doc.Packages {
		if rec == nil {
			return nil, fmt.Errorf("%w: элемент %d равен null", ErrMalformedDocument, i)
		}
		if _, dup := seen[rec.ID]; dup {
			return nil, fmt.Errorf("%w: повторяющийся id %s", ErrMalformedDocument, rec.ID)
		}
		seen[rec.ID] = struct{}{}
	}

	return doc, nil
}

// Encode сериализует документ с отступом в два пробела.
func (d *Document) Encode() ([]byte, error) {
	packages := d.Packages
	if packages == nil {
		packages = make([]*PackageRecord, 0)
	}
	data, err := json.MarshalIndent(Document{Packages: packages}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации документа: %w", err)
	}
	return data, nil
}

// Find возвращает запись по id и её позицию, либо (nil, -1).
func (d *Document) Find(id string) (*PackageRecord, int) {
	for i, rec := range d.Packages {
		if rec.ID == id {
			return rec, i
		}
	}
	return nil, -1
}

// Append добавляет запись в конец коллекции.
// Возвращает ErrDuplicateID, если id уже занят, и ошибку Validate для
// некорректной записи; документ при этом не меняется.
func (d *Document) Append(rec *PackageRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if existing, _ := d.Find(rec.ID); existing != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
	}
	d.Packages = append(d.Packages, rec)
	return nil
}

// Canonical возвращает проверенную копию документа, в которой
// непрозрачные поля записей приведены к компактной форме.
func (d *Document) Canonical() (*Document, error) {
	if err := d.CheckUnique(); err != nil {
		return nil, err
	}
	copied := &Document{Packages: make([]*PackageRecord, len(d.Packages))}
	for i, rec := range d.Packages {
		canonical, err := rec.Canonical()
		if err != nil {
			return nil, err
		}
		copied.Packages[i] = canonical
	}
	return copied, nil
}

// Len возвращает количество записей.
func (d *Document) Len() int {
	return len(d.Packages)
}

// Clone возвращает глубокую копию документа.
func (d *Document) Clone() *Document {
	copied := &Document{Packages: make([]*PackageRecord, len(d.Packages))}
	for i, rec := range d.Packages {
		copied.Packages[i] = rec.Clone()
	}
	return copied
}

// CheckUnique проверяет уникальность id, отсутствие nil-записей
// и корректность каждой записи (Validate).
func (d *Document) CheckUnique() error {
	seen := make(map[string]struct{}, len(d.Packages))
	for i, rec := range d.Packages {
		if rec == nil {
			return fmt.Errorf("%w: элемент %d равен nil", ErrMalformedRecord, i)
		}
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("элемент %d: %w", i, err)
		}
		if _, dup := seen[rec.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
		}
		seen[rec.ID] = struct{}{}
	}
	return nil
}

// CheckSuccessorOf проверяет, что документ d может заменить prev:
// ни одна запись prev не удалена и каждая изменена допустимо.
func (d *Document) CheckSuccessorOf(prev *Document) error {
	for _, old := range prev.Packages {
		next, _ := d.Find(old.ID)
		if next == nil {
			return fmt.Errorf("%w: пакет %s удалён", ErrIllegalTransition, old.ID)
		}
		if err := CheckSuccessor(old, next); err != nil {
			return err
		}
	}
	return nil
}
