// Пакет model — доменные модели Package Store.
// PackageRecord — метаданные одного временного пакета файлов.
// Используется и как in-memory представление, и как элемент
// коллекции packages в JSON-документе хранилища.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// DefaultTTL — срок жизни пакета с момента создания.
const DefaultTTL = 72 * time.Hour

// Имена полей записи, которыми управляет ядро.
// Остальные поля записи непрозрачны и передаются без изменений.
const (
	FieldID        = "id"
	FieldValid     = "es_valido"
	FieldExpiresAt = "expiracion"
)

// ErrMalformedRecord — запись не соответствует формату (нет обязательных полей,
// неверные типы).
var ErrMalformedRecord = errors.New("некорректная запись пакета")

// PackageRecord — метаданные пакета.
type PackageRecord struct {
	// ID — непрозрачный уникальный идентификатор, неизменяем
	ID string

	// Valid — флаг es_valido. Начинается с true, переходит только в false.
	Valid bool

	// ExpiresAt — момент истечения (expiracion), задаётся при создании, неизменяем
	ExpiresAt time.Time

	// Extra — непрозрачные поля (filename, owner, параметры шифрования и т.д.).
	// Хранятся как сырой JSON и сериализуются на одном уровне с основными полями.
	Extra map[string]json.RawMessage
}

// NewRecord создаёт запись нового пакета: es_valido = true,
// expiracion = now + ttl. Поля extra с зарезервированными именами отклоняются.
func NewRecord(id string, now time.Time, ttl time.Duration, extra map[string]json.RawMessage) (*PackageRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: пустой id", ErrMalformedRecord)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl должен быть положительным", ErrMalformedRecord)
	}
	canonical, err := canonicalExtra(extra)
	if err != nil {
		return nil, err
	}

	return &PackageRecord{
		ID:        id,
		Valid:     true,
		ExpiresAt: now.UTC().Add(ttl),
		Extra:     canonical,
	}, nil
}

// Validate проверяет, что запись можно сохранить без потерь:
// непустой id, непрозрачные поля не используют имена ядра
// и содержат корректный JSON.
func (r *PackageRecord) Validate() error {
	_, err := r.Canonical()
	return err
}

// Canonical возвращает проверенную копию записи с непрозрачными полями
// в компактной форме. В такой форме поля переживают запись и чтение документа.
func (r *PackageRecord) Canonical() (*PackageRecord, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("%w: пустой id", ErrMalformedRecord)
	}
	extra, err := canonicalExtra(r.Extra)
	if err != nil {
		return nil, fmt.Errorf("пакет %s: %w", r.ID, err)
	}
	copied := *r
	copied.Extra = extra
	return &copied, nil
}

// IsExpired проверяет, наступил ли момент истечения.
// Пакет считается истёкшим начиная с самого момента expiracion.
func (r *PackageRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// State возвращает хранимое состояние записи.
func (r *PackageRecord) State() PackageState {
	if r.Valid {
		return StateValid
	}
	return StateInvalid
}

// Clone возвращает глубокую копию записи.
func (r *PackageRecord) Clone() *PackageRecord {
	copied := *r
	copied.Extra = cloneExtra(r.Extra)
	return &copied
}

// MarshalJSON сериализует запись плоским объектом:
// сначала id, es_valido, expiracion, затем непрозрачные поля по алфавиту.
func (r PackageRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	writeField := func(key string, value []byte) {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(value)
	}

	id, err := json.Marshal(r.ID)
	if err != nil {
		return nil, err
	}
	writeField(FieldID, id)

	valid, _ := json.Marshal(r.Valid)
	writeField(FieldValid, valid)

	expiresAt, err := json.Marshal(r.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации expiracion: %w", err)
	}
	writeField(FieldExpiresAt, expiresAt)

	keys := make([]string, 0, len(r.Extra))
	for key := range r.Extra {
		if isReserved(key) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := r.Extra[key]
		if len(value) == 0 {
			value = json.RawMessage("null")
		}
		writeField(key, value)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON разбирает плоский объект записи.
// Отсутствие id, es_valido или expiracion, а также неверные типы этих полей
// дают ErrMalformedRecord.
func (r *PackageRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	if fields == nil {
		return fmt.Errorf("%w: запись должна быть объектом", ErrMalformedRecord)
	}

	var rec PackageRecord

	rawID, ok := fields[FieldID]
	if !ok {
		return fmt.Errorf("%w: отсутствует поле %s", ErrMalformedRecord, FieldID)
	}
	if err := json.Unmarshal(rawID, &rec.ID); err != nil || rec.ID == "" {
		return fmt.Errorf("%w: поле %s должно быть непустой строкой", ErrMalformedRecord, FieldID)
	}

	rawValid, ok := fields[FieldValid]
	if !ok {
		return fmt.Errorf("%w: запись %s: отсутствует поле %s", ErrMalformedRecord, rec.ID, FieldValid)
	}
	var valid *bool
	if err := json.Unmarshal(rawValid, &valid); err != nil || valid == nil {
		return fmt.Errorf("%w: запись %s: поле %s должно быть boolean", ErrMalformedRecord, rec.ID, FieldValid)
	}
	rec.Valid = *valid

	rawExpiresAt, ok := fields[FieldExpiresAt]
	if !ok {
		return fmt.Errorf("%w: запись %s: отсутствует поле %s", ErrMalformedRecord, rec.ID, FieldExpiresAt)
	}
	var expiresAt *time.Time
	if err := json.Unmarshal(rawExpiresAt, &expiresAt); err != nil || expiresAt == nil {
		return fmt.Errorf("%w: запись %s: поле %s должно быть меткой времени ISO-8601", ErrMalformedRecord, rec.ID, FieldExpiresAt)
	}
	rec.ExpiresAt = *expiresAt

	delete(fields, FieldID)
	delete(fields, FieldValid)
	delete(fields, FieldExpiresAt)
	if len(fields) > 0 {
		extra, err := canonicalExtra(fields)
		if err != nil {
			return fmt.Errorf("запись %s: %w", rec.ID, err)
		}
		rec.Extra = extra
	}

	*r = rec
	return nil
}

// isReserved проверяет, управляется ли поле ядром.
func isReserved(key string) bool {
	switch key {
	case FieldID, FieldValid, FieldExpiresAt:
		return true
	default:
		return false
	}
}

// canonicalExtra проверяет непрозрачные поля и возвращает их копию
// в компактной форме. Пустое значение считается null.
func canonicalExtra(extra map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	if extra == nil {
		return nil, nil
	}
	canonical := make(map[string]json.RawMessage, len(extra))
	for key, value := range extra {
		if isReserved(key) {
			return nil, fmt.Errorf("%w: %q", ErrReservedField, key)
		}
		if len(value) == 0 {
			canonical[key] = json.RawMessage("null")
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, value); err != nil {
			return nil, fmt.Errorf("%w: поле %q: некорректный JSON: %w", ErrMalformedRecord, key, err)
		}
		canonical[key] = json.RawMessage(buf.Bytes())
	}
	return canonical, nil
}

// cloneExtra копирует непрозрачные поля вместе с байтами значений.
func cloneExtra(extra map[string]json.RawMessage) map[string]json.RawMessage {
	if extra == nil {
		return nil
	}
	copied := make(map[string]json.RawMessage, len(extra))
	for key, value := range extra {
		copied[key] = append(json.RawMessage(nil), value...)
	}
	return copied
}
