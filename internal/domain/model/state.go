// state.go — хранимые состояния пакета и допустимые переходы.
//
// Хранится только пара es_valido + expiracion:
//   - valid   — es_valido = true
//   - invalid — es_valido = false (отозван или истёк)
//
// Единственный переход: valid → invalid. Обратный переход запрещён.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PackageState — хранимое состояние пакета.
type PackageState string

const (
	// StateValid — пакет доступен (если не истёк срок)
	StateValid PackageState = "valid"
	// StateInvalid — пакет недоступен навсегда
	StateInvalid PackageState = "invalid"
)

var (
	// ErrIllegalTransition — попытка нарушить монотонность es_valido
	// или изменить неизменяемое поле.
	ErrIllegalTransition = errors.New("недопустимый переход состояния пакета")

	// ErrReservedField — непрозрачное поле использует имя поля ядра.
	ErrReservedField = errors.New("зарезервированное имя поля")
)

// validTransitions — матрица допустимых переходов.
var validTransitions = map[PackageState]map[PackageState]bool{
	StateValid:   {StateInvalid: true},
	StateInvalid: {},
}

// CheckTransition проверяет переход from → to.
// Переход в то же состояние допустим (no-op).
func CheckTransition(from, to PackageState) error {
	if from == to {
		return nil
	}
	transitions, ok := validTransitions[from]
	if !ok || !transitions[to] {
		return fmt.Errorf("%w: %s → %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// Patch — частичное обновление записи.
// Поля, не указанные в патче, сохраняются.
type Patch struct {
	// Valid — новое значение es_valido (nil — без изменений)
	Valid *bool
	// Fields — новые значения непрозрачных полей (перезаписывают существующие)
	Fields map[string]json.RawMessage
}

// Revoke возвращает патч, переводящий пакет в invalid.
func Revoke() Patch {
	invalid := false
	return Patch{Valid: &invalid}
}

// IsEmpty возвращает true, если патч ничего не меняет.
func (p Patch) IsEmpty() bool {
	return p.Valid == nil && len(p.Fields) == 0
}

// Apply применяет патч к записи. Сначала проверяет патч целиком,
// затем изменяет запись: при ошибке запись остаётся нетронутой.
// Возвращает true, если запись изменилась.
func (r *PackageRecord) Apply(p Patch) (bool, error) {
	fields, err := canonicalExtra(p.Fields)
	if err != nil {
		return false, fmt.Errorf("пакет %s: %w", r.ID, err)
	}

	if p.Valid != nil {
		target := StateInvalid
		if *p.Valid {
			target = StateValid
		}
		if err := CheckTransition(r.State(), target); err != nil {
			return false, fmt.Errorf("пакет %s: %w", r.ID, err)
		}
	}

	changed := false
	if p.Valid != nil && *p.Valid != r.Valid {
		r.Valid = *p.Valid
		changed = true
	}

	if len(fields) > 0 {
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage, len(fields))
		}
		for key, value := range fields {
			r.Extra[key] = value
		}
		changed = true
	}

	return changed, nil
}

// CheckSuccessor проверяет, что next — допустимое продолжение записи prev:
// id и expiracion не изменились, es_valido не вернулся в true.
func CheckSuccessor(prev, next *PackageRecord) error {
	if prev.ID != next.ID {
		return fmt.Errorf("%w: id %s изменён на %s", ErrIllegalTransition, prev.ID, next.ID)
	}
	if !prev.ExpiresAt.Equal(next.ExpiresAt) {
		return fmt.Errorf("%w: пакет %s: expiracion неизменяем", ErrIllegalTransition, prev.ID)
	}
	if err := CheckTransition(prev.State(), next.State()); err != nil {
		return fmt.Errorf("пакет %s: %w", prev.ID, err)
	}
	return nil
}
