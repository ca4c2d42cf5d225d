// Пакет medium — носители документа хранилища.
// Носитель хранит один непрозрачный байтовый документ и его версию.
// Запись выполняется атомарно и только при совпадении ожидаемой версии
// (compare-and-swap), что защищает от потерянных обновлений между процессами.
package medium

import (
	"context"
	"errors"
)

var (
	// ErrNotExist — документ на носителе отсутствует.
	ErrNotExist = errors.New("документ отсутствует на носителе")

	// ErrVersionConflict — текущая версия документа отличается от ожидаемой.
	ErrVersionConflict = errors.New("конфликт версий документа")
)

// Snapshot — содержимое документа и его версия на момент чтения.
type Snapshot struct {
	Data    []byte
	Version string
}

// Medium — носитель документа.
type Medium interface {
	// Read возвращает текущее содержимое. ErrNotExist, если документа нет.
	Read(ctx context.Context) (*Snapshot, error)

	// Write атомарно заменяет документ, если его версия равна expected.
	// expected == "" означает, что документ ещё не должен существовать.
	// Возвращает новую версию либо ErrVersionConflict.
	Write(ctx context.Context, data []byte, expected string) (string, error)

	// Name — человекочитаемое описание носителя для логов.
	Name() string
}
