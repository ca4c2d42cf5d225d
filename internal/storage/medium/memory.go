package medium

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// MemoryMedium — носитель в памяти процесса. Версия — счётчик записей.
// Используется для backend=memory и в тестах.
type MemoryMedium struct {
	mu      sync.Mutex
	data    []byte
	exists  bool
	counter uint64
}

// NewMemoryMedium создаёт пустой носитель в памяти.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{}
}

// Name возвращает описание носителя.
func (m *MemoryMedium) Name() string {
	return "memory"
}

// Read возвращает копию содержимого.
func (m *MemoryMedium) Read(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.exists {
		return nil, ErrNotExist
	}
	return &Snapshot{
		Data:    append([]byte(nil), m.data...),
		Version: m.version(),
	}, nil
}

// Write заменяет содержимое при совпадении версии.
func (m *MemoryMedium) Write(ctx context.Context, data []byte, expected string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := ""
	if m.exists {
		current = m.version()
	}
	if current != expected {
		return "", fmt.Errorf("%w: ожидалась %q, текущая %q", ErrVersionConflict, expected, current)
	}

	m.data = append([]byte(nil), data...)
	m.exists = true
	m.counter++
	return m.version(), nil
}

// Set записывает содержимое в обход проверки версии
// (имитация внешней правки носителя).
func (m *MemoryMedium) Set(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = append([]byte(nil), data...)
	m.exists = true
	m.counter++
}

// Delete удаляет документ.
func (m *MemoryMedium) Delete() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = nil
	m.exists = false
	m.counter++
}

// version возвращает текущую версию. Вызывается под mu.
func (m *MemoryMedium) version() string {
	return strconv.FormatUint(m.counter, 10)
}
