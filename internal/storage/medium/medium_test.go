package medium

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// checkCAS — общий сценарий compare-and-swap для любого носителя.
func checkCAS(t *testing.T, m Medium) {
	t.Helper()
	ctx := context.Background()

	if _, err := m.Read(ctx); !errors.Is(err, ErrNotExist) {
		t.Fatalf("пустой носитель: ожидалась ErrNotExist, получено %v", err)
	}

	// Обновление несуществующего документа — конфликт
	if _, err := m.Write(ctx, []byte(`{"v":0}`), "42"); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("запись с версией в пустой носитель: ожидалась ErrVersionConflict, получено %v", err)
	}

	v1, err := m.Write(ctx, []byte(`{"v":1}`), "")
	if err != nil {
		t.Fatalf("ошибка создания документа: %v", err)
	}
	if v1 == "" {
		t.Fatal("версия после создания не должна быть пустой")
	}

	// Повторное создание — конфликт
	if _, err := m.Write(ctx, []byte(`{"v":9}`), ""); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("повторное создание: ожидалась ErrVersionConflict, получено %v", err)
	}

	snap, err := m.Read(ctx)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if string(snap.Data) != `{"v":1}` {
		t.Errorf("содержимое: ожидалось %s, получено %s", `{"v":1}`, snap.Data)
	}
	if snap.Version != v1 {
		t.Errorf("версия: ожидалась %q, получена %q", v1, snap.Version)
	}

	v2, err := m.Write(ctx, []byte(`{"v":2}`), v1)
	if err != nil {
		t.Fatalf("ошибка обновления: %v", err)
	}
	if v2 == v1 {
		t.Error("версия должна измениться после обновления")
	}

	// Запись по устаревшей версии — конфликт, содержимое не меняется
	if _, err := m.Write(ctx, []byte(`{"v":3}`), v1); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("устаревшая версия: ожидалась ErrVersionConflict, получено %v", err)
	}

	snap, err = m.Read(ctx)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if string(snap.Data) != `{"v":2}` {
		t.Errorf("после конфликта содержимое изменилось: %s", snap.Data)
	}
	if snap.Version != v2 {
		t.Errorf("версия: ожидалась %q, получена %q", v2, snap.Version)
	}
}
