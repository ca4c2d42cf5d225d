package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/package-store/internal/api/errors"
	"github.com/bigkaa/goartstore/package-store/internal/api/openapi"
	"github.com/bigkaa/goartstore/package-store/internal/service"
	"github.com/bigkaa/goartstore/package-store/internal/storage/docstore"
	"github.com/bigkaa/goartstore/package-store/internal/storage/medium"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// testEnv — собранный HTTP API поверх носителя в памяти.
type testEnv struct {
	router http.Handler
	mem    *medium.MemoryMedium
	now    time.Time
}

func (e *testEnv) clock() time.Time { return e.now }

func newTestEnv(t *testing.T, deps DependencyHealth) *testEnv {
	t.Helper()
	mem := medium.NewMemoryMedium()
	env := newTestEnvWithMedium(t, mem, deps)
	env.mem = mem
	return env
}

func newTestEnvWithMedium(t *testing.T, m medium.Medium, deps DependencyHealth) *testEnv {
	t.Helper()

	env := &testEnv{
		now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	store := docstore.New(m, 0, testLogger())

	packages := service.NewPackageService(store, time.Hour, testLogger(), service.WithClock(env.clock))
	validation := service.NewValidationService(store, testLogger(), service.WithClock(env.clock))

	doc, err := openapi.Load()
	if err != nil {
		t.Fatalf("ошибка загрузки контракта: %v", err)
	}
	spec, err := openapi.SpecJSONHandler(doc)
	if err != nil {
		t.Fatalf("ошибка SpecJSONHandler: %v", err)
	}

	api := NewAPIHandler(
		NewPackagesHandler(packages, validation, openapi.NewBodyValidator(doc), testLogger()),
		NewHealthHandler(store, deps),
		spec,
	)
	env.router = openapi.HandlerFromMux(api, chi.NewRouter(), nil)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("ошибка декодирования ответа %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("ответ без error: %s", rec.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestCreatePackage(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/packages", `{"id":"p1","fields":{"filename":"a.zip","size":42}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("статус: %d, тело: %s", rec.Code, rec.Body.String())
	}

	body := decode(t, rec)
	if body["id"] != "p1" || body["es_valido"] != true || body["filename"] != "a.zip" {
		t.Errorf("неожиданная запись: %v", body)
	}
	if body["expiracion"] != "2026-03-01T11:00:00Z" {
		t.Errorf("expiracion: %v", body["expiracion"])
	}
}

func TestCreatePackage_Errors(t *testing.T) {
	env := newTestEnv(t, nil)
	if rec := env.do(t, http.MethodPost, "/api/v1/packages", `{"id":"dup"}`); rec.Code != http.StatusCreated {
		t.Fatalf("статус: %d", rec.Code)
	}

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"дубликат id", `{"id":"dup"}`, http.StatusConflict, apierrors.CodeDuplicateID},
		{"зарезервированное поле", `{"fields":{"expiracion":"2099-01-01T00:00:00Z"}}`, http.StatusBadRequest, apierrors.CodeValidationError},
		{"поле вне контракта", `{"es_valido":false}`, http.StatusBadRequest, apierrors.CodeValidationError},
		{"некорректный JSON", `{`, http.StatusBadRequest, apierrors.CodeValidationError},
		{"пустое тело", ``, http.StatusBadRequest, apierrors.CodeValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/packages", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("статус: ожидался %d, получен %d (%s)", tt.status, rec.Code, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.code {
				t.Errorf("код: ожидался %s, получен %s", tt.code, code)
			}
		})
	}
}

func TestListAndGetPackage(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/packages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус: %d", rec.Code)
	}
	if body := decode(t, rec); body["total"] != float64(0) {
		t.Errorf("ожидался пустой список: %v", body)
	}

	for _, id := range []string{"b", "a"} {
		env.do(t, http.MethodPost, "/api/v1/packages", `{"id":"`+id+`"}`)
	}

	var list packageListResponse
	rec = env.do(t, http.MethodGet, "/api/v1/packages", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("ошибка декодирования: %v", err)
	}
	if list.Total != 2 || list.Packages[0].ID != "b" || list.Packages[1].ID != "a" {
		t.Errorf("неожиданный список: %+v", list)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/packages/a", ""); rec.Code != http.StatusOK {
		t.Errorf("GET a: статус %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/packages/missing", "")
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != apierrors.CodeNotFound {
		t.Errorf("GET missing: %d %s", rec.Code, rec.Body.String())
	}
}

func TestUpdatePackage(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/v1/packages", `{"id":"p1"}`)

	rec := env.do(t, http.MethodPatch, "/api/v1/packages/p1", `{"fields":{"owner":"bob"}}`)
	if rec.Code != http.StatusOK || decode(t, rec)["owner"] != "bob" {
		t.Fatalf("обновление полей: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPatch, "/api/v1/packages/p1", `{"es_valido":false}`)
	if rec.Code != http.StatusOK || decode(t, rec)["es_valido"] != false {
		t.Fatalf("отзыв: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPatch, "/api/v1/packages/p1", `{"es_valido":true}`)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != apierrors.CodeIllegalTransition {
		t.Errorf("восстановление: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPatch, "/api/v1/packages/p1", `{"fields":{"id":"other"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("смена id через поля: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPatch, "/api/v1/packages/p1", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("пустой патч: %d", rec.Code)
	}

	rec = env.do(t, http.MethodPatch, "/api/v1/packages/missing", `{"es_valido":false}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("патч отсутствующего: %d", rec.Code)
	}
}

func TestValidatePackage(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/v1/packages", `{"id":"p1","fields":{"filename":"a.zip"}}`)

	rec := env.do(t, http.MethodGet, "/api/v1/packages/p1/validate", "")
	body := decode(t, rec)
	if rec.Code != http.StatusOK || body["valid"] != true {
		t.Fatalf("действующий пакет: %d %v", rec.Code, body)
	}
	pkg, _ := body["package"].(map[string]any)
	if pkg["filename"] != "a.zip" {
		t.Errorf("ожидалась запись пакета в ответе: %v", body)
	}

	env.now = env.now.Add(2 * time.Hour)

	steps := []string{"expired", "invalid_link"}
	for _, want := range steps {
		rec = env.do(t, http.MethodGet, "/api/v1/packages/p1/validate", "")
		body = decode(t, rec)
		if rec.Code != http.StatusOK || body["valid"] != false || body["reason"] != want {
			t.Errorf("ожидался %s: %d %v", want, rec.Code, body)
		}
	}

	rec = env.do(t, http.MethodGet, "/api/v1/packages/unknown/validate", "")
	body = decode(t, rec)
	if rec.Code != http.StatusOK || body["reason"] != "not_found" {
		t.Errorf("неизвестный пакет: %d %v", rec.Code, body)
	}
}

func TestStoreErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mem.Set([]byte(`{"packages": [`))

	rec := env.do(t, http.MethodGet, "/api/v1/packages/p1/validate", "")
	if rec.Code != http.StatusInternalServerError || errorCode(t, rec) != apierrors.CodeStoreUnreadable {
		t.Errorf("повреждённый документ: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/health/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready при повреждённом документе: %d", rec.Code)
	}
}

// brokenWriteMedium — носитель, отклоняющий запись.
type brokenWriteMedium struct {
	medium.Medium
}

func (brokenWriteMedium) Write(context.Context, []byte, string) (string, error) {
	return "", errors.New("диск только для чтения")
}

func TestStoreUnwritable(t *testing.T) {
	env := newTestEnvWithMedium(t, brokenWriteMedium{Medium: medium.NewMemoryMedium()}, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/packages", `{"id":"p1"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("статус: %d", rec.Code)
	}
	if code := errorCode(t, rec); code != apierrors.CodeStoreUnwritable {
		t.Errorf("код: %s", code)
	}
}

// staticDeps — фиксированное состояние зависимостей.
type staticDeps map[string]bool

func (d staticDeps) Health() map[string]bool { return d }

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health/live", "")
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "ok" {
		t.Errorf("live: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/health/ready", "")
	if rec.Code != http.StatusOK {
		t.Errorf("ready: %d %s", rec.Code, rec.Body.String())
	}

	env = newTestEnv(t, staticDeps{"postgresql:db:5432": false})
	rec = env.do(t, http.MethodGet, "/health/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready с недоступной зависимостью: %d %s", rec.Code, rec.Body.String())
	}
	checks, _ := decode(t, rec)["checks"].(map[string]any)
	if _, ok := checks["postgresql:db:5432"]; !ok {
		t.Errorf("зависимость отсутствует в checks: %v", checks)
	}
}

func TestSpecAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/v1/packages", `{"id":"p1"}`)

	rec := env.do(t, http.MethodGet, "/api/v1/openapi.json", "")
	if rec.Code != http.StatusOK || decode(t, rec)["openapi"] != "3.0.3" {
		t.Errorf("openapi.json: %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("ps_store_operations_total")) {
		t.Errorf("metrics: %d", rec.Code)
	}
}
