// health.go — обработчики health endpoints Package Store.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (документ хранилища читается, зависимости носителя доступны)
// /metrics — Prometheus метрики
package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/package-store/internal/config"
)

const (
	statusOK   = "ok"
	statusFail = "fail"
)

// readyTimeout — лимит времени на проверку документа хранилища.
const readyTimeout = 3 * time.Second

// StorePinger — проверка читаемости документа хранилища.
type StorePinger interface {
	Ping(ctx context.Context) error
	MediumName() string
}

// DependencyHealth — состояние внешних зависимостей носителя (topologymetrics).
type DependencyHealth interface {
	Health() map[string]bool
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks"`
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	store       StorePinger
	deps        DependencyHealth
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// deps может быть nil (файловый носитель и носитель в памяти).
func NewHealthHandler(store StorePinger, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{
		store:       store,
		deps:        deps,
		promHandler: promhttp.Handler(),
	}
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "package-store",
	})
}

// HealthReady — readiness probe. Возвращает 200 (ok) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	resp := healthReadyResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "package-store",
		Checks:    make(map[string]healthCheckResult),
	}

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if h.store == nil {
		resp.Checks["store"] = healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	} else if err := h.store.Ping(ctx); err != nil {
		resp.Checks["store"] = healthCheckResult{Status: statusFail, Message: err.Error()}
	} else {
		resp.Checks["store"] = healthCheckResult{Status: statusOK, Message: h.store.MediumName()}
	}

	if h.deps != nil {
		health := h.deps.Health()
		names := make([]string, 0, len(health))
		for name := range health {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if health[name] {
				resp.Checks[name] = healthCheckResult{Status: statusOK}
			} else {
				resp.Checks[name] = healthCheckResult{Status: statusFail, Message: "зависимость недоступна"}
			}
		}
	}

	status := http.StatusOK
	for _, c := range resp.Checks {
		if c.Status == statusFail {
			resp.Status = statusFail
			status = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}
