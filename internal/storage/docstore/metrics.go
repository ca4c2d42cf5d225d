package docstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики хранилища
var (
	// storeOperationsTotal — количество операций хранилища по результату.
	storeOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ps_store_operations_total",
		Help: "Общее количество операций хранилища пакетов",
	}, []string{"operation", "result"})

	// storeOperationDuration — длительность операций, включая повторы.
	storeOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ps_store_operation_duration_seconds",
		Help:    "Длительность операций хранилища пакетов в секундах",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"operation"})

	// storeConflictsTotal — количество конфликтов версий при записи документа.
	storeConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ps_store_version_conflicts_total",
		Help: "Общее количество конфликтов версий документа",
	})

	// packagesTotal — количество записей в документе на момент последнего чтения.
	packagesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ps_packages_total",
		Help: "Количество пакетов в документе хранилища",
	})
)

// resultLabel возвращает метку результата операции.
func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
