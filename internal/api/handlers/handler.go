// handler.go — APIHandler реализует openapi.ServerInterface,
// делегируя вызовы в отдельные handler'ы по доменам.
package handlers

import (
	"net/http"

	"github.com/bigkaa/goartstore/package-store/internal/api/openapi"
)

// APIHandler — единая реализация ServerInterface, собирающая
// все доменные handlers в один объект.
type APIHandler struct {
	packages *PackagesHandler
	health   *HealthHandler
	spec     http.HandlerFunc
}

// NewAPIHandler создаёт единый handler для всех endpoints.
// spec — обработчик /api/v1/openapi.json.
func NewAPIHandler(packages *PackagesHandler, health *HealthHandler, spec http.HandlerFunc) *APIHandler {
	return &APIHandler{
		packages: packages,
		health:   health,
		spec:     spec,
	}
}

// --- Packages ---

func (h *APIHandler) ListPackages(w http.ResponseWriter, r *http.Request) {
	h.packages.ListPackages(w, r)
}

func (h *APIHandler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	h.packages.CreatePackage(w, r)
}

func (h *APIHandler) GetPackage(w http.ResponseWriter, r *http.Request, packageID openapi.PackageId) {
	h.packages.GetPackage(w, r, packageID)
}

func (h *APIHandler) UpdatePackage(w http.ResponseWriter, r *http.Request, packageID openapi.PackageId) {
	h.packages.UpdatePackage(w, r, packageID)
}

func (h *APIHandler) ValidatePackage(w http.ResponseWriter, r *http.Request, packageID openapi.PackageId) {
	h.packages.ValidatePackage(w, r, packageID)
}

// --- Contract ---

func (h *APIHandler) GetOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	h.spec(w, r)
}

// --- Health & Metrics ---

func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// Проверка на этапе компиляции
var _ openapi.ServerInterface = (*APIHandler)(nil)
