package openapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// Шаблоны путей контракта.
const (
	PathPackages        = "/api/v1/packages"
	PathPackage         = "/api/v1/packages/{package_id}"
	PathPackageValidate = "/api/v1/packages/{package_id}/validate"
	PathSpec            = "/api/v1/openapi.json"
	PathHealthLive      = "/health/live"
	PathHealthReady     = "/health/ready"
	PathMetrics         = "/metrics"
)

// PackageId — идентификатор пакета из пути.
type PackageId = string //nolint:revive // имя параметра в контракте

// ServerInterface — обработчики всех операций контракта.
type ServerInterface interface {
	// GET /api/v1/packages
	ListPackages(w http.ResponseWriter, r *http.Request)
	// POST /api/v1/packages
	CreatePackage(w http.ResponseWriter, r *http.Request)
	// GET /api/v1/packages/{package_id}
	GetPackage(w http.ResponseWriter, r *http.Request, packageID PackageId)
	// PATCH /api/v1/packages/{package_id}
	UpdatePackage(w http.ResponseWriter, r *http.Request, packageID PackageId)
	// GET /api/v1/packages/{package_id}/validate
	ValidatePackage(w http.ResponseWriter, r *http.Request, packageID PackageId)
	// GET /api/v1/openapi.json
	GetOpenAPISpec(w http.ResponseWriter, r *http.Request)
	// GET /health/live
	HealthLive(w http.ResponseWriter, r *http.Request)
	// GET /health/ready
	HealthReady(w http.ResponseWriter, r *http.Request)
	// GET /metrics
	GetMetrics(w http.ResponseWriter, r *http.Request)
}

// InvalidParamFormatError — параметр пути не удалось разобрать.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("некорректный формат параметра %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// ServerInterfaceWrapper разбирает параметры и вызывает ServerInterface.
type ServerInterfaceWrapper struct {
	Handler          ServerInterface
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) ListPackages(w http.ResponseWriter, r *http.Request) {
	siw.Handler.ListPackages(w, r)
}

func (siw *ServerInterfaceWrapper) CreatePackage(w http.ResponseWriter, r *http.Request) {
	siw.Handler.CreatePackage(w, r)
}

func (siw *ServerInterfaceWrapper) GetPackage(w http.ResponseWriter, r *http.Request) {
	packageID, ok := siw.bindPackageID(w, r)
	if !ok {
		return
	}
	siw.Handler.GetPackage(w, r, packageID)
}

func (siw *ServerInterfaceWrapper) UpdatePackage(w http.ResponseWriter, r *http.Request) {
	packageID, ok := siw.bindPackageID(w, r)
	if !ok {
		return
	}
	siw.Handler.UpdatePackage(w, r, packageID)
}

func (siw *ServerInterfaceWrapper) ValidatePackage(w http.ResponseWriter, r *http.Request) {
	packageID, ok := siw.bindPackageID(w, r)
	if !ok {
		return
	}
	siw.Handler.ValidatePackage(w, r, packageID)
}

func (siw *ServerInterfaceWrapper) GetOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	siw.Handler.GetOpenAPISpec(w, r)
}

func (siw *ServerInterfaceWrapper) HealthLive(w http.ResponseWriter, r *http.Request) {
	siw.Handler.HealthLive(w, r)
}

func (siw *ServerInterfaceWrapper) HealthReady(w http.ResponseWriter, r *http.Request) {
	siw.Handler.HealthReady(w, r)
}

func (siw *ServerInterfaceWrapper) GetMetrics(w http.ResponseWriter, r *http.Request) {
	siw.Handler.GetMetrics(w, r)
}

// bindPackageID разбирает package_id в стиле simple.
func (siw *ServerInterfaceWrapper) bindPackageID(w http.ResponseWriter, r *http.Request) (PackageId, bool) {
	var packageID PackageId
	err := runtime.BindStyledParameterWithOptions("simple", "package_id", chi.URLParam(r, "package_id"), &packageID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err == nil && packageID == "" {
		err = errors.New("пустое значение")
	}
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "package_id", Err: err})
		return "", false
	}
	return packageID, true
}

// HandlerFromMux регистрирует маршруты контракта на переданном роутере.
func HandlerFromMux(si ServerInterface, r chi.Router, errorHandler func(w http.ResponseWriter, r *http.Request, err error)) http.Handler {
	if errorHandler == nil {
		errorHandler = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:          si,
		ErrorHandlerFunc: errorHandler,
	}

	r.Get(PathPackages, wrapper.ListPackages)
	r.Post(PathPackages, wrapper.CreatePackage)
	r.Get(PathPackage, wrapper.GetPackage)
	r.Patch(PathPackage, wrapper.UpdatePackage)
	r.Get(PathPackageValidate, wrapper.ValidatePackage)
	r.Get(PathSpec, wrapper.GetOpenAPISpec)
	r.Get(PathHealthLive, wrapper.HealthLive)
	r.Get(PathHealthReady, wrapper.HealthReady)
	r.Get(PathMetrics, wrapper.GetMetrics)

	return r
}
