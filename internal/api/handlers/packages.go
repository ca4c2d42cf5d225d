// packages.go — обработчики операций с пакетами: создание, список, чтение,
// отзыв/обновление полей и проверка пригодности.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/package-store/internal/api/errors"
	"github.com/bigkaa/goartstore/package-store/internal/api/openapi"
	"github.com/bigkaa/goartstore/package-store/internal/domain/model"
	"github.com/bigkaa/goartstore/package-store/internal/service"
	"github.com/bigkaa/goartstore/package-store/internal/storage/docstore"
)

// maxBodySize — максимальный размер тела запроса (1 МБ).
const maxBodySize = 1 << 20

// createPackageRequest — тело POST /api/v1/packages.
type createPackageRequest struct {
	ID     string                     `json:"id,omitempty"`
	Fields map[string]json.RawMessage `json:"fields,omitempty"`
}

// updatePackageRequest — тело PATCH /api/v1/packages/{package_id}.
type updatePackageRequest struct {
	Valid  *bool                      `json:"es_valido,omitempty"`
	Fields map[string]json.RawMessage `json:"fields,omitempty"`
}

// packageListResponse — ответ GET /api/v1/packages.
type packageListResponse struct {
	Packages []*model.PackageRecord `json:"packages"`
	Total    int                    `json:"total"`
}

// PackagesHandler — обработчик операций с пакетами.
type PackagesHandler struct {
	packages   *service.PackageService
	validation *service.ValidationService
	bodies     *openapi.BodyValidator
	logger     *slog.Logger
}

// NewPackagesHandler создаёт обработчик операций с пакетами.
func NewPackagesHandler(
	packages *service.PackageService,
	validation *service.ValidationService,
	bodies *openapi.BodyValidator,
	logger *slog.Logger,
) *PackagesHandler {
	return &PackagesHandler{
		packages:   packages,
		validation: validation,
		bodies:     bodies,
		logger:     logger.With(slog.String("component", "packages_handler")),
	}
}

// ListPackages обрабатывает GET /api/v1/packages.
func (h *PackagesHandler) ListPackages(w http.ResponseWriter, r *http.Request) {
	list, err := h.packages.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []*model.PackageRecord{}
	}
	writeJSON(w, http.StatusOK, packageListResponse{Packages: list, Total: len(list)})
}

// CreatePackage обрабатывает POST /api/v1/packages.
func (h *PackagesHandler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	var req createPackageRequest
	if !h.decodeBody(w, r, openapi.PathPackages, &req) {
		return
	}

	rec, err := h.packages.Create(r.Context(), service.CreateParams{
		ID:     req.ID,
		Fields: req.Fields,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// GetPackage обрабатывает GET /api/v1/packages/{package_id}.
// Срок не проверяется: запись отдаётся как есть.
func (h *PackagesHandler) GetPackage(w http.ResponseWriter, r *http.Request, packageID openapi.PackageId) {
	rec, err := h.packages.Get(r.Context(), packageID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdatePackage обрабатывает PATCH /api/v1/packages/{package_id}.
func (h *PackagesHandler) UpdatePackage(w http.ResponseWriter, r *http.Request, packageID openapi.PackageId) {
	var req updatePackageRequest
	if !h.decodeBody(w, r, openapi.PathPackage, &req) {
		return
	}

	rec, err := h.packages.Update(r.Context(), packageID, model.Patch{
		Valid:  req.Valid,
		Fields: req.Fields,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ValidatePackage обрабатывает GET /api/v1/packages/{package_id}/validate.
// Отрицательные результаты (not_found, invalid_link, expired) отдаются с 200.
func (h *PackagesHandler) ValidatePackage(w http.ResponseWriter, r *http.Request, packageID openapi.PackageId) {
	result, err := h.validation.Validate(r.Context(), packageID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decodeBody читает тело, проверяет его по контракту и декодирует в dst.
// При ошибке пишет 400 и возвращает false.
func (h *PackagesHandler) decodeBody(w http.ResponseWriter, r *http.Request, pathTemplate string, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		apierrors.ValidationError(w, "Не удалось прочитать тело запроса: "+err.Error())
		return false
	}

	if err := h.bodies.Validate(pathTemplate, r.Method, body); err != nil {
		apierrors.ValidationError(w, err.Error())
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}
	return true
}

// writeServiceError преобразует ошибку сервиса в HTTP-ответ.
func (h *PackagesHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, docstore.ErrDuplicateID):
		apierrors.DuplicateID(w, err.Error())
	case errors.Is(err, model.ErrIllegalTransition):
		apierrors.IllegalTransition(w, err.Error())
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, model.ErrReservedField),
		errors.Is(err, model.ErrMalformedRecord):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, docstore.ErrStoreUnreadable):
		h.logger.Error("Документ хранилища не читается", slog.String("error", err.Error()))
		apierrors.StoreUnreadable(w, "Хранилище пакетов недоступно для чтения")
	case errors.Is(err, docstore.ErrStoreUnwritable):
		h.logger.Error("Документ хранилища не записан", slog.String("error", err.Error()))
		apierrors.StoreUnwritable(w, "Хранилище пакетов недоступно для записи")
	default:
		h.logger.Error("Внутренняя ошибка", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка")
	}
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
