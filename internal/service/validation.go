// validation.go — движок валидации пакетов.
//
// Решение о пригодности пакета:
//   - нет записи            → not_found
//   - es_valido = false     → invalid_link
//   - now >= expiracion     → expired; es_valido = false записывается один раз,
//     повторные проверки дают invalid_link
//   - иначе                 → valid, возвращается запись
//
// Проверка и пометка выполняются в одном цикле чтение-изменение-запись
// хранилища, поэтому из конкурентных проверок истёкшего пакета
// ровно одна получает expired. Фоновой очистки нет: истечение
// обнаруживается лениво при проверке.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/package-store/internal/domain/model"
	"github.com/bigkaa/goartstore/package-store/internal/storage/docstore"
)

// Метки результата ps_validations_total.
const (
	resultValid = "valid"
	resultError = "error"
)

// validationsTotal — количество проверок по результату.
var validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ps_validations_total",
	Help: "Общее количество проверок пакетов по результату",
}, []string{"result"})

// ValidationService — движок валидации.
type ValidationService struct {
	store  *docstore.Store
	now    func() time.Time
	logger *slog.Logger
}

// NewValidationService создаёт движок валидации.
func NewValidationService(store *docstore.Store, logger *slog.Logger, opts ...Option) *ValidationService {
	o := applyOptions(opts)
	return &ValidationService{
		store:  store,
		now:    o.now,
		logger: logger.With(slog.String("component", "validation_service")),
	}
}

// Validate проверяет пакет id.
// Ошибка возвращается только при сбое хранилища (docstore.ErrStoreUnreadable,
// docstore.ErrStoreUnwritable); в этом случае состояние пакета не меняется.
func (s *ValidationService) Validate(ctx context.Context, id string) (*model.ValidationResult, error) {
	var result *model.ValidationResult

	_, found, err := s.store.Mutate(ctx, id, func(rec *model.PackageRecord) (bool, error) {
		now := s.now()

		switch {
		case !rec.Valid:
			result = model.Rejected(model.ReasonInvalid)
			return false, nil

		case rec.IsExpired(now):
			if _, err := rec.Apply(model.Revoke()); err != nil {
				return false, err
			}
			result = model.Rejected(model.ReasonExpired)
			return true, nil

		default:
			result = model.Accepted(rec.Clone())
			return false, nil
		}
	})
	if err != nil {
		validationsTotal.WithLabelValues(resultError).Inc()
		s.logger.Error("Ошибка валидации пакета",
			slog.String("package_id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("валидация пакета %s: %w", id, err)
	}

	if !found {
		result = model.Rejected(model.ReasonNotFound)
	}

	if result.Valid {
		validationsTotal.WithLabelValues(resultValid).Inc()
	} else {
		validationsTotal.WithLabelValues(string(result.Reason)).Inc()
	}

	if result.Reason == model.ReasonExpired {
		s.logger.Info("Пакет истёк и помечен недействительным",
			slog.String("package_id", id),
		)
	} else {
		s.logger.Debug("Пакет проверен",
			slog.String("package_id", id),
			slog.Bool("valid", result.Valid),
			slog.String("reason", string(result.Reason)),
		)
	}

	return result, nil
}
