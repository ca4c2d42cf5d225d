// Пакет openapi — контракт HTTP API Package Store: встроенный OpenAPI документ,
// проверка тел запросов по схемам и привязка маршрутов к chi.
package openapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var rawSpec []byte

// ErrInvalidBody — тело запроса не соответствует схеме.
var ErrInvalidBody = errors.New("тело запроса не соответствует контракту")

// Load разбирает и проверяет встроенный OpenAPI документ.
func Load() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("разбор OpenAPI документа: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("проверка OpenAPI документа: %w", err)
	}
	return doc, nil
}

// BodyValidator проверяет JSON тела запросов по схемам requestBody.
type BodyValidator struct {
	doc *openapi3.T
}

// NewBodyValidator создаёт валидатор поверх загруженного документа.
func NewBodyValidator(doc *openapi3.T) *BodyValidator {
	return &BodyValidator{doc: doc}
}

// Document возвращает OpenAPI документ.
func (v *BodyValidator) Document() *openapi3.T {
	return v.doc
}

// Validate проверяет тело запроса операции (pathTemplate, method).
// Пустое тело при required requestBody — ошибка.
// Возвращает ошибку, обёрнутую в ErrInvalidBody.
func (v *BodyValidator) Validate(pathTemplate, method string, body []byte) error {
	schema, required, err := v.requestSchema(pathTemplate, method)
	if err != nil {
		return err
	}
	if schema == nil {
		return nil
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		if required {
			return fmt.Errorf("%w: пустое тело", ErrInvalidBody)
		}
		return nil
	}

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return fmt.Errorf("%w: некорректный JSON: %v", ErrInvalidBody, err)
	}
	if err := schema.VisitJSON(value, openapi3.MultiErrors()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return nil
}

// requestSchema находит схему application/json тела операции.
func (v *BodyValidator) requestSchema(pathTemplate, method string) (*openapi3.Schema, bool, error) {
	item := v.doc.Paths.Value(pathTemplate)
	if item == nil {
		return nil, false, fmt.Errorf("путь %s отсутствует в контракте", pathTemplate)
	}
	op := item.GetOperation(strings.ToUpper(method))
	if op == nil {
		return nil, false, fmt.Errorf("операция %s %s отсутствует в контракте", method, pathTemplate)
	}
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil, false, nil
	}

	media := op.RequestBody.Value.Content.Get("application/json")
	if media == nil || media.Schema == nil || media.Schema.Value == nil {
		return nil, false, nil
	}
	return media.Schema.Value, op.RequestBody.Value.Required, nil
}

// SpecJSONHandler отдаёт документ в формате JSON.
func SpecJSONHandler(doc *openapi3.T) (http.HandlerFunc, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("сериализация OpenAPI документа: %w", err)
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}, nil
}
