// Пакет errors — конструкторы стандартных ошибок Package Store.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // конфликт имени со stdlib, пакет импортируется под алиасом

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeDuplicateID       = "DUPLICATE_ID"
	CodeIllegalTransition = "ILLEGAL_TRANSITION"
	CodeStoreUnreadable   = "STORE_UNREADABLE"
	CodeStoreUnwritable   = "STORE_UNWRITABLE"
	CodeInternalError     = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 пакет не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// DuplicateID — 409 пакет с таким id уже существует.
func DuplicateID(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeDuplicateID, message)
}

// IllegalTransition — 409 недопустимое изменение состояния пакета.
func IllegalTransition(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeIllegalTransition, message)
}

// StoreUnreadable — 500 документ хранилища не читается или повреждён.
func StoreUnreadable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeStoreUnreadable, message)
}

// StoreUnwritable — 500 документ хранилища не удалось записать.
func StoreUnwritable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeStoreUnwritable, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
