// Пакет errors — ответы с ошибками в едином формате Case Store:
// {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // TODO: переименовать пакет errors, конфликт со stdlib

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок.
const (
	CodeValidationError       = "VALIDATION_ERROR"
	CodeNotFound              = "NOT_FOUND"
	CodeIllegalName           = "ILLEGAL_NAME"
	CodeAlreadyExists         = "ALREADY_EXISTS"
	CodeNotImportable         = "NOT_IMPORTABLE"
	CodeInvalidQuery          = "INVALID_QUERY"
	CodeFileTooLarge          = "FILE_TOO_LARGE"
	CodeUnsupportedLayout     = "UNSUPPORTED_LAYOUT"
	CodeStorageNotInitialized = "STORAGE_NOT_INITIALIZED"
	CodeOperationInProgress   = "OPERATION_IN_PROGRESS"
	CodeInternalError         = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки.
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

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 кейс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// FileTooLarge — 413 файл превышает лимит.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// OperationInProgress — 409 сверка или очистка уже выполняется.
func OperationInProgress(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeOperationInProgress, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
