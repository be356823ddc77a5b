// Package errs содержит структурированную таксономию ошибок агента.
//
// Коды ошибок — стабильный контракт с Dozor Cloud: по ним backend
// группирует сбои job'ов и показывает пользователю подсказки.
// Новые коды добавляются, существующие никогда не переименовываются.
package errs

import (
	"errors"
	"strconv"
)

// Code — стабильный строковый код ошибки.
type Code string

// Коды ошибок, известные Dozor Cloud.
const (
	// CodeGenericUnhandled — сбой без более точной классификации.
	CodeGenericUnhandled Code = "generic-unhandled-error"

	// CodeWrongUsernamePassword — datasource отклонил учётные данные.
	CodeWrongUsernamePassword Code = "wrong-username-or-password"

	// CodeCloudAPI — Dozor Cloud ответил неожиданным статусом.
	CodeCloudAPI Code = "cloud-api-error"

	// CodeDatasourceNotFound — datasource не найден в организации.
	CodeDatasourceNotFound Code = "datasource-not-found"

	// CodeCheckpointNotFound — checkpoint не найден в организации.
	CodeCheckpointNotFound Code = "checkpoint-not-found"
)

// Structured — ошибка со стабильным кодом и параметрами.
//
// Params возвращает ровно те поля, которые конкретный тип добавляет
// сверх message и кода: без констант уровня типа, без вычисляемых
// значений. Для голой CoreError — пустая map.
type Structured interface {
	error

	// ErrorCode возвращает стабильный код ошибки.
	ErrorCode() Code

	// Params возвращает дополнительный контекст для backend'а.
	Params() map[string]string
}

// CoreError — базовая структурированная ошибка.
//
// Конкретные типы встраивают CoreError и переопределяют Params,
// перечисляя собственные поля (см. APIError).
type CoreError struct {
	// Message — человекочитаемое описание сбоя.
	Message string

	// Code — стабильный код.
	Code Code
}

// New создаёт CoreError с кодом и сообщением.
func New(code Code, message string) *CoreError {
	return &CoreError{Message: message, Code: code}
}

// Error реализует интерфейс error.
func (e *CoreError) Error() string {
	return e.Message
}

// ErrorCode возвращает код ошибки.
func (e *CoreError) ErrorCode() Code {
	return e.Code
}

// Params возвращает пустую map: базовая ошибка дополнительных полей не несёт.
func (e *CoreError) Params() map[string]string {
	return map[string]string{}
}

// From извлекает структурированную ошибку из цепочки err.
//
// Ошибка, уже несущая код, возвращается как есть (propagate unchanged).
// Всё остальное заворачивается в generic-unhandled-error с сохранением
// исходного текста.
func From(err error) Structured {
	var s Structured
	if errors.As(err, &s) {
		return s
	}
	return New(CodeGenericUnhandled, err.Error())
}

// APIError — неожиданный ответ Dozor Cloud API.
type APIError struct {
	CoreError

	// StatusCode — HTTP-статус ответа.
	StatusCode int

	// Body — тело ответа (обрезанное).
	Body string
}

// NewAPIError создаёт APIError для ответа со статусом status.
func NewAPIError(message string, status int, body string) *APIError {
	return &APIError{
		CoreError:  CoreError{Message: message, Code: CodeCloudAPI},
		StatusCode: status,
		Body:       body,
	}
}

// Params возвращает статус и тело ответа.
func (e *APIError) Params() map[string]string {
	return map[string]string{
		"status_code": strconv.Itoa(e.StatusCode),
		"body":        e.Body,
	}
}
