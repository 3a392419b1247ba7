// Package errors define la estructura estándar de errores HTTP y el
// catálogo de errores predefinidos de la API.
package errors

import (
	"fmt"
	"net/http"
)

// AppError define la estructura estándar para errores de la aplicación.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"` // No se serializa, usado para el header
	Err        error  `json:"-"` // Causa original, solo para logs
}

// Error implementa la interfaz error.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap permite acceder al error original.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New crea un nuevo AppError.
func New(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// FromError intenta convertir un error genérico en un AppError. Si no lo
// es, devuelve un error interno genérico conservando la causa.
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return ErrInternal.WithCause(err)
}

// WithDetail agrega detalle al error. Devuelve una COPIA para no mutar
// las variables globales base.
func (e *AppError) WithDetail(detail string) *AppError {
	newErr := *e
	newErr.Detail = detail
	return &newErr
}

// WithCause agrega la causa original. Devuelve una COPIA.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// Errores predefinidos. Los códigos forman la taxonomía pública de la API:
// el cliente decide por Code, nunca por Message.
var (
	ErrBadRequest = &AppError{
		HTTPStatus: http.StatusBadRequest,
		Code:       "BAD_REQUEST",
		Message:    "invalid request",
	}

	ErrValidation = &AppError{
		HTTPStatus: http.StatusUnprocessableEntity,
		Code:       "VALIDATION_ERROR",
		Message:    "request failed validation",
	}

	ErrAuthenticationFailed = &AppError{
		HTTPStatus: http.StatusUnauthorized,
		Code:       "AUTHENTICATION_FAILED",
		Message:    "authentication failed",
	}

	ErrMFARequired = &AppError{
		HTTPStatus: http.StatusUnauthorized,
		Code:       "MFA_REQUIRED",
		Message:    "second factor verification required",
	}

	ErrPermissionDenied = &AppError{
		HTTPStatus: http.StatusForbidden,
		Code:       "PERMISSION_DENIED",
		Message:    "caller is not allowed to perform this operation",
	}

	ErrDoesNotExist = &AppError{
		HTTPStatus: http.StatusNotFound,
		Code:       "DOES_NOT_EXIST",
		Message:    "resource not found",
	}

	ErrConflict = &AppError{
		HTTPStatus: http.StatusConflict,
		Code:       "CONFLICT",
		Message:    "resource already exists",
	}

	ErrRateLimited = &AppError{
		HTTPStatus: http.StatusTooManyRequests,
		Code:       "RATE_LIMITED",
		Message:    "too many requests",
	}

	ErrLicenseInvalid = &AppError{
		HTTPStatus: http.StatusForbidden,
		Code:       "LICENSE_INVALID",
		Message:    "license validation failed",
	}

	ErrLicenseExpired = &AppError{
		HTTPStatus: http.StatusForbidden,
		Code:       "LICENSE_EXPIRED",
		Message:    "license has expired",
	}

	ErrInternal = &AppError{
		HTTPStatus: http.StatusInternalServerError,
		Code:       "INTERNAL",
		Message:    "internal server error",
	}
)
