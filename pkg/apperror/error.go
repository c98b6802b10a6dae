package apperror

import "net/http"

// Kind classifies an error independently of its transport status code.
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindIO              Kind = "io_error"
	KindNotFound        Kind = "not_found"
	KindRateLimited     Kind = "rate_limited"
	KindUnavailable     Kind = "service_unavailable"
	KindInternal        Kind = "internal_error"
)

type AppError struct {
	Code    int    `json:"code"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code int, kind Kind, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

func BadRequest(message string) *AppError {
	return New(http.StatusBadRequest, KindValidation, message, nil)
}

// Validation rejects bad input before a scan starts.
func Validation(message string, err error) *AppError {
	return New(http.StatusUnprocessableEntity, KindValidation, message, err)
}

func PayloadTooLarge(message string) *AppError {
	return New(http.StatusRequestEntityTooLarge, KindPayloadTooLarge, message, nil)
}

// IO reports a file that could not be read or hashed.
func IO(message string, err error) *AppError {
	return New(http.StatusUnprocessableEntity, KindIO, message, err)
}

func NotFound(message string) *AppError {
	return New(http.StatusNotFound, KindNotFound, message, nil)
}

func TooManyRequests(message string) *AppError {
	return New(http.StatusTooManyRequests, KindRateLimited, message, nil)
}

func Internal(err error) *AppError {
	return New(http.StatusInternalServerError, KindInternal, "Internal Server Error", err)
}

func ServiceUnavailable(message string) *AppError {
	return New(http.StatusServiceUnavailable, KindUnavailable, message, nil)
}
