package errors

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

var (
	ErrValidation    = NewError("VALIDATION_ERROR", "invalid request", http.StatusBadRequest)
	ErrUnauthorized  = NewError("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized)
	ErrForbidden     = NewError("FORBIDDEN", "forbidden", http.StatusForbidden)
	ErrRateLimited   = NewError("RATE_LIMITED", "rate limit exceeded", http.StatusTooManyRequests)
	ErrNotConfigured = NewError("NOT_CONFIGURED", "webhook not configured", http.StatusInternalServerError)
	ErrInternal      = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrUpstream      = NewError("UPSTREAM_ERROR", "upstream error", http.StatusBadGateway)
)

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	Cause   error
	fatal   bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
			msg = detailMsg
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) IsFatal() bool {
	if e.fatal {
		return true
	}
	if e.Cause != nil {
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return fatalErr.IsFatal()
		}
	}
	return false
}

// Is matches on Code so sentinel comparisons survive WithCause/WithDetail copies.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

func (e *Error) WithCause(cause error) *Error {
	err := e.clone()
	err.Cause = cause
	return err
}

func (e *Error) WithMessage(message string) *Error {
	err := e.clone()
	err.Message = message
	return err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := e.clone()
	err.Details[key] = value
	return err
}

func (e *Error) AsFatal() *Error {
	err := e.clone()
	err.fatal = true
	return err
}

// Detail returns the bounded "detail" entry, if any.
func (e *Error) Detail() string {
	if d, ok := e.Details["detail"].(string); ok {
		return d
	}
	return ""
}

func (e *Error) clone() *Error {
	err := *e
	err.Details = make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		err.Details[k] = v
	}
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// ToErrorResponse renders the JSON error body. Upstream errors carry the
// downstream status and a bounded excerpt of its body.
func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}

	if status, ok := appErr.Details["status"]; ok {
		response["status"] = status
	}
	if detail, ok := appErr.Details["detail"]; ok {
		response["detail"] = detail
	}

	return response
}

// Truncate cuts s to at most max code points.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
