// Package apperr defines the error taxonomy shared by the orchestration
// services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and status mapping.
type Kind string

const (
	KindValidation Kind = "VALIDATION_ERROR"
	KindCSRF       Kind = "CSRF_INVALID"
	KindNotFound   Kind = "NOT_FOUND"
	KindConflict   Kind = "CONFLICT"
	KindProvider   Kind = "PROVIDER_ERROR"
	KindConfig     Kind = "CONFIG_ERROR"
)

// Codes returned to clients.
const (
	CodeInvalidAmount         = "INVALID_AMOUNT"
	CodeMissingFields         = "MISSING_FIELDS"
	CodeInvalidDateRange      = "INVALID_DATE_RANGE"
	CodeCheckoutCreateFailed  = "CHECKOUT_CREATE_FAILED"
	CodePaymentIntentNotFound = "PAYMENT_INTENT_NOT_FOUND"
	CodeRefundFailed          = "REFUND_FAILED"
	CodeLookupFailed          = "PAYMENT_LOOKUP_FAILED"
	CodeOrderNotFound         = "ORDER_NOT_FOUND"
	CodeRefundNotFound        = "REFUND_REQUEST_NOT_FOUND"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeRefundNotAllowed      = "REFUND_NOT_ALLOWED"
	CodePaymentMismatch       = "PAYMENT_MISMATCH"
	CodeCSRFInvalid           = "CSRF_INVALID"
	CodeNotConfigured         = "NOT_CONFIGURED"
	CodeEmailSendFailed       = "EMAIL_SEND_FAILED"
	CodeChatFailed            = "CHAT_UPSTREAM_FAILED"
	CodeRequestInProgress     = "REQUEST_IN_PROGRESS"
	CodeIdempotencyKeyReused  = "IDEMPOTENCY_KEY_REUSED"
	CodeInvalidRequest        = "INVALID_REQUEST"
)

// Error is the single error type crossing package boundaries.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Detail carries provider diagnostics; it is logged always and shown to
	// clients only outside production.
	Detail map[string]any
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the error kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindCSRF:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func NotFound(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

// Config reports a missing secret or setting. The message stays generic.
func Config(what string) *Error {
	return &Error{
		Kind:    KindConfig,
		Code:    CodeNotConfigured,
		Message: "service is not configured",
		Err:     fmt.Errorf("%s is not configured", what),
	}
}

func Provider(code, msg string, err error, detail map[string]any) *Error {
	return &Error{Kind: KindProvider, Code: code, Message: msg, Err: err, Detail: detail}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of err, or "" when err is not an *Error.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}
