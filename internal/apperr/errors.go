package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups errors by how they surface over HTTP.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindConflict
	KindBusinessRule
	KindUnavailable
)

var kindStatus = map[Kind]int{
	KindInternal:     http.StatusInternalServerError,
	KindValidation:   http.StatusBadRequest,
	KindNotFound:     http.StatusNotFound,
	KindUnauthorized: http.StatusUnauthorized,
	KindForbidden:    http.StatusForbidden,
	KindConflict:     http.StatusConflict,
	KindBusinessRule: http.StatusBadRequest,
	KindUnavailable:  http.StatusServiceUnavailable,
}

// Code identifies a specific failure so callers and tests can branch on it.
type Code string

const (
	CodeInternal     Code = "INTERNAL"
	CodeValidation   Code = "VALIDATION_FAILED"
	CodeNotFound     Code = "NOT_FOUND"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeConflict     Code = "CONFLICT"
	CodeUnavailable  Code = "DATABASE_UNAVAILABLE"

	CodeCouponNotFound      Code = "COUPON_NOT_FOUND"
	CodeCouponExpired       Code = "COUPON_EXPIRED"
	CodeCouponLimitReached  Code = "COUPON_LIMIT_REACHED"
	CodeCouponNotEligible   Code = "COUPON_NOT_ELIGIBLE"
	CodeCouponNotApplicable Code = "COUPON_NOT_APPLICABLE"
	CodeCouponBelowMinimum  Code = "COUPON_BELOW_MINIMUM"
	CodeCouponCodeTaken     Code = "COUPON_CODE_TAKEN"

	CodeProductNotFound   Code = "PRODUCT_NOT_FOUND"
	CodeVariantNotFound   Code = "VARIANT_NOT_FOUND"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeInvalidAddress    Code = "INVALID_ADDRESS"
	CodeInvalidAmount     Code = "INVALID_AMOUNT"
	CodeLineTotalMismatch Code = "LINE_TOTAL_MISMATCH"

	CodeOrderNotFound  Code = "ORDER_NOT_FOUND"
	CodeInvalidState   Code = "INVALID_STATE"
	CodeStatusConflict Code = "STATUS_CONFLICT"

	CodePaymentNotFound     Code = "PAYMENT_NOT_FOUND"
	CodeRefundExceedsAmount Code = "REFUND_EXCEEDS_AMOUNT"
)

type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status for the error kind.
func (e *Error) Status() int {
	if status, ok := kindStatus[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func New(kind Kind, code Code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code Code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func Validation(message string, details ...string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: message, Details: details}
}

func NotFound(code Code, message string) *Error {
	return New(KindNotFound, code, message)
}

func Business(code Code, message string) *Error {
	return New(KindBusinessRule, code, message)
}

func Internal(err error) *Error {
	return Wrap(KindInternal, CodeInternal, "internal server error", err)
}

// As extracts an *Error from err. Errors that are not application errors are
// reported as internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// CodeOf returns the code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	return As(err).Code
}

func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
