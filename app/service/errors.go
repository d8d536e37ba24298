package service

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type ErrorKind string

const (
	KindValidation            ErrorKind = "validation"
	KindDuplicateEmail        ErrorKind = "duplicate_email"
	KindInvalidCredentials    ErrorKind = "invalid_credentials"
	KindInvalidOrExpiredCode  ErrorKind = "invalid_or_expired_code"
	KindInvalidOrExpiredToken ErrorKind = "invalid_or_expired_token"
	KindUnauthorized          ErrorKind = "unauthorized"
	KindNotFound              ErrorKind = "not_found"
	KindEmailDeliveryFailed   ErrorKind = "email_delivery_failed"
	KindInternal              ErrorKind = "internal"
)

// Error is the result every auth operation fails with. Field names the
// offending input when there is one.
type Error struct {
	Kind    ErrorKind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrValidation)
// holds regardless of field or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation            = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrDuplicateEmail        = &Error{Kind: KindDuplicateEmail, Field: "email", Message: "email is already in use"}
	ErrInvalidCredentials    = &Error{Kind: KindInvalidCredentials, Message: "invalid email or password"}
	ErrInvalidOrExpiredCode  = &Error{Kind: KindInvalidOrExpiredCode, Field: "code", Message: "invalid or expired code"}
	ErrInvalidOrExpiredToken = &Error{Kind: KindInvalidOrExpiredToken, Field: "token", Message: "invalid or expired reset token"}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrNotFound              = &Error{Kind: KindNotFound, Message: "user not found"}
	ErrEmailDeliveryFailed   = &Error{Kind: KindEmailDeliveryFailed, Message: "failed to send email"}
	ErrInternal              = &Error{Kind: KindInternal, Message: "internal server error"}
)

func validationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func internalError(err error) *Error {
	return &Error{Kind: KindInternal, Message: ErrInternal.Message, Err: err}
}

// AsError unwraps err into an *Error, treating anything unrecognized as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return internalError(err)
}

type validatable interface {
	Validate() error
}

// validateRequest reports the first failing field of req.
func validateRequest(req validatable) error {
	err := req.Validate()
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return internalError(err)
	}

	fe := fieldErrs[0]
	return validationError(fe.Field(), describeFieldError(fe))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "len":
		return fmt.Sprintf("%s must be %s characters", field, fe.Param())
	case "numeric":
		return field + " must contain only digits"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "datetime":
		return field + " must be a date in YYYY-MM-DD format"
	default:
		return field + " is invalid"
	}
}
