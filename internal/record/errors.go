package record

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
	CodePreconditionFailed Code = "PRECONDITION_FAILED"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeBadRequest         Code = "BAD_REQUEST"
)

// Error is the typed failure returned by every core operation. None of them
// are retryable.
type Error struct {
	Code    Code
	Message string
	Details any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches the sentinels below by code, so errors.Is(err, ErrNotFound)
// holds for any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Message == "" && t.Code == e.Code
}

var (
	ErrValidation         = &Error{Code: CodeValidation}
	ErrNotFound           = &Error{Code: CodeNotFound}
	ErrInvalidTransition  = &Error{Code: CodeInvalidTransition}
	ErrPreconditionFailed = &Error{Code: CodePreconditionFailed}
	ErrUnauthorized       = &Error{Code: CodeUnauthorized}
	ErrBadRequest         = &Error{Code: CodeBadRequest}
)

func ValidationError(message string) error {
	return &Error{Code: CodeValidation, Message: message}
}

func NotFound(kind Kind, hash string) error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("no %s record with hash %q", kind, hash),
		Details: map[string]any{"kind": kind, "hash": hash},
	}
}

func InvalidTransition(kind Kind, hash string, current Status) error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("%s record %s is already %s", kind, hash, current),
		Details: map[string]any{"kind": kind, "hash": hash, "status": current},
	}
}

func PreconditionFailed(reason string, reasons []string) error {
	return &Error{
		Code:    CodePreconditionFailed,
		Message: reason,
		Details: map[string]any{"reasons": reasons},
	}
}

func Unauthorized() error {
	return &Error{Code: CodeUnauthorized, Message: "invalid moderation credential"}
}

func BadRequest(message string) error {
	return &Error{Code: CodeBadRequest, Message: message}
}

// CodeOf returns the code of a typed error, or "" for anything else.
func CodeOf(err error) Code {
	var typed *Error
	if errors.As(err, &typed) && typed != nil {
		return typed.Code
	}
	return ""
}
