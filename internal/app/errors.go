package app

import (
	"errors"
	"fmt"
	"net/http"

	"climbs/api/internal/record"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var statusByCode = map[record.Code]int{
	record.CodeValidation:         http.StatusUnprocessableEntity,
	record.CodeNotFound:           http.StatusNotFound,
	record.CodeInvalidTransition:  http.StatusConflict,
	record.CodePreconditionFailed: http.StatusPreconditionFailed,
	record.CodeUnauthorized:       http.StatusUnauthorized,
	record.CodeBadRequest:         http.StatusBadRequest,
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var typed *record.Error
	if errors.As(err, &typed) && typed != nil {
		if status, ok := statusByCode[typed.Code]; ok {
			return status, string(typed.Code), typed.Message, typed.Details
		}
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
