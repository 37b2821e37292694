package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"jobboard/api/internal/auth"
	"jobboard/api/internal/authpw"
	"jobboard/api/internal/editsession"
	"jobboard/api/internal/export"
	"jobboard/api/internal/gitrepo"
	"jobboard/api/internal/richtext"
	"jobboard/api/internal/store"
	"jobboard/api/internal/tablebuilder"
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

var (
	errForbidden          = domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	errWorkspaceNotFound  = domainError(http.StatusNotFound, "WORKSPACE_NOT_FOUND", "Editor workspace not found", nil)
	errUnknownField       = domainError(http.StatusNotFound, "UNKNOWN_FIELD", "Unknown content field", nil)
	errHistoryUnavailable = domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Revision history is not enabled", nil)
)

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make(map[string]string, len(validationErrs))
		for _, fe := range validationErrs {
			fields[fe.Field()] = fe.Tag()
		}
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid input", fields
	}
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, gitrepo.ErrNoHistory):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "DUPLICATE", "A job with this slug already exists", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrMissingCredentials):
		return http.StatusBadRequest, "MISSING_CREDENTIALS", "Username and password are required", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials", nil
	case errors.Is(err, export.ErrContentUnavailable):
		return http.StatusServiceUnavailable, "CONTENT_UNAVAILABLE", "Job page is temporarily unavailable", nil
	case errors.Is(err, editsession.ErrEditorNotReady):
		return http.StatusConflict, "EDITOR_NOT_READY", editsession.NotReadyMessage, nil
	case errors.Is(err, tablebuilder.ErrClosed):
		return http.StatusConflict, "BUILDER_CLOSED", "No table is being edited", nil
	case errors.Is(err, tablebuilder.ErrUnknownOp), errors.Is(err, tablebuilder.ErrOutOfRange), errors.Is(err, tablebuilder.ErrBadColor):
		return http.StatusUnprocessableEntity, "INVALID_TABLE_OP", err.Error(), nil
	case errors.Is(err, richtext.ErrUnitNotFound), errors.Is(err, richtext.ErrNotEmbed):
		return http.StatusNotFound, "UNIT_NOT_FOUND", "No table at that position", nil
	case errors.Is(err, richtext.ErrEmptyMarkup), errors.Is(err, richtext.ErrNotTable):
		return http.StatusUnprocessableEntity, "INVALID_TABLE", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
