package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-admission-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

// storeError maps persistence failures onto the API taxonomy. Errors that are already
// typed pass through untouched.
func storeError(err error, notFound, op string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	case repository.IsUniqueViolation(err, repository.ConstraintSingleActiveYear):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "another academic year is already active; archive it first")
	case repository.IsUniqueViolation(err, repository.ConstraintSingleActiveTerm):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "another term is already active; close it first")
	case repository.IsUniqueViolation(err, repository.ConstraintYearName):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "academic year name already exists")
	case repository.IsUniqueViolation(err):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, fmt.Sprintf("%s: record already exists", op))
	case repository.IsTransient(err), errors.Is(err, context.Canceled):
		return appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, fmt.Sprintf("%s: temporarily unavailable, retry later", op))
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to "+op)
	}
}

// payloadError converts validator output into a ValidationError listing every failed field.
func payloadError(err error, message string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		if fe.Param() != "" {
			details = append(details, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		details = append(details, fmt.Sprintf("%s failed %s", field, fe.Tag()))
	}
	return appErrors.WithDetails(appErrors.ErrValidation, message, details)
}
