package service

import (
	"errors"

	"github.com/noah-isme/query-kb-api/internal/models"
	"github.com/noah-isme/query-kb-api/internal/repository"
	appErrors "github.com/noah-isme/query-kb-api/pkg/errors"
)

var lifecycleErrors = []error{
	models.ErrEmptySolution,
	models.ErrNoSolution,
	models.ErrInvalidDecision,
	models.ErrNotApproved,
	models.ErrAlreadyPublished,
	models.ErrNoPublishContent,
	models.ErrQueryClosed,
	models.ErrIllegalTransition,
	models.ErrEmptyAnswer,
	models.ErrEmptyCommentText,
	models.ErrInvalidCommentType,
	models.ErrPublishedDelete,
}

// lifecycleError maps aggregate precondition failures to INVALID_STATE.
func lifecycleError(err error) error {
	for _, known := range lifecycleErrors {
		if errors.Is(err, known) {
			return appErrors.Clone(appErrors.ErrInvalidState, err.Error())
		}
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "unexpected lifecycle failure")
}

// storeError maps repository failures; anything unknown is wrapped as INTERNAL_ERROR with context.
func storeError(err error, entity, action string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	case errors.Is(err, repository.ErrRevisionConflict):
		return appErrors.Clone(appErrors.ErrConflict, entity+" was modified concurrently, retry")
	case errors.Is(err, repository.ErrDuplicate):
		return appErrors.Clone(appErrors.ErrConflict, entity+" already exists")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to "+action)
	}
}
