package services

import (
	"context"
	"errors"
	"net/http"

	"screenshare/internal/core/domain"
	apperrors "screenshare/pkg/errors"
)

// mapRepoError turns repository failures into AppErrors. Domain sentinels stay reachable via errors.Is.
func mapRepoError(err error, operation string) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}

	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrPermissionNotFound):
		return apperrors.WrapError(err, apperrors.ErrCodeNotFound, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrPermissionExists):
		return apperrors.WrapError(err, apperrors.ErrCodeConflict, err.Error(), http.StatusConflict)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return apperrors.NewStoreError(err, operation)
	}
}

func invalidInput(err error) error {
	return apperrors.NewInvalidInputError(err.Error())
}
