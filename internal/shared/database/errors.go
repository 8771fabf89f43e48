package database

import (
	"context"
	"errors"

	apperrors "refdata-seeder/internal/shared/errors"

	"go.mongodb.org/mongo-driver/mongo"
)

// Operation tells ClassifyError which call produced the error
type Operation string

const (
	OpRead  Operation = "read"
	OpWrite Operation = "write"
	OpIndex Operation = "index"
	OpAdmin Operation = "admin"
)

// MongoDB server error codes the engine reacts to
const (
	codeNamespaceNotFound     = 26
	codeNamespaceExists       = 48
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
	codeIndexAlreadyExists    = 68
	codeDuplicateKey          = 11000
	codeDuplicateKeyLegacy    = 11001
)

// ClassifyError translates driver error shapes into the engine taxonomy.
// Errors that are already classified are returned unchanged.
func ClassifyError(op Operation, err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	if errors.Is(err, mongo.ErrClientDisconnected) {
		return apperrors.NewConnectionError("client disconnected").WithCause(apperrors.ErrNotConnected)
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.NewConnectionError("document store unreachable").WithCause(err)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperrors.NewNotFoundError("document").WithCause(err)
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		switch {
		case serverErr.HasErrorCode(codeIndexAlreadyExists):
			return apperrors.NewIndexAlreadyExistsError("index already exists").WithCause(apperrors.ErrIndexAlreadyExists)
		case serverErr.HasErrorCode(codeIndexOptionsConflict), serverErr.HasErrorCode(codeIndexKeySpecsConflict):
			// an index with this name or key exists with different options
			return apperrors.NewIndexError("conflicting index already exists").WithCause(err)
		case serverErr.HasErrorCode(codeDuplicateKey), serverErr.HasErrorCode(codeDuplicateKeyLegacy):
			if op == OpIndex {
				// duplicates survived dedup, so the unique index cannot be built
				return apperrors.NewIndexError("unique index violated by existing documents").WithCause(err)
			}
			return apperrors.NewDuplicateKeyError(err.Error()).WithCause(apperrors.ErrDuplicateKey)
		case serverErr.HasErrorCode(codeNamespaceNotFound):
			return apperrors.NewNotFoundError("collection").WithCause(apperrors.ErrCollectionNotFound)
		case serverErr.HasErrorCode(codeNamespaceExists):
			return apperrors.NewAppError(apperrors.ErrorTypeInternal, "collection already exists").WithCode("NamespaceExists").WithCause(err)
		}
	}

	if op == OpIndex {
		return apperrors.NewIndexError("index operation failed").WithCause(err)
	}
	return apperrors.NewInternalError(string(op) + " operation failed").WithCause(err)
}
