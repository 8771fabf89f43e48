package utils

import (
	"context"
	"errors"

	"refdata-seeder/internal/shared/contextkeys"
)

// Common context errors
var (
	ErrRunIDNotFound       = errors.New("runID not found in context")
	ErrRunIDNotString      = errors.New("runID in context is not a string")
	ErrSourceNotFound      = errors.New("source not found in context")
	ErrSourceNotString     = errors.New("source in context is not a string")
	ErrCollectionNotFound  = errors.New("collection not found in context")
	ErrCollectionNotString = errors.New("collection in context is not a string")
)

func stringValue(ctx context.Context, key interface{}, missing, notString error) (string, error) {
	val := ctx.Value(key)
	if val == nil {
		return "", missing
	}
	s, ok := val.(string)
	if !ok {
		return "", notString
	}
	return s, nil
}

// GetRunIDFromContext retrieves the seeding run ID from the context.
// It returns an error if the run ID is not found or is not a string.
func GetRunIDFromContext(ctx context.Context) (string, error) {
	return stringValue(ctx, contextkeys.RunIDKey, ErrRunIDNotFound, ErrRunIDNotString)
}

// GetSourceFromContext retrieves the data source name from the context.
func GetSourceFromContext(ctx context.Context) (string, error) {
	return stringValue(ctx, contextkeys.SourceKey, ErrSourceNotFound, ErrSourceNotString)
}

// GetCollectionFromContext retrieves the target collection from the context.
func GetCollectionFromContext(ctx context.Context) (string, error) {
	return stringValue(ctx, contextkeys.CollectionKey, ErrCollectionNotFound, ErrCollectionNotString)
}

// Context builder functions

// WithRunID adds the run ID to context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, contextkeys.RunIDKey, runID)
}

// WithSource adds the data source name to context
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, contextkeys.SourceKey, source)
}

// WithCollection adds the target collection to context
func WithCollection(ctx context.Context, collection string) context.Context {
	return context.WithValue(ctx, contextkeys.CollectionKey, collection)
}

// WithComponent adds component name to context
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, contextkeys.ComponentKey, component)
}

// WithOperation adds operation name to context
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, contextkeys.OperationKey, operation)
}

// Helper functions

// GetRunIDOrDefault returns the run ID from context or a default value
func GetRunIDOrDefault(ctx context.Context, defaultValue string) string {
	if runID, err := GetRunIDFromContext(ctx); err == nil {
		return runID
	}
	return defaultValue
}

// GetSourceOrDefault returns the source from context or a default value
func GetSourceOrDefault(ctx context.Context, defaultValue string) string {
	if source, err := GetSourceFromContext(ctx); err == nil {
		return source
	}
	return defaultValue
}

// HasRunID checks if context has a run ID
func HasRunID(ctx context.Context) bool {
	_, err := GetRunIDFromContext(ctx)
	return err == nil
}
