package errors

import (
	"errors"
	"fmt"
)

// Error types for the seeding engine taxonomy
type ErrorType string

const (
	ErrorTypeConnection         ErrorType = "CONNECTION_ERROR"
	ErrorTypeDuplicateKey       ErrorType = "DUPLICATE_KEY_ERROR"
	ErrorTypeIndexAlreadyExists ErrorType = "INDEX_ALREADY_EXISTS"
	ErrorTypeIndex              ErrorType = "INDEX_ERROR"
	ErrorTypeValidation         ErrorType = "VALIDATION_ERROR"
	ErrorTypeStorage            ErrorType = "STORAGE_ERROR"
	ErrorTypeNotFound           ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeSourceNotFound     ErrorType = "SOURCE_NOT_FOUND"
	ErrorTypeBackupNotFound     ErrorType = "BACKUP_NOT_FOUND"
	ErrorTypePartialFailure     ErrorType = "PARTIAL_FAILURE"
	ErrorTypeFatalFailure       ErrorType = "FATAL_FAILURE"
	ErrorTypeInternal           ErrorType = "INTERNAL_ERROR"
)

// Sentinel errors produced by the store adapters after classification
var (
	ErrNotConnected       = errors.New("document store not connected")
	ErrDuplicateKey       = errors.New("duplicate key")
	ErrIndexAlreadyExists = errors.New("index already exists")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrAssetNotFound      = errors.New("asset not found")
	ErrInvalidInput       = errors.New("invalid input")
)

// AppError represents a classified engine error with context
type AppError struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Component string                 `json:"component,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithComponent adds the component name
func (e *AppError) WithComponent(component string) *AppError {
	e.Component = component
	return e
}

// WithDetail adds a detail field
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Common error constructors

func NewConnectionError(message string) *AppError {
	return NewAppError(ErrorTypeConnection, message)
}

func NewDuplicateKeyError(message string) *AppError {
	return NewAppError(ErrorTypeDuplicateKey, message)
}

func NewIndexAlreadyExistsError(message string) *AppError {
	return NewAppError(ErrorTypeIndexAlreadyExists, message)
}

func NewIndexError(message string) *AppError {
	return NewAppError(ErrorTypeIndex, message)
}

func NewValidationError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, message)
}

func NewStorageError(message string) *AppError {
	return NewAppError(ErrorTypeStorage, message)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource))
}

func NewSourceNotFoundError(collection string) *AppError {
	return NewAppError(ErrorTypeSourceNotFound, fmt.Sprintf("source collection %q not found", collection)).
		WithDetail("collection", collection)
}

func NewBackupNotFoundError(backup string) *AppError {
	return NewAppError(ErrorTypeBackupNotFound, fmt.Sprintf("backup collection %q not found", backup)).
		WithDetail("backup", backup)
}

func NewPartialFailureError(message string) *AppError {
	return NewAppError(ErrorTypePartialFailure, message)
}

func NewFatalFailureError(message string) *AppError {
	return NewAppError(ErrorTypeFatalFailure, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, message)
}

// ValidationError represents validation errors for multiple fields
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Error implements the error interface
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "validation failed"
	}
	if len(ve.Errors) == 1 {
		return fmt.Sprintf("validation failed: %s: %s", ve.Errors[0].Field, ve.Errors[0].Message)
	}
	return fmt.Sprintf("validation failed: %s: %s (and %d more)", ve.Errors[0].Field, ve.Errors[0].Message, len(ve.Errors)-1)
}

// NewValidationErrors creates a new validation errors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make([]ValidationError, 0),
	}
}

// Add adds a validation error
func (ve *ValidationErrors) Add(field, message string, value interface{}) *ValidationErrors {
	ve.Errors = append(ve.Errors, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
	return ve
}

// HasErrors returns true if there are validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToAppError converts validation errors to an AppError
func (ve *ValidationErrors) ToAppError() *AppError {
	if !ve.HasErrors() {
		return nil
	}

	appErr := NewValidationError(ve.Error())
	appErr.Details["validation_errors"] = ve.Errors
	return appErr
}

// Helper functions

// WrapError wraps an error with context, keeping an existing classification
func WrapError(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(message).WithCause(err)
}

// TypeOf returns the classified type of err, or ErrorTypeInternal when unclassified
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	switch {
	case errors.Is(err, ErrNotConnected):
		return ErrorTypeConnection
	case errors.Is(err, ErrDuplicateKey):
		return ErrorTypeDuplicateKey
	case errors.Is(err, ErrIndexAlreadyExists):
		return ErrorTypeIndexAlreadyExists
	case errors.Is(err, ErrAssetNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, ErrInvalidInput):
		return ErrorTypeValidation
	}
	return ErrorTypeInternal
}

func isType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsConnection checks if an error is a connection error
func IsConnection(err error) bool { return isType(err, ErrorTypeConnection) }

// IsDuplicateKey checks if an error is a duplicate key violation
func IsDuplicateKey(err error) bool { return isType(err, ErrorTypeDuplicateKey) }

// IsIndexAlreadyExists checks if an error reports an already existing index
func IsIndexAlreadyExists(err error) bool { return isType(err, ErrorTypeIndexAlreadyExists) }

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	var ve *ValidationErrors
	if errors.As(err, &ve) {
		return true
	}
	return isType(err, ErrorTypeValidation)
}

// IsStorage checks if an error is a blob storage error
func IsStorage(err error) bool { return isType(err, ErrorTypeStorage) }

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return isType(err, ErrorTypeNotFound) || errors.Is(err, ErrCollectionNotFound)
}

func IsSourceNotFound(err error) bool { return isType(err, ErrorTypeSourceNotFound) }

func IsBackupNotFound(err error) bool { return isType(err, ErrorTypeBackupNotFound) }

func IsFatalFailure(err error) bool { return isType(err, ErrorTypeFatalFailure) }
