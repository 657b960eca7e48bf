package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeDataIntegrity marks as-of mismatches and missing required columns.
	// These are correctness bugs in the input and are never retried.
	ErrTypeDataIntegrity ErrorType = "DATA_INTEGRITY"
	ErrTypeNumerical     ErrorType = "NUMERICAL"
	ErrTypeSampling      ErrorType = "SAMPLING"
	ErrTypeMissingData   ErrorType = "MISSING_DATA"
	ErrTypeSource        ErrorType = "SOURCE"
	ErrTypeStorage       ErrorType = "STORAGE"
	ErrTypeValidation    ErrorType = "VALIDATION"
	ErrTypeConfig        ErrorType = "CONFIG"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewDataIntegrityError creates a data-integrity error
func NewDataIntegrityError(message string, cause error) *AppError {
	return NewAppError(ErrTypeDataIntegrity, message, cause)
}

// NewNumericalError creates a numerical-degeneracy error
func NewNumericalError(message string, cause error) *AppError {
	return NewAppError(ErrTypeNumerical, message, cause)
}

// NewSamplingError creates a resampling error
func NewSamplingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeSampling, message, cause)
}

// NewMissingDataError creates an error for absent input data
func NewMissingDataError(message string, cause error) *AppError {
	return NewAppError(ErrTypeMissingData, message, cause)
}

// NewSourceError creates a data-source error
func NewSourceError(message string, cause error) *AppError {
	return NewAppError(ErrTypeSource, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// IsType reports whether any error in err's chain is an AppError of the given type.
// Types that implement ErrorKind() are matched as well.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) && appErr.Type == errType {
		return true
	}
	var kinded interface{ ErrorKind() ErrorType }
	if stderrors.As(err, &kinded) {
		return kinded.ErrorKind() == errType
	}
	return false
}

// IsDataIntegrity reports whether err is a data-integrity failure.
func IsDataIntegrity(err error) bool {
	return IsType(err, ErrTypeDataIntegrity)
}
