// Package errors provides structured error handling for scanfold operations.
// It defines error codes and error types for parsing, storage, configuration
// and file access, plus helpers for classifying errors by code.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeCanceled      ErrorCode = "CANCELED"
	CodeNotFound      ErrorCode = "NOT_FOUND"

	// Ingestion errors.
	CodeMalformedInput    ErrorCode = "MALFORMED_INPUT"
	CodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"

	// Store errors.
	CodeStoreConnection    ErrorCode = "STORE_CONNECTION"
	CodeStoreRead          ErrorCode = "STORE_READ"
	CodeStoreWrite         ErrorCode = "STORE_WRITE"
	CodeStoreQuotaExceeded ErrorCode = "STORE_QUOTA_EXCEEDED"

	// File system errors.
	CodeFileNotFound   ErrorCode = "FILE_NOT_FOUND"
	CodeFilePermission ErrorCode = "FILE_PERMISSION"
	CodeFileTooLarge   ErrorCode = "FILE_TOO_LARGE"
)

// ParseError is returned when a scan report cannot be turned into a result.
// A structured document that is not well-formed carries CodeMalformedInput.
type ParseError struct {
	Code    ErrorCode
	Message string
	Format  string
	Source  string
	Line    int
	Cause   error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Source != "" {
		msg += fmt.Sprintf(" (source: %s)", e.Source)
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(" (line: %d)", e.Line)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// WithSource records which input the error belongs to.
func (e *ParseError) WithSource(source string) *ParseError {
	e.Source = source
	return e
}

// NewParseError creates a parse error with the specified code and message.
func NewParseError(code ErrorCode, format, message string) *ParseError {
	return &ParseError{
		Code:    code,
		Message: message,
		Format:  format,
	}
}

// WrapParseError wraps an existing error as a parse error.
func WrapParseError(code ErrorCode, format, message string, err error) *ParseError {
	return &ParseError{
		Code:    code,
		Message: message,
		Format:  format,
		Cause:   err,
	}
}

// StoreError represents persistence failures.
type StoreError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Key       string
	Cause     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Key != "" {
		msg += fmt.Sprintf(" (key: %s)", e.Key)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// WithKey adds the record key the operation targeted.
func (e *StoreError) WithKey(key string) *StoreError {
	e.Key = key
	return e
}

// NewStoreError creates a new store error.
func NewStoreError(code ErrorCode, message string) *StoreError {
	return &StoreError{
		Code:    code,
		Message: message,
	}
}

// WrapStoreError wraps an existing error as a store error.
func WrapStoreError(code ErrorCode, operation, message string, err error) *StoreError {
	return &StoreError{
		Code:      code,
		Message:   message,
		Operation: operation,
		Cause:     err,
	}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
	}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// FileError represents failures reading scan reports or writing exports.
type FileError struct {
	Code    ErrorCode
	Message string
	Path    string
	Cause   error
}

// Error implements the error interface.
func (e *FileError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s (path: %s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *FileError) Unwrap() error {
	return e.Cause
}

// WrapFileError wraps an existing error as a file error.
func WrapFileError(code ErrorCode, message, path string, err error) *FileError {
	return &FileError{
		Code:    code,
		Message: message,
		Path:    path,
		Cause:   err,
	}
}

// coded is implemented by every error type in this package.
type coded interface {
	error
	code() ErrorCode
}

func (e *ParseError) code() ErrorCode  { return e.Code }
func (e *StoreError) code() ErrorCode  { return e.Code }
func (e *ConfigError) code() ErrorCode { return e.Code }
func (e *FileError) code() ErrorCode   { return e.Code }

// Utility functions for common error operations

// IsCode checks if an error, or any error it wraps, has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from the outermost coded error in the chain.
func GetCode(err error) ErrorCode {
	var c coded
	if stderrors.As(err, &c) {
		return c.code()
	}
	return CodeUnknown
}

// IsStoreFailure reports whether err came from the persistence layer.
func IsStoreFailure(err error) bool {
	var se *StoreError
	return stderrors.As(err, &se)
}

// Common error creation functions

// ErrMalformedInput creates an error for a structured document that does not parse.
func ErrMalformedInput(format string, err error) *ParseError {
	return WrapParseError(CodeMalformedInput, format, "Input is not a well-formed document", err)
}

// ErrUnsupportedFormat creates an error for input whose format cannot be determined.
func ErrUnsupportedFormat(name string) *ParseError {
	return NewParseError(CodeUnsupportedFormat, "", "Unable to determine scan report format").WithSource(name)
}

// ErrRecordNotFound creates an error for a missing store record.
func ErrRecordNotFound(key string) *StoreError {
	return NewStoreError(CodeNotFound, "Record not found").WithKey(key)
}

// ErrQuotaExceeded creates an error for a write that would exceed the store limit.
func ErrQuotaExceeded(key string, size, limit int64) *StoreError {
	return NewStoreError(CodeStoreQuotaExceeded,
		fmt.Sprintf("Storage limit reached: %d bytes exceeds %d", size, limit)).WithKey(key)
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}

// ErrConfigMissing creates an error for missing required configuration.
func ErrConfigMissing(field string) *ConfigError {
	return NewConfigFieldError(CodeConfiguration, "Required configuration field missing", field, nil)
}
