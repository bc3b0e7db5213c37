package errors

import (
	"fmt"
	"time"
)

// Error types for the lightning-actor-index system
type ErrorType string

const (
	// Document errors
	ErrorTypeDecode ErrorType = "decode"
	ErrorTypeScan   ErrorType = "scan"

	// Store errors
	ErrorTypeStore           ErrorType = "store"
	ErrorTypeStoreCorrupt    ErrorType = "store_corrupt"
	ErrorTypeVersionMismatch ErrorType = "version_mismatch"

	// File errors
	ErrorTypeFileNotFound ErrorType = "file_not_found"
	ErrorTypePermission   ErrorType = "permission"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"

	// Internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// DecodeError represents a failure to decode a document's bytes into a tree.
// The file is excluded from the run's contribution and retried next run.
type DecodeError struct {
	Type       ErrorType
	Path       string
	Offset     int
	Underlying error
	Timestamp  time.Time
}

// NewDecodeError creates a new decode error with context
func NewDecodeError(path string, offset int, err error) *DecodeError {
	return &DecodeError{
		Type:       ErrorTypeDecode,
		Path:       path,
		Offset:     offset,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("decode failed for %s at offset %d: %v", e.Path, e.Offset, e.Underlying)
	}
	return fmt.Sprintf("decode failed at offset %d: %v", e.Offset, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *DecodeError) Unwrap() error {
	return e.Underlying
}

// StoreError represents a cache store read/write error
type StoreError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewStoreError creates a new store error
func NewStoreError(op, path string, err error) *StoreError {
	return &StoreError{
		Type:       ErrorTypeStore,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithType overrides the error type (corrupt store, version mismatch)
func (e *StoreError) WithType(t ErrorType) *StoreError {
	e.Type = t
	return e
}

// Error implements the error interface
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Underlying
}

// IsCorrupt reports whether the store contents cannot be trusted.
// Corrupt stores fail closed to full regeneration, never to a fatal abort.
func (e *StoreError) IsCorrupt() bool {
	return e.Type == ErrorTypeStoreCorrupt || e.Type == ErrorTypeVersionMismatch
}

// FileError represents a file-related error during enumeration or reading
type FileError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewFileError creates a new file error
func NewFileError(op, path string, err error) *FileError {
	return &FileError{
		Type:       ErrorTypeFileNotFound,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *FileError) Error() string {
	return fmt.Sprintf("file %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

// Unwrap returns the underlying error
func (e *FileError) Unwrap() error {
	return e.Underlying
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors from one run
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error, dropping nil entries
func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}
