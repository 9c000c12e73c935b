package models

import "errors"

var (
	// ErrStorageNotFound means no configuration exists for a storage id
	ErrStorageNotFound = errors.New("storage not found")
	// ErrCredentialMissing means a configuration exists but its secret does not
	ErrCredentialMissing = errors.New("credential missing")
	// ErrNotFound means a path or item does not exist on the backend
	ErrNotFound = errors.New("not found")
	// ErrNotDirectory means a listing was requested on a file
	ErrNotDirectory = errors.New("not a directory")
	// ErrInvalidPath means a path escapes its root or is malformed
	ErrInvalidPath = errors.New("invalid path")
	// ErrUnsupported means the backend cannot perform the operation at this location
	ErrUnsupported = errors.New("operation not supported")
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
