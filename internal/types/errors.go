package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrNoContent         = errors.New("no content after all fetch attempts")
	ErrEmptyExtraction   = errors.New("no extractable text")
	ErrInvalidURL        = errors.New("invalid URL")
	ErrInterrupted       = errors.New("process interrupted by user")
	ErrMissingCredential = errors.New("missing credential")
)

// FetchError describes a single failed fetch attempt.
type FetchError struct {
	URL        string
	Attempt    int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s attempt %d: status %d", e.URL, e.Attempt, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s attempt %d: %v", e.URL, e.Attempt, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// OracleError wraps failures of the generation backend, during setup or mid-stream.
type OracleError struct {
	Provider string
	Model    string
	Err      error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle %s/%s: %v", e.Provider, e.Model, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur while persisting artifacts.
type StorageError struct {
	Backend string
	Path    string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage error (%s) %s: %v", e.Backend, e.Path, e.Err)
	}
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ConfigError is raised before any work starts: bad flags, missing credentials,
// unreadable link files.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error (%s): %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
