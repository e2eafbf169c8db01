package auth

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup (remote or local) matches nothing.
var ErrNotFound = errors.New("identity not found")

// ValidationError reports a local invariant violated before any remote call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

// PersistenceError reports a failed remote create, update or delete.
type PersistenceError struct {
	Op  string // "create", "update" or "destroy"
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("remote %s failed", e.Op)
	}
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a required configuration value that is absent.
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	return "missing config " + e.Key
}
