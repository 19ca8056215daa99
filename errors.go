package selhist

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyBuilt is returned when Build is called on a histogram that
	// has already been built.
	ErrAlreadyBuilt = errors.New("histogram already built")

	// ErrNotBuilt is returned when a read operation is attempted before a
	// successful Build.
	ErrNotBuilt = errors.New("histogram not built")

	// ErrBuildFailed is returned when a read operation is attempted after a
	// failed Build. A failed build never exposes partial state.
	ErrBuildFailed = errors.New("histogram build failed")

	// ErrInvalidBucketCount is returned when Build is called with a
	// non-positive bucket count.
	ErrInvalidBucketCount = errors.New("number of buckets must be positive")
)

// ConfigError indicates an invalid configuration value, detected before any
// I/O begins.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ConfigError struct {
	Option string
	Value  any
	Reason string
	cause  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s=%v (%s)", e.Option, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.cause }
