package executor

import (
	"errors"
	"fmt"
)

// ErrNoPreviousSession is wrapped in a ConfigError when a strict resume
// finds nothing to continue.
var ErrNoPreviousSession = errors.New("no previous session")

// ConfigError is a failure detected before any process is spawned. It is
// never retried.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Err: fmt.Errorf(format, args...)}
}

// LaunchError means the child could not be started. It is retryable.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string { return fmt.Sprintf("launch %s: %v", e.Path, e.Err) }
func (e *LaunchError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
