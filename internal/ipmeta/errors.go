package ipmeta

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidated is returned when a Store or Provider handle is used after
	// it has been closed or released.
	ErrInvalidated = errors.New("ipmeta: handle used after invalidation")

	// ErrAlreadyEnabled is wrapped by the ConfigError returned when enabling
	// a provider that is already enabled.
	ErrAlreadyEnabled = errors.New("provider already enabled")

	// ErrUnknownProvider is wrapped by the InputError returned for an id or
	// name that no registered provider has.
	ErrUnknownProvider = errors.New("unknown provider")
)

// InputError reports a malformed query or an unknown provider reference.
type InputError struct {
	Input string
	Err   error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input %q: %v", e.Input, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// ConfigError reports a provider that could not be enabled. The registry is
// unchanged when it is returned.
type ConfigError struct {
	Provider string
	Options  string
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Options == "" {
		return fmt.Sprintf("configure provider %s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("configure provider %s with %q: %v", e.Provider, e.Options, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// InternalError reports a fault inside a provider's index during an
// otherwise valid lookup. The store stays usable.
type InternalError struct {
	Provider string
	Err      error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("provider %s lookup failed: %v", e.Provider, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// IsInputError reports whether err is or wraps an *InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsInternalError reports whether err is or wraps an *InternalError.
func IsInternalError(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}
