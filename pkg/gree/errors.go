package gree

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package matches exactly one of
// these through errors.Is.
var (
	ErrIO         = errors.New("i/o error")
	ErrTimeout    = errors.New("timeout")
	ErrDecode     = errors.New("decode error")
	ErrProtocol   = errors.New("protocol error")
	ErrValidation = errors.New("validation error")
	ErrNotBound   = errors.New("session not bound")

	// ErrBindTimeout is returned when a device does not answer a bind request
	// in time. It also matches ErrTimeout.
	ErrBindTimeout = fmt.Errorf("bind %w", ErrTimeout)

	// ErrUnknownProperty is returned for names or codes missing from the
	// catalog. It also matches ErrValidation.
	ErrUnknownProperty = fmt.Errorf("%w: unknown property", ErrValidation)

	// ErrUnknownDevice is returned by Manager when a target cannot be resolved
	// to a discovered device.
	ErrUnknownDevice = errors.New("unknown device")
)

// OpError describes a failed operation against a device.
type OpError struct {
	Op   string // "discover", "bind", "read", "write", ...
	MAC  string // device identifier, empty for discovery
	Kind error  // one of the Err* kinds above
	Err  error  // underlying cause, may be nil
}

func (e *OpError) Error() string {
	prefix := e.Op
	if e.MAC != "" {
		prefix = fmt.Sprintf("%s %s", e.Op, e.MAC)
	}
	if e.Err != nil {
		if errors.Is(e.Err, e.Kind) {
			return fmt.Sprintf("%s: %v", prefix, e.Err)
		}
		return fmt.Sprintf("%s: %v: %v", prefix, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", prefix, e.Kind)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(op, mac string, kind, err error) *OpError {
	return &OpError{Op: op, MAC: mac, Kind: kind, Err: err}
}

// Retryable reports whether repeating the operation may succeed. Timeouts and
// transport failures are retryable; decode, protocol and validation failures
// are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotBound) {
		return false
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrIO)
}
