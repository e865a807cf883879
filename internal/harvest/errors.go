package harvest

import (
	"errors"
	"fmt"
)

// TransportErrorKind classifies a failed fetch attempt.
type TransportErrorKind string

// Transport failure classes. All of them are retryable.
const (
	KindNetwork    TransportErrorKind = "network"
	KindTimeout    TransportErrorKind = "timeout"
	KindHTTPStatus TransportErrorKind = "http_status"
)

// TransportError reports a recoverable fetch failure.
type TransportError struct {
	Kind       TransportErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	default:
		if e.Err != nil {
			return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
		}
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AutomationSetupError means the headless browser could not be started.
type AutomationSetupError struct {
	Err error
}

func (e *AutomationSetupError) Error() string {
	return fmt.Sprintf("automation engine unavailable: %v", e.Err)
}

func (e *AutomationSetupError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed write of an output file.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsAutomationSetup reports whether err is, or wraps, an AutomationSetupError.
func IsAutomationSetup(err error) bool {
	var setupErr *AutomationSetupError
	return errors.As(err, &setupErr)
}
