package session

import (
	"errors"
	"fmt"

	"github.com/banshee-data/radarlink/internal/transport"
)

var (
	// ErrTimedOut is returned by GetNext when no result arrives within the
	// caller's timeout. Expected and recoverable; poll again.
	ErrTimedOut = transport.ErrTimedOut

	// ErrStopped is returned by GetNext once the stream has been stopped
	// and all drained results have been consumed.
	ErrStopped = errors.New("session: stream stopped")
)

// StateError reports an operation invoked in a state that does not permit
// it. This is programmer misuse, not a protocol failure.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("session: %s not permitted in state %s", e.Op, e.State)
}

// ConnectError reports a failed identification handshake. Recoverable: the
// caller may retry with a fresh transport.
type ConnectError struct {
	Reason string
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session: connect: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("session: connect: %s", e.Reason)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ConfigError reports a configuration failure. When Rejected is false the
// failure was caught by local validation and no bytes were written to the
// transport; when true the server refused the configuration after it was
// sent.
type ConfigError struct {
	Field    string
	Reason   string
	Rejected bool
}

func (e *ConfigError) Error() string {
	if e.Rejected {
		return fmt.Sprintf("session: configuration rejected by server: %s", e.Reason)
	}
	if e.Field != "" {
		return fmt.Sprintf("session: invalid configuration field %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("session: invalid configuration: %s", e.Reason)
}
