package modem

import (
	"errors"
	"fmt"

	"i4.energy/across/lteclient/at"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has not been successfully initialized.
	//
	// This can occur if initialization failed or if the Modem was not created
	// via New.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrLoopRunning is returned when Loop is called while another Loop is
	// still running.
	ErrLoopRunning = errors.New("modem loop already running")

	// ErrCommandRejected is matched by every CommandError. The modem replied
	// ERROR, +CME ERROR or +CMS ERROR.
	ErrCommandRejected = errors.New("command rejected by modem")

	// ErrIncompleteResponse is returned when a receive ended without a
	// terminal OK/ERROR and partial frames are not reassembled.
	ErrIncompleteResponse = errors.New("incomplete response")

	// ErrRegistrationTimeout is returned when network registration was not
	// observed within the allowed time or number of polls.
	//
	// The bring-up attempt should be aborted. Callers may retry the whole
	// sequence from the top.
	ErrRegistrationTimeout = errors.New("registration timeout")
)

// ParseError reports a malformed response or notification.
type ParseError = at.ParseError

// TransportError reports a failed write to or read from the transport.
type TransportError struct {
	// Op is "write" or "read".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CommandError reports a command the modem rejected.
type CommandError struct {
	Cmd string
	// Final is the terminal line, e.g. "ERROR" or "+CME ERROR: 30".
	Final string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q rejected: %s", e.Cmd, e.Final)
}

func (e *CommandError) Is(target error) bool {
	return target == ErrCommandRejected
}
