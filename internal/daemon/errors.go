package daemon

import "errors"

var (
	// ErrDaemonAlreadyRunning is returned when trying to start a daemon
	// while another instance is already running on the same socket.
	ErrDaemonAlreadyRunning = errors.New("daemon already running")

	// ErrDaemonNotRunning is returned when trying to connect to a daemon
	// that is not running (socket file does not exist).
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrUnauthorized is returned when a request lacks valid authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrCommandTimeout is returned when the reactor does not resolve a
	// command's reply sink within the API's request timeout, which only
	// happens if the host loop has wedged.
	ErrCommandTimeout = errors.New("command timed out waiting for daemon")
)
