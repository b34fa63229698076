package transport

import "errors"

var (
	// ErrTransportClosed is returned when an operation is attempted on a
	// closed transport.
	ErrTransportClosed = errors.New("transport closed")

	// ErrNotListening is returned when a send is attempted before Listen.
	ErrNotListening = errors.New("transport not listening")

	// ErrAlreadyListening is returned by Listen on a bound transport.
	ErrAlreadyListening = errors.New("transport already listening")
)

// isTemporary checks if an error is temporary and the operation can be
// retried.
func isTemporary(err error) bool {
	if err == nil {
		return false
	}
	if netErr, ok := err.(interface{ Temporary() bool }); ok {
		return netErr.Temporary()
	}
	return false
}
