package relay

import "fmt"

// Error is returned when the agent call fails, either because the
// remote service answered with a non-success status or because the
// transport gave up before any response arrived.
type Error struct {
	// StatusCode is the HTTP status, zero when no response was received.
	StatusCode int

	// Detail is the remote error message when the service provided one,
	// otherwise the transport error text.
	Detail string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("agent call failed: HTTP %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("agent call failed: %s", e.Detail)
}
