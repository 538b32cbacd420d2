package wsproxy

import "fmt"

const (
	logMsgUpstreamClosed   = "Upstream closed WebSocket %s (code %d)"
	logMsgClientClosed     = "Client closed WebSocket %s (code %d)"
	logMsgReplayMismatch   = "Client sent a different message than was recorded for %s (message %d)"
	logMsgReplayClientGone = "Client closed WebSocket %s during replay after %d of %d messages"
)

// DialError means that the upstream WebSocket server could not be reached. When Forward returns this
// error, nothing has been written to the client yet.
type DialError struct {
	URL string
	Err error
}

func (e DialError) Error() string {
	return fmt.Sprintf("unable to connect to upstream WebSocket %s: %s", e.URL, e.Err)
}

func (e DialError) Unwrap() error {
	return e.Err
}

func errDialFailed(url string, err error) error {
	return DialError{URL: url, Err: err}
}

func errUpgradeFailed(err error) error {
	return fmt.Errorf("WebSocket upgrade failed: %w", err)
}

func errUnknownMessageType(t string) error {
	return fmt.Errorf("unknown WebSocket message type %q", t)
}
