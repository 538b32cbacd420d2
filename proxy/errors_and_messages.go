package proxy

import (
	"errors"
	"fmt"

	"github.com/magneto-serge/magneto/internal/cassette"
)

// All log messages, error singletons, and error constructors for this package should be collected here,
// except for debug logging.

const (
	logMsgSessionStarted     = "Started %s session for cassette %q"
	logMsgPassThroughStarted = "Started PassThrough session"
	logMsgSessionEnded       = "Ended %s session"
	logMsgCassetteCreated    = "Cassette %q does not exist; starting with an empty cassette"
	logMsgAutoReplay         = "Cassette %q exists; auto mode will replay it"
	logMsgAutoRecord         = "Cassette %q does not exist; auto mode will record it"
	logMsgDrainTimeout       = "Timed out after %s waiting for %d requests to finish; saving what has been recorded"
	logMsgAbortIncomplete    = "%d requests were still running after their connections were closed"
	logMsgNoMatch            = "No recorded interaction: %s"
	logMsgStrictMismatch     = "Strict replay mismatch: %s"
	logMsgUpstreamFailed     = "Request to %s failed: %s"
	logMsgWebSocketFailed    = "WebSocket connection to %s failed: %s"
	logMsgConnectFailed      = "CONNECT tunnel to %s failed: %s"
	logMsgWatchNeedsFiles    = "Cassette watching is only supported for a cassette directory; %s will not be watched"
	logMsgWatchFailed        = "Unable to watch cassette %q: %s"
	logMsgCassetteReloaded   = "Cassette %q changed; replay starts over from the first interaction"
	logMsgShutdownForced     = "Connections were still open after %s; closing them"
	logMsgFlushFailed        = "Unable to save cassette %q during shutdown: %s"
	logMsgStoreCloseFailed   = "Error closing cassette store: %s"
	logMsgSaveFailed         = "Unable to save cassette %q: %s"
	logMsgAdminRequestFailed = "Admin request %s %s failed: %s"
	logMsgStoreLocation      = "Cassettes are kept in %s"
)

var (
	errNoActiveSession      = errors.New("no session is active")
	errNotProxyRequest      = errors.New("request must use an absolute URL, or a target URL must be configured")
	errConnectNotAllowed    = errors.New("CONNECT is only supported in PassThrough mode")
	errHijackNotSupported   = errors.New("connection does not support hijacking")
	errRequestBodyTooLarge  = errors.New("request body exceeds the maximum recorded body size")
	errResponseBodyTooLarge = errors.New("upstream response body exceeds the maximum recorded body size")
)

func errBadPort(port int) error {
	return InvalidArgumentError{Message: fmt.Sprintf("port %d is out of range 1-65535", port)}
}

func errPortWhileListening() error {
	return InvalidArgumentError{Message: "port cannot be changed while the proxy is listening"}
}

func errBadCassetteName(err error) error {
	return InvalidArgumentError{Message: err.Error()}
}

func errModeNotStartable(modeName string) error {
	return InvalidArgumentError{Message: fmt.Sprintf("mode %q cannot start a session directly", modeName)}
}

func errReplayedNetworkError(e *cassette.NetworkError) error {
	return fmt.Errorf("recorded network error (%s): %s", e.Type, e.Message)
}

func errUpstreamFailed(url string, err error) error {
	return fmt.Errorf("request to %s failed: %w", url, err)
}

func errCannotCreateStore(err error) error {
	return fmt.Errorf("unable to open cassette store: %w", err)
}

func errCannotCreateUpstreamClient(err error) error {
	return fmt.Errorf("unable to configure upstream client: %w", err)
}

func errNewMetricsManagerFailed(err error) error {
	return fmt.Errorf("unable to create metrics manager: %w", err)
}

func errUnknownPreset(name string) error {
	return fmt.Errorf("unknown recording preset %q", name)
}

func errBadRecordFilter(err error) error {
	return fmt.Errorf("invalid recording filter: %w", err)
}
