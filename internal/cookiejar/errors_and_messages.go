package cookiejar

import (
	"errors"
	"fmt"
)

// All log messages, error singletons, and error constructors for this package should be collected here,
// except for debug logging.

const (
	logMsgBadSetCookie = "Ignoring malformed Set-Cookie header from %s: %s"
)

var (
	errEmptySetCookie = errors.New("empty Set-Cookie header")
	errMissingEquals  = errors.New("missing '=' in name=value")
	errEmptyName      = errors.New("cookie name is empty")
)

func errBadSameSite(value string) error {
	return fmt.Errorf("%q is not a valid SameSite value", value)
}
