package cassette

import (
	"errors"
	"fmt"
)

// All log messages, error singletons, and error constructors for this package should be collected here,
// except for debug logging.

const (
	logMsgSaved                        = "Saved cassette %q (%d interactions) to %s"
	logMsgRemovedStale                 = "Removed %s, which is superseded by %s"
	logMsgReloadedCassette             = "Reloaded cassette from %s"
	logMsgReloadFileNotFound           = "Cassette reload failed; file not found, will retry"
	logMsgReloadError                  = "Cassette reload failed; file is invalid or possibly incomplete, will retry (error: %s)"
	logMsgReloadUnchangedRetry         = "Cassette file has not changed since last failure, will wait and retry in case it is still being written"
	logMsgReloadUnchangedNoMoreRetries = "Cassette reload failed, and no further changes were detected; giving up until next change (error: %s)"
)

var (
	errEmptyName      = errors.New("cassette name must not be empty")
	errMissingFields  = errors.New("interaction is missing required fields for its type")
	errBadMessageData = errors.New("message data must be a string or an array of bytes")
)

// NotFoundError means that no cassette with the given name exists in the store.
type NotFoundError struct {
	Name string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("cassette %q not found", e.Name)
}

// ParseError means that a cassette exists but could not be decoded.
type ParseError struct {
	Name string
	Err  error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("cassette %q could not be parsed: %s", e.Name, e.Err)
}

func (e ParseError) Unwrap() error {
	return e.Err
}

// IOError means that the store itself failed while reading, writing, or listing cassettes.
type IOError struct {
	Op   string
	Name string
	Err  error
}

func (e IOError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("cassette store %s failed: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("cassette store %s of %q failed: %s", e.Op, e.Name, e.Err)
}

func (e IOError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error, or any error it wraps, is a NotFoundError.
func IsNotFound(err error) bool {
	var e NotFoundError
	return errors.As(err, &e)
}

// IsParseError returns true if the error, or any error it wraps, is a ParseError.
func IsParseError(err error) bool {
	var e ParseError
	return errors.As(err, &e)
}

// IsIOError returns true if the error, or any error it wraps, is an IOError.
func IsIOError(err error) bool {
	var e IOError
	return errors.As(err, &e)
}

func errInvalidName(name string) error {
	return fmt.Errorf("invalid cassette name %q: must not contain path separators or start with a dot", name)
}

func errUnsupportedVersion(version string) error {
	return fmt.Errorf("unsupported cassette version %q", version)
}

func errUnknownKind(kind string) error {
	return fmt.Errorf("unknown interaction type %q", kind)
}

func errBadTimestamp(value string, err error) error {
	return fmt.Errorf("invalid timestamp %q: %w", value, err)
}

func errBadByte(n int) error {
	return fmt.Errorf("byte value %d out of range 0-255", n)
}

func errBadHeaderValue(name string) error {
	return fmt.Errorf("header %q must be a string or an array of strings", name)
}

func errInteraction(index int, err error) error {
	return fmt.Errorf("interaction %d: %w", index, err)
}

func errCreateWatcherFailed(path string, err error) error { // COVERAGE: can't cause this condition in unit tests
	return fmt.Errorf("unable to watch cassette file %q: %w", path, err)
}

func errCannotCreateDir(dir string, err error) error {
	return fmt.Errorf("unable to use cassette directory %q: %w", dir, err)
}
