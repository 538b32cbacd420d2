package proxy

import (
	"errors"
	"fmt"

	"github.com/magneto-serge/magneto/internal/cassette"
	"github.com/magneto-serge/magneto/internal/matcher"
)

var (
	// ErrAlreadyRecording is returned when a session is started while a recording or hybrid session
	// is still active. That session must be stopped first so that its cassette is written.
	ErrAlreadyRecording = errors.New("a recording session is active; stop it first")

	// ErrSessionActive is returned when a recording or hybrid session is started while any other
	// session is active.
	ErrSessionActive = errors.New("another session is active; stop it before recording")

	// ErrNotRecording is returned by StopRecording or StopHybrid when no such session is active.
	ErrNotRecording = errors.New("no recording session is active")

	// ErrNoSession is returned when stopping a proxy that has no active session.
	ErrNoSession = errors.New("no session is active")

	// ErrClosed is returned by any operation on a Proxy that has been shut down.
	ErrClosed = errors.New("proxy has been shut down")
)

// NoMatchingInteractionError means that a replayed request had no unused recorded interaction.
type NoMatchingInteractionError = matcher.NoMatchingInteractionError

// StrictMismatchError means that a recorded interaction was found in strict replay, but the request's
// headers or body differ from the recording. It carries both requests.
type StrictMismatchError = matcher.StrictMismatchError

// CreationError means that a Proxy could not be constructed.
type CreationError struct {
	Err error
}

func (e CreationError) Error() string {
	return fmt.Sprintf("unable to create proxy: %s", e.Err)
}

func (e CreationError) Unwrap() error {
	return e.Err
}

// InvalidArgumentError means that a parameter passed to a Proxy method was not acceptable.
type InvalidArgumentError struct {
	Message string
}

func (e InvalidArgumentError) Error() string {
	return e.Message
}

// IsCreationError returns true if the error is a CreationError.
func IsCreationError(err error) bool {
	var e CreationError
	return errors.As(err, &e)
}

// IsInvalidArgument returns true if the error is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var e InvalidArgumentError
	return errors.As(err, &e)
}

// IsCassetteNotFound returns true if the error means that the named cassette does not exist.
func IsCassetteNotFound(err error) bool {
	return cassette.IsNotFound(err)
}

// IsCassetteParseError returns true if the error means that the named cassette exists but is invalid.
func IsCassetteParseError(err error) bool {
	return cassette.IsParseError(err)
}

// IsCassetteIOError returns true if the error means that the cassette store itself failed.
func IsCassetteIOError(err error) bool {
	return cassette.IsIOError(err)
}

// IsNoMatchingInteraction returns true if the error is a NoMatchingInteractionError.
func IsNoMatchingInteraction(err error) bool {
	return matcher.IsNoMatchingInteraction(err)
}

// IsStrictMismatch returns true if the error is a StrictMismatchError.
func IsStrictMismatch(err error) bool {
	return matcher.IsStrictMismatch(err)
}
