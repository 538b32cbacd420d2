package matcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/magneto-serge/magneto/internal/cassette"
)

// NoMatchingInteractionError means that the cassette has no unused interaction for the request.
type NoMatchingInteractionError struct {
	Method string
	URL    string
	// Recorded is the number of interactions recorded for this method and URL, all of which have
	// already been used.
	Recorded int
}

func (e NoMatchingInteractionError) Error() string {
	if e.Recorded == 0 {
		return fmt.Sprintf("no recorded interaction for %s %s", e.Method, e.URL)
	}
	return fmt.Sprintf("all %d recorded interactions for %s %s have been used", e.Recorded, e.Method, e.URL)
}

// StrictMismatchError means that a recorded interaction was found for the method and URL, but its
// headers or body differ from the live request.
type StrictMismatchError struct {
	Expected    cassette.Request
	Actual      cassette.Request
	Differences []string
}

func (e StrictMismatchError) Error() string {
	return fmt.Sprintf("request %s %s does not match the recording: %s",
		e.Actual.Method, e.Actual.URL, strings.Join(e.Differences, "; "))
}

// IsNoMatchingInteraction returns true if the error is a NoMatchingInteractionError.
func IsNoMatchingInteraction(err error) bool {
	var e NoMatchingInteractionError
	return errors.As(err, &e)
}

// IsStrictMismatch returns true if the error is a StrictMismatchError.
func IsStrictMismatch(err error) bool {
	var e StrictMismatchError
	return errors.As(err, &e)
}

func diffHeaderMissing(name string) string {
	return fmt.Sprintf("header %q was recorded but not sent", name)
}

func diffHeaderUnexpected(name string) string {
	return fmt.Sprintf("header %q was sent but not recorded", name)
}

func diffHeaderValue(name string, expected, actual []string) string {
	return fmt.Sprintf("header %q: expected %q, got %q", name, expected, actual)
}

func diffBody(expected, actual int) string {
	return fmt.Sprintf("body differs: expected %d bytes, got %d bytes", expected, actual)
}
