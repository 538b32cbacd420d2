package sharedtest

import (
	"net/http"
	"time"

	"github.com/magneto-serge/magneto/internal/cassette"
)

// FixedTime is the recording time used by all cassette fixtures.
var FixedTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC) //nolint:gochecknoglobals

// HTTPInteraction returns a recorded Http interaction with a text/plain response.
func HTTPInteraction(method, url string, status int, body string) cassette.Interaction {
	return cassette.Interaction{
		Kind:    cassette.KindHTTP,
		Request: &cassette.Request{Method: method, URL: url, Headers: http.Header{}},
		Response: &cassette.Response{
			Status:  status,
			Headers: http.Header{"Content-Type": {"text/plain"}},
			Body:    []byte(body),
		},
		RecordedAt: FixedTime,
	}
}

// HTTPErrorInteraction returns a recorded request that failed with a network error.
func HTTPErrorInteraction(method, url string, errorType cassette.NetworkErrorType, message string) cassette.Interaction {
	return cassette.Interaction{
		Kind:       cassette.KindHTTPError,
		Request:    &cassette.Request{Method: method, URL: url, Headers: http.Header{}},
		Error:      &cassette.NetworkError{Type: errorType, Message: message},
		RecordedAt: FixedTime,
	}
}

// MakeCassette returns a cassette containing the given interactions.
func MakeCassette(name string, interactions ...cassette.Interaction) *cassette.Cassette {
	c := cassette.New(name, FixedTime)
	c.Interactions = interactions
	return c
}
