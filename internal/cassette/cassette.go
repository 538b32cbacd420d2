package cassette

import (
	"net/http"
	"time"

	"github.com/magneto-serge/magneto/internal/cookiejar"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// FormatVersion is the version written to every new cassette. Any 1.x version can be read.
const FormatVersion = "1.0"

// FilteredValue replaces the value of a header that was redacted while recording.
const FilteredValue = "[FILTERED]"

// Kind is the discriminator of an Interaction.
type Kind string

const (
	// KindHTTP is a request with the response the server returned.
	KindHTTP Kind = "Http"
	// KindHTTPError is a request that never got a response because of a network failure.
	KindHTTPError Kind = "HttpError"
	// KindWebSocket is a WebSocket connection with the frames exchanged over it.
	KindWebSocket Kind = "WebSocket"
)

// Cassette is a recorded session.
type Cassette struct {
	Version      string
	Name         string
	RecordedAt   time.Time
	Interactions []Interaction
	Cookies      []cookiejar.Cookie
}

// New creates an empty cassette stamped with the given time.
func New(name string, now time.Time) *Cassette {
	return &Cassette{
		Version:    FormatVersion,
		Name:       name,
		RecordedAt: now.UTC(),
	}
}

// Interaction is one recorded exchange. Which fields are set depends on Kind: Request and Response for
// KindHTTP, Request and Error for KindHTTPError, WebSocket for KindWebSocket.
type Interaction struct {
	Kind           Kind
	Request        *Request
	Response       *Response
	Error          *NetworkError
	WebSocket      *WebSocketSession
	RecordedAt     time.Time
	ResponseTimeMS ldvalue.OptionalInt
}

// Method returns the request method, or "GET" for a WebSocket interaction.
func (i Interaction) Method() string {
	if i.Request != nil {
		return i.Request.Method
	}
	return http.MethodGet
}

// URL returns the request URL of any kind of interaction.
func (i Interaction) URL() string {
	switch {
	case i.Request != nil:
		return i.Request.URL
	case i.WebSocket != nil:
		return i.WebSocket.URL
	default:
		return ""
	}
}

// Request is a recorded HTTP request. The method is uppercase and the URL is absolute, with the scheme
// and host lowercased and the path and query exactly as received.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Response is a recorded HTTP response.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// NetworkErrorType classifies a failure to reach the upstream server.
type NetworkErrorType string

// These are the serialized names used by every implementation.
const (
	NetworkErrorDNS               NetworkErrorType = "DnsResolutionFailed"
	NetworkErrorConnectionRefused NetworkErrorType = "ConnectionRefused"
	NetworkErrorTimeout           NetworkErrorType = "Timeout"
	NetworkErrorTLS               NetworkErrorType = "TlsError"
	NetworkErrorConnectionReset   NetworkErrorType = "ConnectionReset"
	NetworkErrorTooManyRedirects  NetworkErrorType = "TooManyRedirects"
	NetworkErrorOther             NetworkErrorType = "Other"
)

// NetworkError describes why a recorded request got no response.
type NetworkError struct {
	Type          NetworkErrorType
	Message       string
	TimeoutMS     ldvalue.OptionalInt
	RedirectCount ldvalue.OptionalInt
}

// Direction says which side sent a WebSocket message.
type Direction string

const (
	// Sent is a message from the client to the server.
	Sent Direction = "Sent"
	// Received is a message from the server to the client.
	Received Direction = "Received"
)

// MessageType is the WebSocket frame type of a message.
type MessageType string

// WebSocket frame types.
const (
	MessageText   MessageType = "Text"
	MessageBinary MessageType = "Binary"
	MessagePing   MessageType = "Ping"
	MessagePong   MessageType = "Pong"
)

// WebSocketSession is the recorded content of one WebSocket connection.
type WebSocketSession struct {
	URL        string
	Messages   []WebSocketMessage
	CloseFrame *CloseFrame
}

// WebSocketMessage is one frame. TimestampMS is relative to the start of the connection.
type WebSocketMessage struct {
	Direction   Direction
	TimestampMS int64
	Type        MessageType
	Data        []byte
}

// CloseFrame is the close frame that ended a WebSocket connection.
type CloseFrame struct {
	Code   int
	Reason string
}
