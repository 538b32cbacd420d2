package cassette

import (
	"net/http"
	"time"

	"github.com/magneto-serge/magneto/internal/cookiejar"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

var testTime = time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC) //nolint:gochecknoglobals

func makeHTTPInteraction(method, url string, status int, body string) Interaction {
	var respBody []byte
	if body != "" {
		respBody = []byte(body)
	}
	return Interaction{
		Kind: KindHTTP,
		Request: &Request{
			Method:  method,
			URL:     url,
			Headers: http.Header{"Accept": {"application/json"}},
		},
		Response: &Response{
			Status:  status,
			Headers: http.Header{"Content-Type": {"text/plain"}, "X-Multi": {"a", "b"}},
			Body:    respBody,
		},
		RecordedAt:     testTime,
		ResponseTimeMS: ldvalue.NewOptionalInt(42),
	}
}

func makeTestCassette() *Cassette {
	c := New("sample", testTime)
	c.Interactions = append(c.Interactions,
		makeHTTPInteraction("GET", "http://example.com/a?x=1", 200, "first"),
		makeHTTPInteraction("POST", "http://example.com/b", 201, ""),
		Interaction{
			Kind: KindHTTPError,
			Request: &Request{
				Method:  "GET",
				URL:     "http://down.example.com/",
				Headers: http.Header{},
			},
			Error: &NetworkError{
				Type:      NetworkErrorTimeout,
				Message:   "timed out",
				TimeoutMS: ldvalue.NewOptionalInt(5000),
			},
			RecordedAt: testTime,
		},
		Interaction{
			Kind: KindWebSocket,
			WebSocket: &WebSocketSession{
				URL: "ws://example.com/socket",
				Messages: []WebSocketMessage{
					{Direction: Sent, TimestampMS: 0, Type: MessageText, Data: []byte("hello")},
					{Direction: Received, TimestampMS: 15, Type: MessageBinary, Data: []byte{0, 1, 255}},
					{Direction: Received, TimestampMS: 20, Type: MessagePing, Data: []byte{}},
				},
				CloseFrame: &CloseFrame{Code: 1000, Reason: "bye"},
			},
			RecordedAt: testTime,
		},
	)
	c.Cookies = []cookiejar.Cookie{
		{
			Name:      "session",
			Value:     "abc",
			Domain:    "example.com",
			Path:      "/",
			MaxAge:    ldvalue.NewOptionalInt(3600),
			Secure:    true,
			HTTPOnly:  true,
			SameSite:  cookiejar.SameSiteLax,
			CreatedAt: testTime,
		},
		{
			Name:      "pref",
			Value:     "dark",
			Domain:    "example.com",
			Path:      "/settings",
			Expires:   testTime.Add(time.Hour),
			CreatedAt: testTime,
		},
	}
	return c
}
