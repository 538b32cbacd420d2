package wsproxy

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/magneto-serge/magneto/internal/cassette"

	"github.com/gorilla/websocket"
)

// sessionRecorder collects frames from both directions of one connection. Timestamps are relative to
// the time the recorder was created.
type sessionRecorder struct {
	enabled bool
	start   time.Time
	session cassette.WebSocketSession
	lock    sync.Mutex
}

func newSessionRecorder(url string, enabled bool) *sessionRecorder {
	return &sessionRecorder{
		enabled: enabled,
		start:   time.Now(),
		session: cassette.WebSocketSession{URL: url},
	}
}

func (s *sessionRecorder) add(direction cassette.Direction, messageType int, data []byte) {
	if !s.enabled {
		return
	}
	t, ok := messageTypeName(messageType)
	if !ok {
		return
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	s.lock.Lock()
	defer s.lock.Unlock()
	s.session.Messages = append(s.session.Messages, cassette.WebSocketMessage{
		Direction:   direction,
		TimestampMS: time.Since(s.start).Milliseconds(),
		Type:        t,
		Data:        copied,
	})
}

func (s *sessionRecorder) closed(code int, reason string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.session.CloseFrame == nil {
		s.session.CloseFrame = &cassette.CloseFrame{Code: code, Reason: reason}
	}
}

func (s *sessionRecorder) result() *cassette.WebSocketSession {
	s.lock.Lock()
	defer s.lock.Unlock()
	ret := s.session
	ret.Messages = append([]cassette.WebSocketMessage(nil), s.session.Messages...)
	return &ret
}

func messageTypeName(messageType int) (cassette.MessageType, bool) {
	switch messageType {
	case websocket.TextMessage:
		return cassette.MessageText, true
	case websocket.BinaryMessage:
		return cassette.MessageBinary, true
	case websocket.PingMessage:
		return cassette.MessagePing, true
	case websocket.PongMessage:
		return cassette.MessagePong, true
	default:
		return "", false
	}
}

func messageTypeCode(t cassette.MessageType) (int, error) {
	switch t {
	case cassette.MessageText:
		return websocket.TextMessage, nil
	case cassette.MessageBinary:
		return websocket.BinaryMessage, nil
	case cassette.MessagePing:
		return websocket.PingMessage, nil
	case cassette.MessagePong:
		return websocket.PongMessage, nil
	default:
		return 0, errUnknownMessageType(string(t))
	}
}

// ToWebSocketURL converts an http or https URL to the equivalent ws or wss URL. Other URLs are
// returned unchanged.
func ToWebSocketURL(u *url.URL) string {
	ret := *u
	switch strings.ToLower(u.Scheme) {
	case "http":
		ret.Scheme = "ws"
	case "https":
		ret.Scheme = "wss"
	}
	return ret.String()
}
