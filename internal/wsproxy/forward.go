package wsproxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/magneto-serge/magneto/internal/cassette"

	"github.com/gorilla/websocket"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

const controlWriteTimeout = time.Second * 5

// Headers that the dialer or upgrader generate themselves.
var handshakeHeaders = []string{ //nolint:gochecknoglobals
	"Upgrade", "Connection", "Sec-Websocket-Key", "Sec-Websocket-Version", "Sec-Websocket-Extensions",
	"Sec-Websocket-Protocol", "Host", "Proxy-Connection", "Proxy-Authorization", "Keep-Alive", "Te",
	"Trailer", "Transfer-Encoding",
}

var upgrader = websocket.Upgrader{ //nolint:gochecknoglobals
	CheckOrigin: func(*http.Request) bool { return true },
}

// IsUpgradeRequest returns true if the request asks for a WebSocket connection.
func IsUpgradeRequest(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// Forward connects to the upstream WebSocket server, upgrades the client connection, and relays
// frames in both directions until either side closes. If record is true, the frames are returned as
// a session.
//
// If the upstream server cannot be reached, an error is returned before anything has been written to
// w, so the caller can still send an HTTP error response. Both connections are closed as soon as ctx is
// done; the upgraded connection no longer belongs to the HTTP server, so nothing else will close it.
func Forward(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	targetURL string,
	dialer *websocket.Dialer,
	record bool,
	loggers ldlog.Loggers,
) (*cassette.WebSocketSession, error) {
	header := r.Header.Clone()
	for _, h := range handshakeHeaders {
		header.Del(h)
	}
	d := *dialer
	d.Subprotocols = websocket.Subprotocols(r)

	upstream, resp, err := d.DialContext(ctx, targetURL, header)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, errDialFailed(targetURL, err)
	}
	defer upstream.Close() //nolint:errcheck

	responseHeader := http.Header{}
	if p := upstream.Subprotocol(); p != "" {
		responseHeader.Set("Sec-Websocket-Protocol", p)
	}
	for _, c := range resp.Header.Values("Set-Cookie") {
		responseHeader.Add("Set-Cookie", c)
	}
	client, err := upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		return nil, errUpgradeFailed(err)
	}
	defer client.Close() //nolint:errcheck
	stop := context.AfterFunc(ctx, func() {
		_ = client.Close()
		_ = upstream.Close()
	})
	defer stop()

	rec := newSessionRecorder(targetURL, record)
	relayControlFrames(client, upstream, cassette.Sent, rec)
	relayControlFrames(upstream, client, cassette.Received, rec)

	done := make(chan struct{}, 2)
	go func() {
		pump(client, upstream, cassette.Sent, rec, loggers, logMsgClientClosed, targetURL)
		done <- struct{}{}
	}()
	go func() {
		pump(upstream, client, cassette.Received, rec, loggers, logMsgUpstreamClosed, targetURL)
		done <- struct{}{}
	}()
	<-done
	_ = client.Close()
	_ = upstream.Close()
	<-done

	return rec.result(), nil
}

func relayControlFrames(from, to *websocket.Conn, direction cassette.Direction, rec *sessionRecorder) {
	from.SetPingHandler(func(data string) error {
		rec.add(direction, websocket.PingMessage, []byte(data))
		return to.WriteControl(websocket.PingMessage, []byte(data), time.Now().Add(controlWriteTimeout))
	})
	from.SetPongHandler(func(data string) error {
		rec.add(direction, websocket.PongMessage, []byte(data))
		return to.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlWriteTimeout))
	})
}

// pump copies data frames from one connection to the other until a read fails. A close frame is
// recorded and passed on to the other side.
func pump(
	from, to *websocket.Conn,
	direction cassette.Direction,
	rec *sessionRecorder,
	loggers ldlog.Loggers,
	closeMessage string,
	url string,
) {
	for {
		messageType, data, err := from.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				loggers.Debugf(closeMessage, url, closeErr.Code)
				rec.closed(closeErr.Code, closeErr.Text)
				_ = to.WriteControl(websocket.CloseMessage, closePayload(closeErr.Code, closeErr.Text),
					time.Now().Add(controlWriteTimeout))
			}
			return
		}
		rec.add(direction, messageType, data)
		if err := to.WriteMessage(messageType, data); err != nil {
			return
		}
	}
}

// closePayload formats a close frame. Codes that must never appear on the wire, such as the one
// reported for a dropped connection, are sent as a close frame without a status.
func closePayload(code int, reason string) []byte {
	switch code {
	case websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure, websocket.CloseTLSHandshake:
		return websocket.FormatCloseMessage(websocket.CloseNoStatusReceived, "")
	default:
		return websocket.FormatCloseMessage(code, reason)
	}
}
