package wsproxy

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/magneto-serge/magneto/internal/cassette"

	"github.com/gorilla/websocket"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// Replay upgrades the client connection and plays back a recorded session. Received frames are pushed
// to the client in recorded order; each recorded Sent data frame waits for the client to send a
// message, which is consumed without being compared for equality. If simulateTiming is true, received
// frames are delayed to their recorded offsets.
//
// When the recording is exhausted, the recorded close frame (or a normal closure) is sent. The client
// connection is closed as soon as ctx is done.
func Replay(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	session *cassette.WebSocketSession,
	simulateTiming bool,
	loggers ldlog.Loggers,
) error {
	client, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errUpgradeFailed(err)
	}
	defer client.Close() //nolint:errcheck
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	start := time.Now()
	total := len(session.Messages)
	for n, m := range session.Messages {
		code, err := messageTypeCode(m.Type)
		if err != nil {
			return err
		}
		if m.Direction == cassette.Sent {
			if code == websocket.PingMessage || code == websocket.PongMessage {
				continue
			}
			_, data, err := client.ReadMessage()
			if err != nil {
				loggers.Debugf(logMsgReplayClientGone, session.URL, n, total)
				return nil
			}
			if !bytes.Equal(data, m.Data) {
				loggers.Debugf(logMsgReplayMismatch, session.URL, n)
			}
			continue
		}
		if simulateTiming {
			if wait := time.Duration(m.TimestampMS)*time.Millisecond - time.Since(start); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return nil
				}
			}
		}
		if code == websocket.PingMessage || code == websocket.PongMessage {
			err = client.WriteControl(code, m.Data, time.Now().Add(controlWriteTimeout))
		} else {
			err = client.WriteMessage(code, m.Data)
		}
		if err != nil {
			loggers.Debugf(logMsgReplayClientGone, session.URL, n, total)
			return nil
		}
	}

	closeCode, reason := websocket.CloseNormalClosure, ""
	if cf := session.CloseFrame; cf != nil {
		closeCode, reason = cf.Code, cf.Reason
	}
	_ = client.WriteControl(websocket.CloseMessage, closePayload(closeCode, reason),
		time.Now().Add(controlWriteTimeout))

	// wait briefly for the client's close reply so the close frame is not lost to a reset
	_ = client.SetReadDeadline(time.Now().Add(controlWriteTimeout))
	for {
		if _, _, err := client.ReadMessage(); err != nil {
			return nil
		}
	}
}
