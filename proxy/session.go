package proxy

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/magneto-serge/magneto/internal/cassette"
	"github.com/magneto-serge/magneto/internal/cookiejar"
	"github.com/magneto-serge/magneto/internal/matcher"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// abortGracePeriod is how long a session waits for its requests to return after their connections
// have been closed.
const abortGracePeriod = time.Second

// session is everything that belongs to one run of the proxy between starting a mode and stopping it.
// The cookie jar and matching cursors live here, so nothing carries over from one session to the next.
type session struct {
	id        string
	name      string
	state     State
	startedAt time.Time
	jar       *cookiejar.Jar
	recorder  *recorder
	current   atomic.Pointer[matcher.Matcher]
	watcher   *cassette.Watcher
	inflight  sync.WaitGroup
	pending   atomic.Int64
	loggers   ldlog.Loggers

	// aborted is canceled when the session's remaining connections must be dropped. Connections that
	// the HTTP server has handed over, such as WebSocket relays and CONNECT tunnels, close on it.
	aborted context.Context
	abort   context.CancelFunc
}

// matcher returns the matcher for the current version of the cassette, which changes if the cassette
// is being watched and gets reloaded.
func (s *session) matcher() *matcher.Matcher {
	return s.current.Load()
}

// enter must be called while holding the Proxy's read lock, so that it cannot race with the session
// being detached and drained.
func (s *session) enter() {
	s.inflight.Add(1)
	s.pending.Add(1)
}

func (s *session) exit() {
	s.pending.Add(-1)
	s.inflight.Done()
}

// drain waits for requests that are still being handled. It returns the number of requests still
// pending if the timeout elapsed first.
func (s *session) drain(timeout time.Duration) int {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return 0
	case <-time.After(timeout):
		return int(s.pending.Load())
	}
}

func (s *session) close() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}

// discard releases a session that was never made current.
func (s *session) discard() {
	s.close()
	s.abort()
}

// closeOnAbort closes the connections when the session is aborted, until the returned function is
// called.
func (s *session) closeOnAbort(conns ...io.Closer) (release func() bool) {
	return context.AfterFunc(s.aborted, func() {
		for _, c := range conns {
			_ = c.Close()
		}
	})
}

// interactionCount is the number of interactions in the cassette being recorded, or in the cassette
// being replayed.
func (s *session) interactionCount() int {
	if s.recorder != nil {
		return s.recorder.count()
	}
	if m := s.matcher(); m != nil {
		return len(m.Cassette().Interactions)
	}
	return 0
}
