package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/magneto-serge/magneto/internal/cassette"
	"github.com/magneto-serge/magneto/internal/logging"
	"github.com/magneto-serge/magneto/internal/metrics"
	"github.com/magneto-serge/magneto/internal/upstream"
	"github.com/magneto-serge/magneto/internal/util"
	"github.com/magneto-serge/magneto/internal/wsproxy"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

const connectEstablished = "HTTP/1.1 200 Connection Established\r\n\r\n"

// ServeHTTP handles one request according to the state of the current session.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := p.acquireSession()
	if s == nil {
		p.fail(w, r, StateIdle, http.StatusServiceUnavailable, metrics.OutcomeRefused, errNoActiveSession)
		return
	}
	defer s.exit()
	metrics.WithInflight(r.Context(), func() {
		p.handle(s, w, r)
	})
}

func (p *Proxy) handle(s *session, w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		p.handleConnect(s, w, r)
		return
	}
	target, err := p.resolveTarget(r)
	if err != nil {
		p.fail(w, r, s.state, http.StatusBadRequest, metrics.OutcomeRefused, err)
		return
	}
	if wsproxy.IsUpgradeRequest(r) {
		p.handleWebSocket(s, w, r, target)
		return
	}
	p.handleHTTP(s, w, r, target)
}

// resolveTarget returns the URL that the request is for. A forward-proxy request already carries it;
// otherwise the request path and query are appended to the configured target URL. The scheme and host
// are lowercased, and the path and query are kept exactly as received.
func (p *Proxy) resolveTarget(r *http.Request) (*url.URL, error) {
	var u url.URL
	switch {
	case r.URL.IsAbs():
		u = *r.URL
	case p.targetURL != nil:
		u = *p.targetURL
		u.Path = strings.TrimSuffix(p.targetURL.Path, "/") + r.URL.Path
		u.RawPath = strings.TrimSuffix(p.targetURL.EscapedPath(), "/") + r.URL.EscapedPath()
		u.RawQuery = r.URL.RawQuery
		u.ForceQuery = r.URL.ForceQuery
	default:
		return nil, errNotProxyRequest
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return &u, nil
}

func (p *Proxy) handleHTTP(s *session, w http.ResponseWriter, r *http.Request, target *url.URL) {
	req, err := p.readRequest(r, target)
	if err != nil {
		if errors.Is(err, util.ErrPayloadTooLarge) {
			p.fail(w, r, s.state, http.StatusRequestEntityTooLarge, metrics.OutcomeRefused, errRequestBodyTooLarge)
		} else {
			p.fail(w, r, s.state, http.StatusBadRequest, metrics.OutcomeError, err)
		}
		return
	}

	switch s.state {
	case StateReplaying:
		i, err := s.matcher().Match(req.Method, req.URL)
		if err != nil {
			p.miss(w, r, s, err)
			return
		}
		p.serveRecorded(w, r, s, i)

	case StateReplayingStrict:
		i, err := s.matcher().MatchStrict(req, func(recorded cassette.Interaction) cassette.Request {
			return withJarCookies(s, req, target, recorded)
		})
		if err != nil {
			p.miss(w, r, s, err)
			return
		}
		p.serveRecorded(w, r, s, i)

	case StateHybrid:
		if i, err := s.matcher().Match(req.Method, req.URL); err == nil {
			p.serveRecorded(w, r, s, i)
			return
		}
		p.forwardHTTP(w, r, s, req, target)

	default:
		p.forwardHTTP(w, r, s, req, target)
	}
}

// withJarCookies returns the live request as it compares with a recorded one. Cookies from the cassette
// are attached as they stood when the recorded request was sent, but only if that request carried a
// Cookie header; a cookie the client never sent cannot make an otherwise identical request differ.
func withJarCookies(s *session, req cassette.Request, target *url.URL, recorded cassette.Interaction) cassette.Request {
	if recorded.Request == nil || recorded.Request.Headers.Get("Cookie") == "" {
		return req
	}
	withCookies := &http.Request{Header: req.Headers.Clone()}
	if s.jar.Apply(withCookies, target, recorded.RecordedAt) == 0 {
		return req
	}
	req.Headers = withCookies.Header
	return req
}

func (p *Proxy) readRequest(r *http.Request, target *url.URL) (cassette.Request, error) {
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		reader, err := util.NewReader(r.Body, false, p.config.Record.MaxBodySize)
		if err != nil {
			return cassette.Request{}, err
		}
		body, err = io.ReadAll(reader)
		if err != nil {
			return cassette.Request{}, err
		}
	}
	return cassette.Request{
		Method:  strings.ToUpper(r.Method),
		URL:     target.String(),
		Headers: endToEndHeaders(r.Header),
		Body:    nilIfEmpty(body),
	}, nil
}

// forwardHTTP sends the request upstream and relays the response. In a recording state the exchange is
// appended to the cassette, including a failure to reach the server at all, unless a recording filter
// excludes it.
func (p *Proxy) forwardHTTP(w http.ResponseWriter, r *http.Request, s *session, req cassette.Request, target *url.URL) {
	record := s.state.records() && !p.filters.ignores(req.URL)

	outReq, err := http.NewRequestWithContext(r.Context(), req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		p.fail(w, r, s.state, http.StatusBadGateway, metrics.OutcomeError, err)
		return
	}
	outReq.Header = req.Headers.Clone()

	started := time.Now()
	response, err := p.roundTrip(outReq)
	elapsed := time.Since(started)
	if errors.Is(err, util.ErrPayloadTooLarge) {
		p.fail(w, r, s.state, http.StatusBadGateway, metrics.OutcomeError, errResponseBodyTooLarge)
		return
	}
	if err != nil {
		if r.Context().Err() != nil {
			return // the client gave up; there is nobody to answer and nothing worth recording
		}
		netErr := upstream.Classify(err, p.client.Timeout())
		s.loggers.Warnf(logMsgUpstreamFailed, req.URL, netErr.Message)
		if record {
			s.recorder.append(cassette.Interaction{
				Kind:           cassette.KindHTTPError,
				Request:        p.filters.redactRequest(req),
				Error:          &netErr,
				RecordedAt:     started.UTC(),
				ResponseTimeMS: ldvalue.NewOptionalInt(int(elapsed / time.Millisecond)),
			})
		}
		p.fail(w, r, s.state, http.StatusBadGateway, metrics.OutcomeError, errUpstreamFailed(req.URL, err))
		return
	}
	metrics.RecordUpstreamLatency(r.Context(), req.Method, elapsed)

	if s.state.records() {
		s.jar.StoreFromResponse(target, response.Headers, time.Now(), s.loggers)
	}
	outcome := metrics.OutcomeForwarded
	if record && !p.filters.skips(response) {
		s.recorder.append(cassette.Interaction{
			Kind:           cassette.KindHTTP,
			Request:        p.filters.redactRequest(req),
			Response:       p.filters.redactResponse(response),
			RecordedAt:     started.UTC(),
			ResponseTimeMS: ldvalue.NewOptionalInt(int(elapsed / time.Millisecond)),
		})
		outcome = metrics.OutcomeRecorded
	}
	writeResponse(w, r.Method, logging.SourceLive, response)
	metrics.RecordRequest(r.Context(), s.state.String(), req.Method, outcome)
}

// roundTrip sends a request upstream and reads the whole response.
func (p *Proxy) roundTrip(req *http.Request) (*cassette.Response, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck
	reader, err := util.NewReader(resp.Body, false, p.config.Record.MaxBodySize)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	return &cassette.Response{
		Status:  resp.StatusCode,
		Headers: endToEndHeaders(resp.Header),
		Body:    nilIfEmpty(body),
	}, nil
}

// serveRecorded answers with a recorded interaction. A recorded network failure is answered with 502.
func (p *Proxy) serveRecorded(w http.ResponseWriter, r *http.Request, s *session, i cassette.Interaction) {
	if p.config.Replay.SimulateLatency {
		if !sleepRecordedLatency(r.Context(), i) {
			return
		}
	}
	if i.Kind == cassette.KindHTTPError {
		w.Header().Set(logging.SourceHeader, logging.SourceCassette)
		p.fail(w, r, s.state, http.StatusBadGateway, metrics.OutcomeReplayed, errReplayedNetworkError(i.Error))
		return
	}
	writeResponse(w, r.Method, logging.SourceCassette, i.Response)
	metrics.RecordRequest(r.Context(), s.state.String(), r.Method, metrics.OutcomeReplayed)
}

// sleepRecordedLatency waits as long as the upstream server originally took. It returns false if the
// client went away in the meantime.
func sleepRecordedLatency(ctx context.Context, i cassette.Interaction) bool {
	ms, ok := i.ResponseTimeMS.Get()
	if !ok || ms <= 0 {
		return true
	}
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Proxy) miss(w http.ResponseWriter, r *http.Request, s *session, err error) {
	outcome := metrics.OutcomeMiss
	if IsStrictMismatch(err) {
		outcome = metrics.OutcomeMismatch
		s.loggers.Warnf(logMsgStrictMismatch, err)
	} else {
		s.loggers.Warnf(logMsgNoMatch, err)
	}
	p.fail(w, r, s.state, http.StatusBadGateway, outcome, err)
}

func (p *Proxy) handleWebSocket(s *session, w http.ResponseWriter, r *http.Request, target *url.URL) {
	wsURL := wsproxy.ToWebSocketURL(target)

	if s.state.replays() {
		i, err := s.matcher().MatchWebSocket(wsURL)
		if err == nil {
			metrics.RecordRequest(r.Context(), s.state.String(), r.Method, metrics.OutcomeReplayed)
			if err := wsproxy.Replay(s.aborted, w, r, i.WebSocket, p.config.Replay.SimulateLatency, s.loggers); err != nil {
				s.loggers.Warnf(logMsgWebSocketFailed, wsURL, err)
			}
			return
		}
		if s.state != StateHybrid {
			p.miss(w, r, s, err)
			return
		}
	}

	record := s.state.records() && !p.filters.ignores(wsURL)
	started := time.Now().UTC()
	recorded, err := wsproxy.Forward(s.aborted, w, r, wsURL, p.client.WebSocketDialer(), record, s.loggers)
	if err != nil {
		s.loggers.Warnf(logMsgWebSocketFailed, wsURL, err)
		var dialErr wsproxy.DialError
		if errors.As(err, &dialErr) {
			p.fail(w, r, s.state, http.StatusBadGateway, metrics.OutcomeError, err)
		}
		return
	}
	outcome := metrics.OutcomeForwarded
	if record && recorded != nil {
		s.recorder.append(cassette.Interaction{
			Kind:       cassette.KindWebSocket,
			WebSocket:  recorded,
			RecordedAt: started,
		})
		outcome = metrics.OutcomeRecorded
	}
	metrics.RecordRequest(r.Context(), s.state.String(), r.Method, outcome)
}

// handleConnect opens a blind TCP tunnel. This is only done in PassThrough, since nothing inside the
// tunnel can be recorded or replayed.
func (p *Proxy) handleConnect(s *session, w http.ResponseWriter, r *http.Request) {
	if s.state != StatePassThrough {
		p.fail(w, r, s.state, http.StatusMethodNotAllowed, metrics.OutcomeRefused, errConnectNotAllowed)
		return
	}
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		p.fail(w, r, s.state, http.StatusInternalServerError, metrics.OutcomeError, errHijackNotSupported)
		return
	}
	dialer := net.Dialer{Timeout: p.client.Timeout()}
	upstreamConn, err := dialer.DialContext(r.Context(), "tcp", r.Host)
	if err != nil {
		s.loggers.Warnf(logMsgConnectFailed, r.Host, err)
		p.fail(w, r, s.state, http.StatusBadGateway, metrics.OutcomeError, errUpstreamFailed(r.Host, err))
		return
	}
	clientConn, buffered, err := hijacker.Hijack()
	if err != nil {
		_ = upstreamConn.Close()
		s.loggers.Warnf(logMsgConnectFailed, r.Host, err)
		return
	}
	release := s.closeOnAbort(clientConn, upstreamConn)
	defer release()
	metrics.RecordRequest(r.Context(), s.state.String(), r.Method, metrics.OutcomeForwarded)
	if _, err := clientConn.Write([]byte(connectEstablished)); err != nil {
		_ = clientConn.Close()
		_ = upstreamConn.Close()
		return
	}
	if n := buffered.Reader.Buffered(); n > 0 {
		if _, err := io.CopyN(upstreamConn, buffered, int64(n)); err != nil {
			_ = clientConn.Close()
			_ = upstreamConn.Close()
			return
		}
	}
	tunnel(clientConn, upstreamConn)
}

// tunnel copies bytes both ways until either side closes, then closes both.
func tunnel(a, b net.Conn) {
	done := make(chan struct{}, 2)
	pipe := func(dst, src net.Conn) {
		_, _ = io.Copy(dst, src)
		done <- struct{}{}
	}
	go pipe(a, b)
	go pipe(b, a)
	<-done
	_ = a.Close()
	_ = b.Close()
	<-done
}

// fail answers with a JSON error body.
func (p *Proxy) fail(w http.ResponseWriter, r *http.Request, state State, status int, outcome string, err error) {
	metrics.RecordRequest(r.Context(), state.String(), r.Method, outcome)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(util.ErrorJSONMsg(err.Error()))
}

// writeResponse writes a recorded or forwarded response, marking where it came from.
func writeResponse(w http.ResponseWriter, method, source string, resp *cassette.Response) {
	h := w.Header()
	for name, values := range resp.Headers {
		if name == "Content-Length" {
			continue
		}
		h[name] = append([]string(nil), values...)
	}
	h.Set(logging.SourceHeader, source)
	switch {
	case method == http.MethodHead:
		if cl := resp.Headers.Get("Content-Length"); cl != "" {
			h.Set("Content-Length", cl)
		}
	case bodyAllowed(resp.Status):
		h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}
	w.WriteHeader(resp.Status)
	if method != http.MethodHead && bodyAllowed(resp.Status) && len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

func bodyAllowed(status int) bool {
	return status >= 200 && status != http.StatusNoContent && status != http.StatusNotModified
}

func nilIfEmpty(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	return data
}
