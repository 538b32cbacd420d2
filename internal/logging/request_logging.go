package logging

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// SourceHeader is set by the proxy on every response it writes, to say whether the response came from
// a cassette ("cassette") or from the upstream server ("live"). The request logger includes it in its
// output so that a debug log shows which requests were served from recordings.
const SourceHeader = "X-Magneto-Source"

// Values of SourceHeader.
const (
	SourceCassette = "cassette"
	SourceLive     = "live"
)

var errHijackNotSupported = errors.New("underlying ResponseWriter does not support hijacking")

// RequestLoggerMiddleware decorates a Handler with debug-level logging of all requests.
func RequestLoggerMiddleware(loggers ldlog.Loggers) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			wrappedWriter := loggingHTTPResponseWriter{loggers: loggers, writer: w, request: req}
			next.ServeHTTP(&wrappedWriter, req)
			wrappedWriter.logRequest()
		})
	}
}

type loggingHTTPResponseWriter struct {
	loggers      ldlog.Loggers
	writer       http.ResponseWriter
	request      *http.Request
	statusCode   int
	streaming    bool
	hijacked     bool
	bytesWritten uint64
}

func (w *loggingHTTPResponseWriter) Header() http.Header {
	return w.writer.Header()
}

func (w *loggingHTTPResponseWriter) Write(data []byte) (int, error) {
	if w.statusCode == 0 {
		w.WriteHeader(200)
	}
	w.bytesWritten += uint64(len(data))
	return w.writer.Write(data)
}

func (w *loggingHTTPResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	if strings.Contains(w.writer.Header().Get("Content-Type"), "text/event-stream") {
		w.streaming = true
		w.logRequest() // for streaming requests, log at beginning of request as well as end
	} // all non-streaming requests will be logged at end of request once we know the response length
	w.writer.WriteHeader(statusCode)
}

func (w *loggingHTTPResponseWriter) logRequest() {
	if w.hijacked {
		w.loggers.Debugf("Connection hijacked: method=%s url=%s", w.request.Method, w.request.URL)
		return
	}
	source := w.writer.Header().Get(SourceHeader)
	if source == "" {
		source = "n/a"
	}
	if w.streaming {
		if w.bytesWritten == 0 {
			w.loggers.Debugf("Request: method=%s url=%s source=%s status=%d (streaming)",
				w.request.Method,
				w.request.URL,
				source,
				w.statusCode,
			)
		} else {
			w.loggers.Debugf("Stream closed: url=%s source=%s bytes=%d",
				w.request.URL,
				source,
				w.bytesWritten,
			)
		}
	} else {
		w.loggers.Debugf("Request: method=%s url=%s source=%s status=%d bytes=%d",
			w.request.Method,
			w.request.URL,
			source,
			w.statusCode,
			w.bytesWritten,
		)
	}
}

// In order to substitute loggingHTTPResponseWriter for the default http.ResponseWriter,
// it has to also implement http.Flusher, and http.Hijacker for WebSocket upgrades and CONNECT tunnels.

func (w *loggingHTTPResponseWriter) Flush() {
	if f, ok := w.writer.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *loggingHTTPResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.writer.(http.Hijacker)
	if !ok {
		return nil, nil, errHijackNotSupported
	}
	conn, rw, err := h.Hijack()
	if err == nil {
		w.hijacked = true
	}
	return conn, rw, err
}
