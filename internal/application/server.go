package application

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

const readHeaderTimeout = time.Second * 10

// Listen opens a TCP listener on the given port on all interfaces.
func Listen(port int) (net.Listener, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("unable to listen on port %d: %w", port, err)
	}
	return listener, nil
}

// StartHTTPServer starts serving on an already open listener. It returns immediately, running the server
// on a separate goroutine; if the server stops for any reason other than being shut down, it sends an
// error to the error channel.
func StartHTTPServer(
	listener net.Listener,
	handler http.Handler,
	name string,
	loggers ldlog.Loggers,
) (*http.Server, <-chan error) {
	srv := &http.Server{
		Addr:              listener.Addr().String(),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		loggers.Infof("Starting %s listening on %s", name, listener.Addr())
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return srv, errCh
}
