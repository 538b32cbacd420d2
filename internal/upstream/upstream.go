package upstream

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/magneto-serge/magneto/config"
	"github.com/magneto-serge/magneto/internal/util"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// UserAgent is added to forwarded requests that have no User-Agent of their own.
const UserAgent = "magneto"

// Client forwards requests to upstream servers. Redirects are never followed, so that the client of
// the proxy sees them exactly as the server sent them.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport
	proxyURL   *url.URL
	timeout    time.Duration
}

// NewClient validates the upstream options and creates a Client.
func NewClient(c config.UpstreamConfig, loggers ldlog.Loggers) (*Client, error) {
	transport := cleanhttp.DefaultPooledTransport()
	// the proxy passes compressed bodies through untouched
	transport.DisableCompression = true

	ret := &Client{
		transport: transport,
		timeout:   c.Timeout.GetOrElse(config.DefaultUpstreamTimeout),
	}

	if c.ProxyURL.IsDefined() {
		ret.proxyURL = c.ProxyURL.Get()
		loggers.Infof(logMsgUsingProxy, util.RedactURL(ret.proxyURL.String()))
		transport.Proxy = http.ProxyURL(ret.proxyURL)
	} else {
		transport.Proxy = nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12} //nolint:gosec
	if files := c.CACertFiles.Values(); len(files) > 0 {
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		for _, path := range files {
			data, err := os.ReadFile(path) //nolint:gosec
			if err != nil {
				return nil, errCannotReadCACertFile(path, err)
			}
			if !pool.AppendCertsFromPEM(data) {
				return nil, errInvalidCACertData(path)
			}
		}
		tlsConfig.RootCAs = pool
	}
	if c.InsecureSkipVerify {
		loggers.Warn(logMsgInsecureSkipVerify)
		tlsConfig.InsecureSkipVerify = true //nolint:gosec
	}
	transport.TLSClientConfig = tlsConfig

	ret.httpClient = &http.Client{
		Transport: transport,
		Timeout:   ret.timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return ret, nil
}

// Do sends a request upstream.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}
	return c.httpClient.Do(req)
}

// Timeout returns the overall time limit for one upstream request.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Transport returns the underlying transport. It is also used for tunneling, so it has no redirect
// policy of its own.
func (c *Client) Transport() *http.Transport {
	return c.transport
}

// WebSocketDialer returns a dialer that connects to upstream WebSocket servers with the same proxy and
// TLS settings as the HTTP client.
func (c *Client) WebSocketDialer() *websocket.Dialer {
	d := &websocket.Dialer{
		HandshakeTimeout: c.timeout,
		TLSClientConfig:  c.transport.TLSClientConfig.Clone(),
	}
	if c.proxyURL != nil {
		d.Proxy = http.ProxyURL(c.proxyURL)
	}
	return d
}

// CloseIdleConnections closes any pooled connections that are not in use.
func (c *Client) CloseIdleConnections() {
	c.transport.CloseIdleConnections()
}
