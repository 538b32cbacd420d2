package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/magneto-serge/magneto/config"
	"github.com/magneto-serge/magneto/internal/cassette"

	ct "github.com/launchdarkly/go-configtypes"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
	"github.com/stretchr/testify/require"
)

const (
	testTimeout  = time.Second * 5
	testInterval = time.Millisecond * 10
)

// Components that are passed from withProxy to the test logic.
type proxyTestParams struct {
	t       *testing.T
	proxy   *Proxy
	dir     string
	mockLog *ldlogtest.MockLog
	client  *http.Client
}

// withProxy creates a Proxy with a temporary cassette directory, listening on a random local port, and
// an HTTP client that uses it as its proxy. The configure function, if any, can change the config
// before the proxy is created.
func withProxy(t *testing.T, configure func(*config.Config), action func(proxyTestParams)) {
	mockLog := ldlogtest.NewMockLog()
	defer mockLog.DumpIfTestFailed(t)

	var c config.Config
	c.Main.CassetteDir = t.TempDir()
	c.Main.DrainTimeout = ct.NewOptDuration(time.Second)
	c.Main.LogLevel = config.NewOptLogLevel(ldlog.Debug)
	if configure != nil {
		configure(&c)
	}

	p, err := NewProxy(c, mockLog.Loggers)
	require.NoError(t, err)
	defer p.Shutdown()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, p.ServeListener(listener))

	proxyURL, err := url.Parse("http://" + listener.Addr().String())
	require.NoError(t, err)
	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		Timeout:   time.Second * 10,
	}
	defer client.CloseIdleConnections()

	action(proxyTestParams{t: t, proxy: p, dir: c.Main.CassetteDir, mockLog: mockLog, client: client})
}

type testResponse struct {
	status int
	header http.Header
	body   string
}

func (p proxyTestParams) do(method, url string, body []byte, headers ...string) testResponse {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(p.t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Add(headers[i], headers[i+1])
	}
	resp, err := p.client.Do(req)
	require.NoError(p.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(p.t, err)
	return testResponse{status: resp.StatusCode, header: resp.Header, body: string(data)}
}

func (p proxyTestParams) get(url string, headers ...string) testResponse {
	return p.do("GET", url, nil, headers...)
}

func (p proxyTestParams) saveCassette(c *cassette.Cassette) {
	require.NoError(p.t, p.proxy.Store().Save(c))
}

func (p proxyTestParams) loadCassette(name string) *cassette.Cassette {
	c, err := p.proxy.Store().Load(name)
	require.NoError(p.t, err)
	return c
}

func errorMessage(t *testing.T, r testResponse) string {
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.body), &body), "body was: %s", r.body)
	return body.Message
}
