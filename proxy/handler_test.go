package proxy

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/magneto-serge/magneto/config"
	"github.com/magneto-serge/magneto/internal/cassette"
	"github.com/magneto-serge/magneto/internal/logging"
	st "github.com/magneto-serge/magneto/internal/sharedtest"

	"github.com/gorilla/websocket"
	ct "github.com/launchdarkly/go-configtypes"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
	helpers "github.com/launchdarkly/go-test-helpers/v3"
	"github.com/launchdarkly/go-test-helpers/v3/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingHandler() http.Handler {
	var count int32
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&count, 1)
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("X-Upstream", "yes")
		_, _ = fmt.Fprintf(w, "%s %s #%d", r.Method, r.URL.Path, n)
	})
}

func byteLimit(s string) ct.OptBase2Bytes {
	var o ct.OptBase2Bytes
	if err := o.UnmarshalText([]byte(s)); err != nil {
		panic(err)
	}
	return o
}

func proxyBaseURL(p proxyTestParams) string {
	return fmt.Sprintf("http://127.0.0.1:%d", p.proxy.Port())
}

func TestRecordThenReplayWithoutUpstream(t *testing.T) {
	withProxy(t, nil, func(p proxyTestParams) {
		server := httptest.NewServer(countingHandler())
		upstreamURL := server.URL

		require.True(t, p.proxy.StartRecording("round-trip"))
		r1 := p.get(upstreamURL + "/items?page=1")
		r2 := p.do("POST", upstreamURL+"/items", []byte(`{"name":"x"}`), "Content-Type", "application/json")
		require.True(t, p.proxy.StopRecording())
		server.Close()

		assert.Equal(t, "GET /items #1", r1.body)
		assert.Equal(t, "POST /items #2", r2.body)

		c := p.loadCassette("round-trip")
		require.Len(t, c.Interactions, 2)
		assert.Equal(t, cassette.KindHTTP, c.Interactions[0].Kind)
		assert.Equal(t, "GET", c.Interactions[0].Method())
		assert.Equal(t, upstreamURL+"/items?page=1", c.Interactions[0].URL())
		assert.Equal(t, "POST", c.Interactions[1].Method())
		assert.Equal(t, `{"name":"x"}`, string(c.Interactions[1].Request.Body))
		_, hasTiming := c.Interactions[0].ResponseTimeMS.Get()
		assert.True(t, hasTiming)

		require.True(t, p.proxy.Replay("round-trip"))
		replayed1 := p.get(upstreamURL + "/items?page=1")
		replayed2 := p.do("POST", upstreamURL+"/items", []byte(`{"name":"x"}`), "Content-Type", "application/json")
		assert.Equal(t, http.StatusOK, replayed1.status)
		assert.Equal(t, r1.body, replayed1.body)
		assert.Equal(t, "yes", replayed1.header.Get("X-Upstream"))
		assert.Equal(t, r2.body, replayed2.body)

		assert.Equal(t, logging.SourceLive, r1.header.Get(logging.SourceHeader))
		assert.Equal(t, logging.SourceCassette, replayed1.header.Get(logging.SourceHeader))
		p.mockLog.AssertMessageMatch(t, true, ldlog.Debug, `url=`+regexp.QuoteMeta(upstreamURL)+`/items\?page=1 source=live status=200`)
		p.mockLog.AssertMessageMatch(t, true, ldlog.Debug, `url=`+regexp.QuoteMeta(upstreamURL)+`/items\?page=1 source=cassette status=200`)
	})
}

func TestReplayServesRepeatedRequestsInOrderThenFails(t *testing.T) {
	httphelpers.WithServer(countingHandler(), func(server *httptest.Server) {
		withProxy(t, nil, func(p proxyTestParams) {
			require.True(t, p.proxy.StartRecording("ordered"))
			for i := 0; i < 3; i++ {
				p.get(server.URL + "/poll")
			}
			require.True(t, p.proxy.StopRecording())

			require.True(t, p.proxy.Replay("ordered"))
			for i := 1; i <= 3; i++ {
				assert.Equal(t, fmt.Sprintf("GET /poll #%d", i), p.get(server.URL+"/poll").body)
			}
			r := p.get(server.URL + "/poll")
			assert.Equal(t, http.StatusBadGateway, r.status)
			assert.Contains(t, errorMessage(t, r), "all 3 recorded interactions for GET "+server.URL+"/poll have been used")
			p.mockLog.AssertMessageMatch(t, true, ldlog.Warn, "No recorded interaction")

			r = p.get(server.URL + "/never")
			assert.Equal(t, http.StatusBadGateway, r.status)
			assert.Contains(t, errorMessage(t, r), "no recorded interaction for GET")
		})
	})
}

func TestReplayStrict(t *testing.T) {
	httphelpers.WithServer(countingHandler(), func(server *httptest.Server) {
		withProxy(t, nil, func(p proxyTestParams) {
			require.True(t, p.proxy.StartRecording("strict"))
			p.do("POST", server.URL+"/submit", []byte("payload"))
			p.do("POST", server.URL+"/submit", []byte("payload"))
			require.True(t, p.proxy.StopRecording())

			require.True(t, p.proxy.ReplayStrict("strict"))
			r := p.do("POST", server.URL+"/submit", []byte("payload"))
			assert.Equal(t, http.StatusOK, r.status)
			assert.Equal(t, "POST /submit #1", r.body)

			r = p.do("POST", server.URL+"/submit", []byte("PAYLOAD"))
			assert.Equal(t, http.StatusBadGateway, r.status)
			assert.Contains(t, errorMessage(t, r), "does not match the recording")
			p.mockLog.AssertMessageMatch(t, true, ldlog.Warn, "Strict replay mismatch")

			// the mismatched request used up the last recording
			r = p.do("POST", server.URL+"/submit", []byte("payload"))
			assert.Equal(t, http.StatusBadGateway, r.status)
		})
	})
}

func TestNonStrictReplayIgnoresHeadersAndBody(t *testing.T) {
	withProxy(t, nil, func(p proxyTestParams) {
		p.saveCassette(st.MakeCassette("loose", st.HTTPInteraction("POST", "http://svc.test/submit", 201, "created")))
		require.True(t, p.proxy.Replay("loose"))
		r := p.do("POST", "http://svc.test/submit", []byte("anything"), "X-Extra", "1")
		assert.Equal(t, http.StatusCreated, r.status)
		assert.Equal(t, "created", r.body)
		assert.Equal(t, "text/plain", r.header.Get("Content-Type"))
	})
}

func TestReplayedEmptyStatusesHaveNoBody(t *testing.T) {
	withProxy(t, nil, func(p proxyTestParams) {
		p.saveCassette(st.MakeCassette("statuses",
			st.HTTPInteraction("DELETE", "http://svc.test/thing", 204, ""),
			st.HTTPInteraction("HEAD", "http://svc.test/thing", 200, ""),
		))
		require.True(t, p.proxy.Replay("statuses"))
		r := p.do("DELETE", "http://svc.test/thing", nil)
		assert.Equal(t, http.StatusNoContent, r.status)
		assert.Equal(t, "", r.body)
		r = p.do("HEAD", "http://svc.test/thing", nil)
		assert.Equal(t, http.StatusOK, r.status)
		assert.Equal(t, "", r.body)
	})
}

func TestHybridServesRecordedAndRecordsMissing(t *testing.T) {
	httphelpers.WithServer(countingHandler(), func(server *httptest.Server) {
		withProxy(t, nil, func(p proxyTestParams) {
			p.saveCassette(st.MakeCassette("hybrid", st.HTTPInteraction("GET", server.URL+"/known", 200, "from cassette")))

			require.True(t, p.proxy.Hybrid("hybrid"))
			assert.Equal(t, "from cassette", p.get(server.URL+"/known").body)
			assert.Equal(t, "GET /unknown #1", p.get(server.URL+"/unknown").body)
			// recorded interactions are not replayed until the next session
			assert.Equal(t, "GET /known #2", p.get(server.URL+"/known").body)
			assert.Equal(t, 3, p.proxy.status().Interactions)
			require.True(t, p.proxy.StopHybrid())

			c := p.loadCassette("hybrid")
			require.Len(t, c.Interactions, 3)
			assert.Equal(t, "from cassette", string(c.Interactions[0].Response.Body))
			assert.Equal(t, server.URL+"/unknown", c.Interactions[1].URL())
			assert.Equal(t, server.URL+"/known", c.Interactions[2].URL())
		})
	})
}

func TestPassThroughDoesNotRecord(t *testing.T) {
	httphelpers.WithServer(countingHandler(), func(server *httptest.Server) {
		withProxy(t, nil, func(p proxyTestParams) {
			require.True(t, p.proxy.PassThrough())
			assert.Equal(t, "GET /a #1", p.get(server.URL+"/a").body)
			assert.Equal(t, "GET /a #2", p.get(server.URL+"/a").body)
			require.True(t, p.proxy.Stop())

			names, err := p.proxy.Store().List()
			require.NoError(t, err)
			assert.Len(t, names, 0)
		})
	})
}

func TestRecordingFilters(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Set-Token", "server-secret")
		_, _ = w.Write([]byte(r.Header.Get("Authorization")))
	})
	configure := func(c *config.Config) {
		c.Record.IgnoreURL = ct.NewOptStringList([]string{"/health$"})
		c.Record.FilterHeader = ct.NewOptStringList([]string{"authorization", "Set-Token"})
		c.Record.SkipStatus = config.StatusCodeList{http.StatusInternalServerError}
	}
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		withProxy(t, configure, func(p proxyTestParams) {
			require.True(t, p.proxy.StartRecording("filtered"))
			assert.Equal(t, http.StatusOK, p.get(server.URL+"/health").status)
			assert.Equal(t, http.StatusInternalServerError, p.get(server.URL+"/boom").status)
			r := p.get(server.URL+"/data", "Authorization", "Bearer abc")
			assert.Equal(t, "Bearer abc", r.body)
			assert.Equal(t, "server-secret", r.header.Get("Set-Token"))
			require.True(t, p.proxy.StopRecording())

			c := p.loadCassette("filtered")
			require.Len(t, c.Interactions, 1)
			i := c.Interactions[0]
			assert.Equal(t, server.URL+"/data", i.URL())
			assert.Equal(t, cassette.FilteredValue, i.Request.Headers.Get("Authorization"))
			assert.Equal(t, cassette.FilteredValue, i.Response.Headers.Get("Set-Token"))

			// a filtered header matches any value in strict replay
			require.True(t, p.proxy.ReplayStrict("filtered"))
			r = p.get(server.URL+"/data", "Authorization", "Bearer xyz")
			assert.Equal(t, http.StatusOK, r.status)
			assert.Equal(t, "Bearer abc", r.body)
		})
	})
}

func TestStaticAssetsAreForwardedButNotRecorded(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/logo":
			w.Header().Set("Content-Type", "image/png")
		case "/theme":
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
		default:
			w.Header().Set("Content-Type", "application/json")
		}
		_, _ = w.Write([]byte(r.URL.Path))
	})
	configure := func(c *config.Config) {
		c.Record.Preset = ct.NewOptStringList([]string{"web_assets"})
		c.Record.SkipExtension = ct.NewOptStringList([]string{"txt"})
	}
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		withProxy(t, configure, func(p proxyTestParams) {
			require.True(t, p.proxy.StartRecording("assets"))
			assert.Equal(t, "/logo", p.get(server.URL+"/logo").body)
			assert.Equal(t, "/theme", p.get(server.URL+"/theme").body)
			assert.Equal(t, "/robots.txt", p.get(server.URL+"/robots.txt").body)
			assert.Equal(t, "/api", p.get(server.URL+"/api").body)
			require.True(t, p.proxy.StopRecording())

			c := p.loadCassette("assets")
			require.Len(t, c.Interactions, 1)
			assert.Equal(t, server.URL+"/api", c.Interactions[0].URL())
		})
	})
}

func TestNetworkErrorIsRecordedAndReplayed(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	deadURL := server.URL
	server.Close()

	withProxy(t, nil, func(p proxyTestParams) {
		require.True(t, p.proxy.StartRecording("refused"))
		r := p.get(deadURL + "/x")
		assert.Equal(t, http.StatusBadGateway, r.status)
		require.True(t, p.proxy.StopRecording())

		c := p.loadCassette("refused")
		require.Len(t, c.Interactions, 1)
		i := c.Interactions[0]
		assert.Equal(t, cassette.KindHTTPError, i.Kind)
		require.NotNil(t, i.Error)
		assert.Equal(t, cassette.NetworkErrorConnectionRefused, i.Error.Type)
		assert.Nil(t, i.Response)

		require.True(t, p.proxy.Replay("refused"))
		r = p.get(deadURL + "/x")
		assert.Equal(t, http.StatusBadGateway, r.status)
		assert.Equal(t, logging.SourceCassette, r.header.Get(logging.SourceHeader))
		assert.Contains(t, errorMessage(t, r), "recorded network error (ConnectionRefused)")
	})
}

func TestBodySizeLimits(t *testing.T) {
	handler := httphelpers.HandlerWithResponse(http.StatusOK, nil, []byte(strings.Repeat("x", 100)))
	configure := func(c *config.Config) { c.Record.MaxBodySize = byteLimit("64B") }
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		withProxy(t, configure, func(p proxyTestParams) {
			require.True(t, p.proxy.StartRecording("limits"))
			r := p.do("POST", server.URL+"/upload", []byte(strings.Repeat("y", 100)))
			assert.Equal(t, http.StatusRequestEntityTooLarge, r.status)

			r = p.get(server.URL + "/download")
			assert.Equal(t, http.StatusBadGateway, r.status)
			require.True(t, p.proxy.StopRecording())

			assert.Len(t, p.loadCassette("limits").Interactions, 0)
		})
	})
}

func TestCookiesAreRecordedAndReplayed(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
			_, _ = w.Write([]byte("welcome"))
		default:
			if c, err := r.Cookie("sid"); err == nil {
				_, _ = w.Write([]byte("hello " + c.Value))
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
		}
	})
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		withProxy(t, nil, func(p proxyTestParams) {
			require.True(t, p.proxy.StartRecording("cookies"))
			assert.Equal(t, "welcome", p.get(server.URL+"/login").body)
			assert.Equal(t, "hello abc", p.get(server.URL+"/profile", "Cookie", "sid=abc").body)
			require.True(t, p.proxy.StopRecording())

			c := p.loadCassette("cookies")
			require.Len(t, c.Cookies, 1)
			assert.Equal(t, "sid", c.Cookies[0].Name)
			assert.Equal(t, "abc", c.Cookies[0].Value)

			// The client does not send the cookie this time; the cassette's jar supplies it, but only
			// for requests made after the cookie was originally set.
			require.True(t, p.proxy.ReplayStrict("cookies"))
			assert.Equal(t, "welcome", p.get(server.URL+"/login").body)
			r := p.get(server.URL + "/profile")
			assert.Equal(t, http.StatusOK, r.status)
			assert.Equal(t, "hello abc", r.body)
		})
	})
}

func TestStrictReplayDoesNotAddCookiesThatWereNeverSent(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
		}
		_, _ = w.Write([]byte("page " + r.URL.Path))
	})
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		withProxy(t, nil, func(p proxyTestParams) {
			require.True(t, p.proxy.StartRecording("anonymous"))
			p.get(server.URL + "/login")
			p.get(server.URL + "/public")
			require.True(t, p.proxy.StopRecording())
			require.Len(t, p.loadCassette("anonymous").Cookies, 1)

			require.True(t, p.proxy.ReplayStrict("anonymous"))
			assert.Equal(t, 2, p.proxy.status().Remaining)
			r := p.get(server.URL + "/login")
			assert.Equal(t, http.StatusOK, r.status)
			r = p.get(server.URL + "/public")
			assert.Equal(t, http.StatusOK, r.status, r.body)
			assert.Equal(t, "page /public", r.body)
			assert.Equal(t, 0, p.proxy.status().Remaining)
		})
	})
}

func TestReverseProxyWithTargetURL(t *testing.T) {
	httphelpers.WithServer(countingHandler(), func(server *httptest.Server) {
		configure := func(c *config.Config) {
			c.Main.TargetURL, _ = ct.NewOptURLAbsoluteFromString(server.URL + "/api/")
		}
		withProxy(t, configure, func(p proxyTestParams) {
			require.True(t, p.proxy.StartRecording("reverse"))
			resp, err := http.Get(proxyBaseURL(p) + "/users?id=1")
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			require.True(t, p.proxy.StopRecording())

			c := p.loadCassette("reverse")
			require.Len(t, c.Interactions, 1)
			assert.Equal(t, server.URL+"/api/users?id=1", c.Interactions[0].URL())
		})
	})
}

func TestRelativeRequestWithoutTargetIsRejected(t *testing.T) {
	withProxy(t, nil, func(p proxyTestParams) {
		require.True(t, p.proxy.PassThrough())
		resp, err := http.Get(proxyBaseURL(p) + "/x")
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSimulatedLatency(t *testing.T) {
	configure := func(c *config.Config) { c.Replay.SimulateLatency = true }
	withProxy(t, configure, func(p proxyTestParams) {
		i := st.HTTPInteraction("GET", "http://svc.test/slow", 200, "done")
		i.ResponseTimeMS = ldvalue.NewOptionalInt(200)
		p.saveCassette(st.MakeCassette("slow", i))
		require.True(t, p.proxy.Replay("slow"))

		started := time.Now()
		assert.Equal(t, "done", p.get("http://svc.test/slow").body)
		assert.GreaterOrEqual(t, time.Since(started), time.Millisecond*200)
	})
}

func wsEchoHandler() http.Handler {
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			t, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(t, append([]byte("echo: "), data...)); err != nil {
				return
			}
		}
	})
}

func closeWebSocket(t *testing.T, conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = conn.SetReadDeadline(time.Now().Add(testTimeout))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestWebSocketRecordAndReplay(t *testing.T) {
	httphelpers.WithServer(wsEchoHandler(), func(server *httptest.Server) {
		configure := func(c *config.Config) {
			c.Main.TargetURL, _ = ct.NewOptURLAbsoluteFromString(server.URL)
		}
		withProxy(t, configure, func(p proxyTestParams) {
			wsBase := "ws://127.0.0.1:" + fmt.Sprint(p.proxy.Port())
			upstreamWS := "ws" + strings.TrimPrefix(server.URL, "http")

			require.True(t, p.proxy.StartRecording("ws"))
			conn, _, err := websocket.DefaultDialer.Dial(wsBase+"/feed", nil)
			require.NoError(t, err)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hi")))
			_, data, err := conn.ReadMessage()
			require.NoError(t, err)
			assert.Equal(t, "echo: hi", string(data))
			closeWebSocket(t, conn)
			_ = conn.Close()

			require.Eventually(t, func() bool { return p.proxy.status().Interactions == 1 }, testTimeout, testInterval)
			require.True(t, p.proxy.StopRecording())

			c := p.loadCassette("ws")
			require.Len(t, c.Interactions, 1)
			i := c.Interactions[0]
			assert.Equal(t, cassette.KindWebSocket, i.Kind)
			assert.Equal(t, upstreamWS+"/feed", i.URL())
			require.Len(t, i.WebSocket.Messages, 2)
			assert.Equal(t, cassette.Sent, i.WebSocket.Messages[0].Direction)
			assert.Equal(t, cassette.Received, i.WebSocket.Messages[1].Direction)

			require.True(t, p.proxy.Replay("ws"))
			conn, _, err = websocket.DefaultDialer.Dial(wsBase+"/feed", nil)
			require.NoError(t, err)
			defer conn.Close()
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hi")))
			_, data, err = conn.ReadMessage()
			require.NoError(t, err)
			assert.Equal(t, "echo: hi", string(data))
			closeWebSocket(t, conn)

			_, resp, err := websocket.DefaultDialer.Dial(wsBase+"/other", nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		})
	})
}

func TestWebSocketUpstreamUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	deadURL := server.URL
	server.Close()
	configure := func(c *config.Config) {
		c.Main.TargetURL, _ = ct.NewOptURLAbsoluteFromString(deadURL)
	}
	withProxy(t, configure, func(p proxyTestParams) {
		require.True(t, p.proxy.PassThrough())
		_, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/feed", p.proxy.Port()), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})
}

func sendConnect(t *testing.T, proxyAddr, target string) *http.Response {
	conn, err := net.Dial("tcp", proxyAddr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = fmt.Fprintf(conn, "CONNECT %s HTTP/1.1\r\nHost: %s\r\n\r\n", target, target)
	require.NoError(t, err)
	resp, err := http.ReadResponse(bufio.NewReader(conn), &http.Request{Method: http.MethodConnect})
	require.NoError(t, err)
	return resp
}

func TestConnectIsRefusedOutsidePassThrough(t *testing.T) {
	withProxy(t, nil, func(p proxyTestParams) {
		require.True(t, p.proxy.StartRecording("no-connect"))
		resp := sendConnect(t, fmt.Sprintf("127.0.0.1:%d", p.proxy.Port()), "example.com:443")
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestConnectTunnelsInPassThrough(t *testing.T) {
	handler := httphelpers.HandlerWithResponse(http.StatusOK, nil, []byte("secure"))
	httphelpers.WithSelfSignedServer(handler, func(server *httptest.Server, _ []byte, certPool *x509.CertPool) {
		withProxy(t, nil, func(p proxyTestParams) {
			require.True(t, p.proxy.PassThrough())
			proxyURL, err := url.Parse(proxyBaseURL(p))
			require.NoError(t, err)
			client := &http.Client{Transport: &http.Transport{
				Proxy:           http.ProxyURL(proxyURL),
				TLSClientConfig: &tls.Config{RootCAs: certPool}, //nolint:gosec
			}}
			defer client.CloseIdleConnections()

			resp, err := client.Get(server.URL + "/tls")
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	})
}

func TestShutdownClosesOpenWebSockets(t *testing.T) {
	httphelpers.WithServer(wsEchoHandler(), func(server *httptest.Server) {
		configure := func(c *config.Config) {
			c.Main.TargetURL, _ = ct.NewOptURLAbsoluteFromString(server.URL)
			c.Main.DrainTimeout = ct.NewOptDuration(time.Millisecond * 200)
		}
		withProxy(t, configure, func(p proxyTestParams) {
			require.True(t, p.proxy.StartRecording("open-ws"))
			conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/feed", p.proxy.Port()), nil)
			require.NoError(t, err)
			defer conn.Close()
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("before")))
			_, data, err := conn.ReadMessage()
			require.NoError(t, err)
			assert.Equal(t, "echo: before", string(data))

			p.proxy.Shutdown()

			_ = conn.SetReadDeadline(time.Now().Add(testTimeout))
			_ = conn.WriteMessage(websocket.TextMessage, []byte("after-shutdown"))
			_, _, err = conn.ReadMessage()
			assert.Error(t, err)

			c := p.loadCassette("open-ws")
			require.Len(t, c.Interactions, 1)
			assert.Equal(t, cassette.KindWebSocket, c.Interactions[0].Kind)
			assert.Len(t, c.Interactions[0].WebSocket.Messages, 2)
		})
	})
}

func TestShutdownClosesOpenTunnels(t *testing.T) {
	echo, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer echo.Close()
	go func() {
		for {
			conn, err := echo.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_, _ = io.Copy(conn, conn)
			}()
		}
	}()

	configure := func(c *config.Config) { c.Main.DrainTimeout = ct.NewOptDuration(time.Millisecond * 200) }
	withProxy(t, configure, func(p proxyTestParams) {
		require.True(t, p.proxy.PassThrough())
		conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", p.proxy.Port()))
		require.NoError(t, err)
		defer conn.Close()
		target := echo.Addr().String()
		_, err = fmt.Fprintf(conn, "CONNECT %s HTTP/1.1\r\nHost: %s\r\n\r\n", target, target)
		require.NoError(t, err)
		reader := bufio.NewReader(conn)
		resp, err := http.ReadResponse(reader, &http.Request{Method: http.MethodConnect})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		_, err = conn.Write([]byte("ping"))
		require.NoError(t, err)
		buf := make([]byte, 4)
		_ = conn.SetReadDeadline(time.Now().Add(testTimeout))
		_, err = io.ReadFull(reader, buf)
		require.NoError(t, err)
		assert.Equal(t, "ping", string(buf))

		p.proxy.Shutdown()

		_, _ = conn.Write([]byte("pong"))
		_, err = io.ReadFull(reader, buf)
		assert.Error(t, err)
	})
}

func TestRequestsInFlightFinishBeforeTheCassetteIsSaved(t *testing.T) {
	for name, stop := range map[string]func(*testing.T, *Proxy){
		"StopRecording": func(t *testing.T, p *Proxy) { assert.True(t, p.StopRecording()) },
		"Shutdown":      func(_ *testing.T, p *Proxy) { p.Shutdown() },
	} {
		t.Run(name, func(t *testing.T) {
			started := make(chan struct{}, 1)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				started <- struct{}{}
				time.Sleep(time.Millisecond * 300)
				_, _ = w.Write([]byte("slow"))
			})
			httphelpers.WithServer(handler, func(server *httptest.Server) {
				withProxy(t, nil, func(p proxyTestParams) {
					require.True(t, p.proxy.StartRecording("in-flight"))
					statusCh := make(chan int, 1)
					go func() {
						resp, err := p.client.Get(server.URL + "/slow")
						if err != nil {
							statusCh <- 0
							return
						}
						_ = resp.Body.Close()
						statusCh <- resp.StatusCode
					}()
					helpers.RequireValue(t, started, testTimeout)

					stop(t, p.proxy)

					assert.Equal(t, http.StatusOK, helpers.RequireValue(t, statusCh, testTimeout))
					c := p.loadCassette("in-flight")
					require.Len(t, c.Interactions, 1)
					assert.Equal(t, "slow", string(c.Interactions[0].Response.Body))
				})
			})
		})
	}
}
