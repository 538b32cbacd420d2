package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/magneto-serge/magneto/config"
	"github.com/magneto-serge/magneto/internal/application"
	"github.com/magneto-serge/magneto/internal/cassette"
	"github.com/magneto-serge/magneto/internal/cookiejar"
	"github.com/magneto-serge/magneto/internal/logging"
	"github.com/magneto-serge/magneto/internal/matcher"
	"github.com/magneto-serge/magneto/internal/metrics"
	"github.com/magneto-serge/magneto/internal/upstream"
	"github.com/magneto-serge/magneto/internal/util"

	"github.com/google/uuid"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// Proxy is a record-and-replay HTTP proxy. It runs at most one session at a time; the session's state
// decides what happens to each request.
//
// All methods are safe for concurrent use.
type Proxy struct {
	config    config.Config
	store     cassette.Store
	client    *upstream.Client
	metrics   *metrics.Manager
	events    *eventPublisher
	filters   recordFilters
	targetURL *url.URL
	version   *util.Memoizer[string]
	loggers   ldlog.Loggers

	mode        config.Mode
	port        int
	session     *session
	server      *http.Server
	listener    net.Listener
	serverErrCh <-chan error
	closed      bool
	lock        sync.RWMutex
}

// New creates a Proxy that keeps cassettes in the given directory, with default settings for
// everything else. Settings in MAGNETO_* environment variables, such as MAGNETO_CASSETTE_DIR,
// MAGNETO_MODE and MAGNETO_PORT, override the defaults and the directory parameter.
//
// If the proxy cannot be created, the error is a CreationError.
func New(cassetteDir string) (*Proxy, error) {
	loggers := logging.MakeDefaultLoggers()
	var c config.Config
	c.Main.CassetteDir = cassetteDir
	if err := config.LoadConfigFromEnvironment(&c, loggers); err != nil {
		return nil, CreationError{Err: err}
	}
	return NewProxy(c, loggers)
}

// NewProxy creates a Proxy from a configuration. The proxy does not listen for connections until a
// session is started, or Listen or ServeListener is called.
//
// If the proxy cannot be created, the error is a CreationError and nothing is left open.
func NewProxy(c config.Config, loggers ldlog.Loggers) (*Proxy, error) {
	if err := config.ValidateConfig(&c, loggers); err != nil {
		return nil, CreationError{Err: err}
	}
	if c.Main.LogLevel.IsDefined() {
		loggers.SetMinLevel(c.Main.LogLevel.GetOrElse(ldlog.Info))
	}

	var thingsToCleanUp util.CleanupTasks // keeps track of partially constructed things in case we exit early
	defer thingsToCleanUp.Run()

	filters, err := newRecordFilters(c.Record)
	if err != nil {
		return nil, CreationError{Err: err}
	}

	store, err := cassette.NewStore(c, loggers)
	if err != nil {
		return nil, CreationError{Err: errCannotCreateStore(err)}
	}
	thingsToCleanUp.AddCloser(store)

	client, err := upstream.NewClient(c.Upstream, loggers)
	if err != nil {
		return nil, CreationError{Err: errCannotCreateUpstreamClient(err)}
	}
	thingsToCleanUp.AddFunc(client.CloseIdleConnections)

	metricsManager, err := metrics.NewManager(c.Prometheus, loggers)
	if err != nil {
		return nil, CreationError{Err: errNewMetricsManagerFailed(err)}
	}
	thingsToCleanUp.AddFunc(metricsManager.Close)

	p := &Proxy{
		config:    c,
		store:     store,
		client:    client,
		metrics:   metricsManager,
		events:    newEventPublisher(),
		filters:   filters,
		targetURL: c.Main.TargetURL.Get(),
		loggers:   loggers,
		mode:      c.Main.Mode.GetOrElse(config.ModeAuto),
		port:      c.Main.Port.GetOrElse(config.DefaultPort),
	}
	p.version = util.NewMemoizer(buildVersion)

	loggers.Infof(logMsgStoreLocation, store.Describe())

	thingsToCleanUp.Clear() // we've succeeded so we do not want to throw away these things
	return p, nil
}

// SetPort changes the port that the proxy will listen on. It fails if the port is not in the range
// 1-65535, or if the proxy is already listening.
func (p *Proxy) SetPort(port int) error {
	if port < 1 || port > 65535 {
		return errBadPort(port)
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.listener != nil {
		return errPortWhileListening()
	}
	p.port = port
	return nil
}

// Port returns the port the proxy is listening on, or will listen on.
func (p *Proxy) Port() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.listener != nil {
		if addr, ok := p.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return p.port
}

// Addr returns the host and port that clients should use as their HTTP proxy.
func (p *Proxy) Addr() string {
	return net.JoinHostPort("localhost", strconv.Itoa(p.Port()))
}

// SetMode sets the mode used by the next call to Start. It does not affect a session in progress.
func (p *Proxy) SetMode(mode config.Mode) {
	p.lock.Lock()
	p.mode = mode
	p.lock.Unlock()
}

// Mode returns the mode that Start will use.
func (p *Proxy) Mode() config.Mode {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.mode
}

// State returns what the proxy is currently doing.
func (p *Proxy) State() State {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.session == nil {
		return StateIdle
	}
	return p.session.state
}

// CassetteName returns the name of the cassette used by the current session, or "" if there is none.
func (p *Proxy) CassetteName() string {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.session == nil {
		return ""
	}
	return p.session.name
}

// Version returns the version of the proxy.
func (p *Proxy) Version() string {
	return p.version.Get()
}

// Store returns the cassette store used by this proxy.
func (p *Proxy) Store() cassette.Store {
	return p.store
}

// StartRecording starts recording a new cassette. It returns false if a session is already active.
func (p *Proxy) StartRecording(name string) bool {
	return p.succeeded(p.Begin(config.ModeRecord, name))
}

// StopRecording stops a recording session and saves the cassette. It returns false if the proxy was
// not recording, or if the cassette could not be saved.
func (p *Proxy) StopRecording() bool {
	return p.succeeded(p.end(func(s State) bool { return s == StateRecording }, ErrNotRecording))
}

// Replay starts serving requests from an existing cassette. It returns false if the cassette cannot be
// loaded or a recording session is active.
func (p *Proxy) Replay(name string) bool {
	return p.succeeded(p.Begin(config.ModeReplay, name))
}

// ReplayStrict is like Replay, but requests must also match the recorded headers and body exactly.
func (p *Proxy) ReplayStrict(name string) bool {
	return p.succeeded(p.Begin(config.ModeReplayStrict, name))
}

// Hybrid starts serving requests from a cassette, recording any request that has no match. If the
// cassette does not exist, it starts empty.
func (p *Proxy) Hybrid(name string) bool {
	return p.succeeded(p.Begin(config.ModeHybrid, name))
}

// StopHybrid stops a hybrid session and saves the extended cassette.
func (p *Proxy) StopHybrid() bool {
	return p.succeeded(p.end(func(s State) bool { return s == StateHybrid }, ErrNotRecording))
}

// PassThrough starts forwarding every request without recording anything.
func (p *Proxy) PassThrough() bool {
	return p.succeeded(p.Begin(config.ModePassThrough, ""))
}

// Start starts a session in the mode set by SetMode or the configuration.
func (p *Proxy) Start(name string) bool {
	return p.succeeded(p.Begin(p.Mode(), name))
}

// Stop ends any active session, saving the cassette if the session was recording.
func (p *Proxy) Stop() bool {
	return p.succeeded(p.End())
}

func (p *Proxy) succeeded(err error) bool {
	if err != nil {
		p.loggers.Warn(err)
		return false
	}
	return true
}

// Begin starts a session in the given mode. ModeAuto replays the cassette if it exists and records it
// otherwise. The name is ignored for ModePassThrough.
//
// A replay-family or PassThrough session replaces the current session of the same kind. While a
// Recording or Hybrid session is active, Begin returns ErrAlreadyRecording; a recording session can
// only be started when the proxy is idle.
func (p *Proxy) Begin(mode config.Mode, name string) error {
	if mode == config.ModeAuto {
		resolved, err := p.resolveAuto(name)
		if err != nil {
			return err
		}
		mode = resolved
	}
	state, ok := stateForMode(mode)
	if !ok {
		return errModeNotStartable(mode.String())
	}
	if state.needsCassette() {
		if err := cassette.ValidateName(name); err != nil {
			return errBadCassetteName(err)
		}
	} else {
		name = ""
	}

	// Fail early before loading anything; the check is repeated below in case another session started
	// while the cassette was loading.
	p.lock.RLock()
	closed, current := p.closed, p.currentStateLocked()
	p.lock.RUnlock()
	if closed {
		return ErrClosed
	}
	if err := checkTransition(current, state); err != nil {
		return err
	}

	s, err := p.newSession(state, name)
	if err != nil {
		return err
	}

	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		s.discard()
		return ErrClosed
	}
	if err := checkTransition(p.currentStateLocked(), state); err != nil {
		p.lock.Unlock()
		s.discard()
		return err
	}
	previous := p.session
	p.session = s
	p.lock.Unlock()

	if previous != nil {
		go p.retire(previous)
	}

	if err := p.Listen(); err != nil {
		p.lock.Lock()
		if p.session == s {
			p.session = nil
		}
		p.lock.Unlock()
		s.discard()
		return err
	}

	if state == StatePassThrough {
		s.loggers.Info(logMsgPassThroughStarted)
	} else {
		s.loggers.Infof(logMsgSessionStarted, state, name)
	}
	p.events.publishSession(sessionStartedEvent, p.status())
	return nil
}

// End stops the active session. If it was recording, in-flight requests are given up to the drain
// timeout to finish and the cassette is then saved.
func (p *Proxy) End() error {
	return p.end(func(State) bool { return true }, ErrNoSession)
}

func (p *Proxy) end(accept func(State) bool, errWrongState error) error {
	p.lock.Lock()
	s := p.session
	if s == nil || !accept(s.state) {
		p.lock.Unlock()
		return errWrongState
	}
	p.session = nil
	p.lock.Unlock()

	err := p.finish(s)
	p.events.publishSession(sessionEndedEvent, p.status())
	return err
}

// finish drains a session that has already been detached, then saves its cassette if it recorded one.
func (p *Proxy) finish(s *session) error {
	s.close()
	timeout := p.drainTimeout()
	if pending := s.drain(timeout); pending > 0 {
		s.loggers.Warnf(logMsgDrainTimeout, timeout, pending)
		s.abort()
		if pending := s.drain(abortGracePeriod); pending > 0 {
			s.loggers.Warnf(logMsgAbortIncomplete, pending)
		}
	}
	s.abort()
	if s.recorder != nil {
		c := s.recorder.snapshot(s.jar.Cookies())
		if err := p.store.Save(c); err != nil {
			s.loggers.Errorf(logMsgSaveFailed, s.name, err)
			return err
		}
	}
	s.loggers.Infof(logMsgSessionEnded, s.state)
	return nil
}

// retire lets the requests of a replaced session finish within the drain timeout, then drops whatever
// connections it still has. A replaced session never has a cassette to save.
func (p *Proxy) retire(s *session) {
	s.close()
	if pending := s.drain(p.drainTimeout()); pending > 0 {
		s.loggers.Warnf(logMsgDrainTimeout, p.drainTimeout(), pending)
	}
	s.abort()
	s.loggers.Infof(logMsgSessionEnded, s.state)
}

func (p *Proxy) resolveAuto(name string) (config.Mode, error) {
	if err := cassette.ValidateName(name); err != nil {
		return config.ModeAuto, errBadCassetteName(err)
	}
	exists, err := p.store.Exists(name)
	if err != nil {
		return config.ModeAuto, err
	}
	if exists {
		p.loggers.Infof(logMsgAutoReplay, name)
		return config.ModeReplay, nil
	}
	p.loggers.Infof(logMsgAutoRecord, name)
	return config.ModeRecord, nil
}

func (p *Proxy) newSession(state State, name string) (*session, error) {
	now := time.Now()
	s := &session{
		id:        uuid.New().String(),
		name:      name,
		state:     state,
		startedAt: now,
		loggers:   p.loggers,
	}
	if name == "" {
		s.loggers.SetPrefix("[session]")
	} else {
		s.loggers.SetPrefix(fmt.Sprintf("[session: %s]", name))
	}
	ignoreHeaders := p.config.Replay.IgnoreHeader.Values()

	switch state {
	case StateRecording:
		s.jar = cookiejar.NewJar(nil)
		s.recorder = newRecorder(cassette.New(name, now), p.appendHandler(s))

	case StateReplaying, StateReplayingStrict:
		c, err := p.store.Load(name)
		if err != nil {
			return nil, err
		}
		s.jar = cookiejar.NewJar(c.Cookies)
		s.current.Store(matcher.New(c, ignoreHeaders))
		if p.config.Replay.WatchCassette {
			p.watch(s)
		}

	case StateHybrid:
		c, err := p.store.Load(name)
		if cassette.IsNotFound(err) {
			s.loggers.Infof(logMsgCassetteCreated, name)
			c, err = cassette.New(name, now), nil
		}
		if err != nil {
			return nil, err
		}
		s.jar = cookiejar.NewJar(c.Cookies)
		s.current.Store(matcher.New(c, ignoreHeaders))
		s.recorder = newRecorder(c, p.appendHandler(s))

	case StatePassThrough:
		s.jar = cookiejar.NewJar(nil)
	}
	s.aborted, s.abort = context.WithCancel(context.Background())
	return s, nil
}

func (p *Proxy) appendHandler(s *session) func(int, cassette.Interaction) {
	return func(seq int, i cassette.Interaction) {
		metrics.RecordInteraction(context.Background(), string(i.Kind))
		p.events.publishInteraction(s, seq, i)
	}
}

// watch reloads a replayed cassette whenever its file changes. Each reload builds a new matcher, so
// replay starts over from the first interaction.
func (p *Proxy) watch(s *session) {
	fileStore, ok := p.store.(*cassette.FileStore)
	if !ok {
		s.loggers.Warnf(logMsgWatchNeedsFiles, p.store.Describe())
		return
	}
	path, err := fileStore.FilePath(s.name)
	if err != nil {
		s.loggers.Warnf(logMsgWatchFailed, s.name, err)
		return
	}
	ignoreHeaders := p.config.Replay.IgnoreHeader.Values()
	reload := func() error {
		c, err := p.store.Load(s.name)
		if err != nil {
			return err
		}
		s.current.Store(matcher.New(c, ignoreHeaders))
		s.loggers.Infof(logMsgCassetteReloaded, s.name)
		return nil
	}
	w, err := cassette.NewWatcher(path, reload, 0, s.loggers)
	if err != nil {
		s.loggers.Warnf(logMsgWatchFailed, s.name, err)
		return
	}
	s.watcher = w
}

func (p *Proxy) currentStateLocked() State {
	if p.session == nil {
		return StateIdle
	}
	return p.session.state
}

// acquireSession returns the current session, counted as having one more request in flight, or nil
// if the proxy is idle. The caller must call exit on the session when done.
func (p *Proxy) acquireSession() *session {
	p.lock.RLock()
	defer p.lock.RUnlock()
	s := p.session
	if s != nil {
		s.enter()
	}
	return s
}

func (p *Proxy) drainTimeout() time.Duration {
	return p.config.Main.DrainTimeout.GetOrElse(config.DefaultDrainTimeout)
}

// Handler returns the proxy's HTTP handler with request-scoped logging attached, for serving the proxy
// from a server owned by the caller.
func (p *Proxy) Handler() http.Handler {
	var handler http.Handler = p
	if p.loggers.IsDebugEnabled() {
		handler = logging.RequestLoggerMiddleware(p.loggers)(handler)
	}
	return logging.GlobalContextLoggersMiddleware(p.loggers)(handler)
}

// Listen starts accepting connections on the configured port, if the proxy is not already listening.
// Starting a session calls this automatically.
func (p *Proxy) Listen() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.listener != nil {
		return nil
	}
	listener, err := application.Listen(p.port)
	if err != nil {
		return err
	}
	p.serveLocked(listener)
	return nil
}

// ServeListener starts accepting connections on a listener opened by the caller, instead of the
// configured port.
func (p *Proxy) ServeListener(listener net.Listener) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.listener != nil {
		return InvalidArgumentError{Message: "proxy is already listening"}
	}
	p.serveLocked(listener)
	return nil
}

func (p *Proxy) serveLocked(listener net.Listener) {
	p.server, p.serverErrCh = application.StartHTTPServer(listener, p.Handler(), "proxy", p.loggers)
	p.listener = listener
}

// ServerErrors returns a channel that receives an error if the proxy's server stops unexpectedly. It
// returns nil if the proxy is not listening.
func (p *Proxy) ServerErrors() <-chan error {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.serverErrCh
}

// Shutdown stops the proxy. The listener is closed immediately; requests already being handled get
// up to the drain timeout to finish before their connections are closed. An active recording is then
// saved as far as it got. Shutdown can be called more than once.
func (p *Proxy) Shutdown() {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return
	}
	p.closed = true
	server := p.server
	s := p.session
	p.session = nil
	p.lock.Unlock()

	timeout := p.drainTimeout()
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := server.Shutdown(ctx); err != nil {
			p.loggers.Warnf(logMsgShutdownForced, timeout)
			_ = server.Close()
		}
		cancel()
	}

	if s != nil {
		if err := p.finish(s); err != nil {
			p.loggers.Errorf(logMsgFlushFailed, s.name, err)
		}
	}

	p.events.close()
	p.metrics.Close()
	p.client.CloseIdleConnections()
	if err := p.store.Close(); err != nil {
		p.loggers.Warnf(logMsgStoreCloseFailed, err)
	}
}
