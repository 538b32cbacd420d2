package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/magneto-serge/magneto/internal/cassette"

	"github.com/launchdarkly/eventsource"
)

const (
	eventsChannel = "events"

	interactionEvent    = "interaction"
	sessionStartedEvent = "session-started"
	sessionEndedEvent   = "session-ended"
)

// InteractionRep is the data of an "interaction" event, sent whenever an interaction is appended to
// the cassette being recorded.
type InteractionRep struct {
	SessionID      string `json:"session_id"`
	Cassette       string `json:"cassette"`
	Sequence       int    `json:"sequence"`
	Type           string `json:"type"`
	Method         string `json:"method"`
	URL            string `json:"url"`
	Status         int    `json:"status,omitempty"`
	Error          string `json:"error,omitempty"`
	ResponseTimeMS int    `json:"response_time_ms,omitempty"`
}

type adminEvent struct {
	id    string
	name  string
	value interface{}
}

func (e adminEvent) Id() string { //nolint:stylecheck // method name required by eventsource.Event
	return e.id
}

func (e adminEvent) Event() string {
	return e.name
}

func (e adminEvent) Data() string {
	data, _ := json.Marshal(e.value)
	return string(data)
}

// eventPublisher streams session changes and recorded interactions to admin clients as server-sent
// events. Events published after close are dropped, since the server's publishing loop has stopped.
type eventPublisher struct {
	server *eventsource.Server
	closed bool
	lock   sync.Mutex
}

func newEventPublisher() *eventPublisher {
	s := eventsource.NewServer()
	s.Gzip = false
	s.AllowCORS = true
	return &eventPublisher{server: s}
}

func (p *eventPublisher) handler() http.Handler {
	return p.server.Handler(eventsChannel)
}

func (p *eventPublisher) publishInteraction(s *session, seq int, i cassette.Interaction) {
	rep := InteractionRep{
		SessionID: s.id,
		Cassette:  s.name,
		Sequence:  seq,
		Type:      string(i.Kind),
		Method:    i.Method(),
		URL:       i.URL(),
	}
	if i.Response != nil {
		rep.Status = i.Response.Status
	}
	if i.Error != nil {
		rep.Error = string(i.Error.Type)
	}
	if ms, ok := i.ResponseTimeMS.Get(); ok {
		rep.ResponseTimeMS = ms
	}
	p.publish(adminEvent{
		id:    fmt.Sprintf("%s-%d", s.id, seq),
		name:  interactionEvent,
		value: rep,
	})
}

func (p *eventPublisher) publishSession(name string, status StatusRep) {
	p.publish(adminEvent{name: name, value: status})
}

func (p *eventPublisher) publish(e adminEvent) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return
	}
	p.server.Publish([]string{eventsChannel}, e)
}

func (p *eventPublisher) close() {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.server.Close()
}
