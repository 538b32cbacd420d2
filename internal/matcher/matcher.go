package matcher

import (
	"bytes"
	"net/http"
	"sort"
	"sync/atomic"

	"github.com/magneto-serge/magneto/internal/cassette"
)

// Key identifies a group of interactions that answer the same request.
type Key struct {
	Method string
	URL    string
}

type group struct {
	indexes []int
	cursor  atomic.Int64
}

// take returns the next unused interaction index, or -1 if the group is exhausted.
func (g *group) take() int {
	n := g.cursor.Add(1) - 1
	if n >= int64(len(g.indexes)) {
		return -1
	}
	return g.indexes[n]
}

// Matcher serves the interactions of one loaded cassette. It is safe for concurrent use.
type Matcher struct {
	cassette      *cassette.Cassette
	http          map[Key]*group
	webSocket     map[string]*group
	ignoreHeaders map[string]struct{}
}

// New builds a Matcher for the cassette. Header names in ignoreHeaders are left out of strict
// comparison. The cassette must not be modified afterward.
func New(c *cassette.Cassette, ignoreHeaders []string) *Matcher {
	m := &Matcher{
		cassette:      c,
		http:          make(map[Key]*group),
		webSocket:     make(map[string]*group),
		ignoreHeaders: make(map[string]struct{}),
	}
	for _, h := range ignoreHeaders {
		m.ignoreHeaders[http.CanonicalHeaderKey(h)] = struct{}{}
	}
	for i, interaction := range c.Interactions {
		switch interaction.Kind {
		case cassette.KindHTTP, cassette.KindHTTPError:
			k := Key{Method: interaction.Request.Method, URL: interaction.Request.URL}
			g := m.http[k]
			if g == nil {
				g = &group{}
				m.http[k] = g
			}
			g.indexes = append(g.indexes, i)
		case cassette.KindWebSocket:
			g := m.webSocket[interaction.WebSocket.URL]
			if g == nil {
				g = &group{}
				m.webSocket[interaction.WebSocket.URL] = g
			}
			g.indexes = append(g.indexes, i)
		}
	}
	return m
}

// Cassette returns the cassette being served.
func (m *Matcher) Cassette() *cassette.Cassette {
	return m.cassette
}

// Match returns the next unused interaction with the same method and URL. Headers and body are not
// compared.
func (m *Matcher) Match(method, url string) (cassette.Interaction, error) {
	g := m.http[Key{Method: method, URL: url}]
	if g == nil {
		return cassette.Interaction{}, NoMatchingInteractionError{Method: method, URL: url}
	}
	i := g.take()
	if i < 0 {
		return cassette.Interaction{}, NoMatchingInteractionError{Method: method, URL: url, Recorded: len(g.indexes)}
	}
	return m.cassette.Interactions[i], nil
}

// MatchStrict is like Match, but the candidate's headers and body must also equal those of the live
// request. If adjust is not nil, it is given the candidate and returns the request to compare with it,
// for headers that the caller supplies on the client's behalf. A candidate that differs still counts
// as used.
func (m *Matcher) MatchStrict(req cassette.Request, adjust func(cassette.Interaction) cassette.Request) (cassette.Interaction, error) {
	interaction, err := m.Match(req.Method, req.URL)
	if err != nil {
		return interaction, err
	}
	if interaction.Request == nil {
		return interaction, nil
	}
	if adjust != nil {
		req = adjust(interaction)
	}
	if diffs := m.compare(*interaction.Request, req); len(diffs) > 0 {
		return cassette.Interaction{}, StrictMismatchError{Expected: *interaction.Request, Actual: req, Differences: diffs}
	}
	return interaction, nil
}

// MatchWebSocket returns the next unused WebSocket session recorded for the URL.
func (m *Matcher) MatchWebSocket(url string) (cassette.Interaction, error) {
	g := m.webSocket[url]
	if g == nil {
		return cassette.Interaction{}, NoMatchingInteractionError{Method: http.MethodGet, URL: url}
	}
	i := g.take()
	if i < 0 {
		return cassette.Interaction{}, NoMatchingInteractionError{Method: http.MethodGet, URL: url, Recorded: len(g.indexes)}
	}
	return m.cassette.Interactions[i], nil
}

// Remaining returns the number of interactions that have not been used yet.
func (m *Matcher) Remaining() int {
	total := 0
	count := func(g *group) {
		used := int(g.cursor.Load())
		if used < len(g.indexes) {
			total += len(g.indexes) - used
		}
	}
	for _, g := range m.http {
		count(g)
	}
	for _, g := range m.webSocket {
		count(g)
	}
	return total
}

func (m *Matcher) compare(expected, actual cassette.Request) []string {
	var diffs []string
	names := make(map[string]struct{})
	for name := range expected.Headers {
		names[http.CanonicalHeaderKey(name)] = struct{}{}
	}
	for name := range actual.Headers {
		names[http.CanonicalHeaderKey(name)] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		if _, ignored := m.ignoreHeaders[name]; !ignored {
			sorted = append(sorted, name)
		}
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		ev, eok := expected.Headers[name]
		av, aok := actual.Headers[name]
		switch {
		case eok && !aok:
			diffs = append(diffs, diffHeaderMissing(name))
		case !eok && aok:
			diffs = append(diffs, diffHeaderUnexpected(name))
		case !headerValuesEqual(ev, av):
			diffs = append(diffs, diffHeaderValue(name, ev, av))
		}
	}
	if !bytes.Equal(expected.Body, actual.Body) {
		diffs = append(diffs, diffBody(len(expected.Body), len(actual.Body)))
	}
	return diffs
}

// headerValuesEqual compares value lists in order. A recorded value that was redacted while recording
// matches any live value.
func headerValuesEqual(expected, actual []string) bool {
	if len(expected) != len(actual) {
		return false
	}
	for i := range expected {
		if expected[i] != actual[i] && expected[i] != cassette.FilteredValue {
			return false
		}
	}
	return true
}
