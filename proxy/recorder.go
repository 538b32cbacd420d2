package proxy

import (
	"sync"

	"github.com/magneto-serge/magneto/internal/cassette"
	"github.com/magneto-serge/magneto/internal/cookiejar"
)

// recorder is the single writer of a cassette that is being recorded. Exchanges complete on many
// goroutines; each one is appended under the same lock, so the cassette order is the order of
// completion. The sequence number of an interaction is its index in the cassette.
type recorder struct {
	cassette *cassette.Cassette
	onAppend func(seq int, i cassette.Interaction)
	lock     sync.Mutex
}

// newRecorder starts from a copy of base, so that the interactions of a cassette being replayed are
// never modified.
func newRecorder(base *cassette.Cassette, onAppend func(int, cassette.Interaction)) *recorder {
	c := *base
	c.Version = cassette.FormatVersion
	c.Interactions = append([]cassette.Interaction(nil), base.Interactions...)
	c.Cookies = nil
	return &recorder{cassette: &c, onAppend: onAppend}
}

func (r *recorder) append(i cassette.Interaction) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	seq := len(r.cassette.Interactions)
	r.cassette.Interactions = append(r.cassette.Interactions, i)
	if r.onAppend != nil {
		r.onAppend(seq, i)
	}
	return seq
}

func (r *recorder) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.cassette.Interactions)
}

// snapshot returns the cassette as it should be saved now.
func (r *recorder) snapshot(cookies []cookiejar.Cookie) *cassette.Cassette {
	r.lock.Lock()
	defer r.lock.Unlock()
	c := *r.cassette
	c.Interactions = append([]cassette.Interaction(nil), r.cassette.Interactions...)
	c.Cookies = cookies
	return &c
}
