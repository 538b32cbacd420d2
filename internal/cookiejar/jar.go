package cookiejar

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// Jar is the set of cookies belonging to one cassette. It is safe for concurrent use.
type Jar struct {
	cookies []Cookie
	index   map[Key]int
	lock    sync.RWMutex
}

// NewJar creates a Jar holding the given cookies. Later cookies replace earlier ones with the same Key.
func NewJar(cookies []Cookie) *Jar {
	j := &Jar{index: make(map[Key]int)}
	for _, c := range cookies {
		j.storeLocked(c)
	}
	return j
}

// Store adds a cookie, replacing any cookie with the same name, domain, and path.
func (j *Jar) Store(c Cookie) {
	j.lock.Lock()
	j.storeLocked(c)
	j.lock.Unlock()
}

func (j *Jar) storeLocked(c Cookie) {
	key := c.Key()
	if i, ok := j.index[key]; ok {
		j.cookies[i] = c
		return
	}
	j.index[key] = len(j.cookies)
	j.cookies = append(j.cookies, c)
}

// StoreFromResponse parses every Set-Cookie header of a response to a request for reqURL and merges
// the results. A cookie without a Domain attribute gets the request host, and one without a Path
// gets "/". Malformed headers are logged and skipped.
func (j *Jar) StoreFromResponse(reqURL *url.URL, header http.Header, now time.Time, loggers ldlog.Loggers) {
	for _, value := range header.Values("Set-Cookie") {
		c, err := Parse(value, now)
		if err != nil {
			loggers.Warnf(logMsgBadSetCookie, reqURL.Host, err)
			continue
		}
		if c.Domain == "" {
			c.Domain = strings.ToLower(reqURL.Hostname())
		}
		if c.Path == "" {
			c.Path = "/"
		}
		j.Store(c)
	}
}

// Cookies returns a copy of all cookies in insertion order.
func (j *Jar) Cookies() []Cookie {
	j.lock.RLock()
	defer j.lock.RUnlock()
	ret := make([]Cookie, len(j.cookies))
	copy(ret, j.cookies)
	return ret
}

// Len returns the number of cookies in the jar.
func (j *Jar) Len() int {
	j.lock.RLock()
	defer j.lock.RUnlock()
	return len(j.cookies)
}

// Matching returns the cookies that had been set and were still valid at the reference time, and that
// match the URL's host and path. Cookies with longer paths come first, then older cookies. Secure cookies are only returned
// for https and wss URLs.
func (j *Jar) Matching(u *url.URL, ref time.Time) []Cookie {
	host := u.Hostname()
	secureScheme := u.Scheme == "https" || u.Scheme == "wss"
	var ret []Cookie
	j.lock.RLock()
	for _, c := range j.cookies {
		if c.CreatedAt.After(ref) || c.IsExpired(ref) || !c.MatchesDomain(host) || !c.MatchesPath(u.Path) {
			continue
		}
		if c.Secure && !secureScheme {
			continue
		}
		ret = append(ret, c)
	}
	j.lock.RUnlock()
	sort.SliceStable(ret, func(a, b int) bool {
		pa, pb := len(ret[a].effectivePath()), len(ret[b].effectivePath())
		if pa != pb {
			return pa > pb
		}
		return ret[a].CreatedAt.Before(ret[b].CreatedAt)
	})
	return ret
}

// Apply adds matching cookies to the request's Cookie header. Cookies whose names the client already
// sent are left alone. It returns the number of cookies added.
func (j *Jar) Apply(req *http.Request, u *url.URL, ref time.Time) int {
	sent := make(map[string]bool)
	for _, c := range req.Cookies() {
		sent[c.Name] = true
	}
	var added []string
	for _, c := range j.Matching(u, ref) {
		if sent[c.Name] {
			continue
		}
		sent[c.Name] = true
		added = append(added, c.HeaderValue())
	}
	if len(added) == 0 {
		return 0
	}
	values := added
	if existing := req.Header.Get("Cookie"); existing != "" {
		values = append([]string{existing}, added...)
	}
	req.Header.Set("Cookie", strings.Join(values, "; "))
	return len(added)
}
