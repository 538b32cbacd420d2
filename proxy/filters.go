package proxy

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/magneto-serge/magneto/config"
	"github.com/magneto-serge/magneto/internal/cassette"
)

// Headers that only describe one hop of a connection. They are neither forwarded nor recorded.
var hopByHopHeaders = []string{ //nolint:gochecknoglobals
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// recordFilters decides what of a live exchange ends up in a cassette.
type recordFilters struct {
	ignoreURLs       []*regexp.Regexp
	filterHeaders    []string
	skipStatus       config.StatusCodeList
	skipContentTypes []string
	skipExtensions   []string
}

func newRecordFilters(c config.RecordConfig) (recordFilters, error) {
	f := recordFilters{skipStatus: c.SkipStatus}
	contentTypes, extensions := c.SkipContentType.Values(), c.SkipExtension.Values()
	for _, name := range c.Preset.Values() {
		preset, ok := config.RecordPresets[name]
		if !ok {
			return recordFilters{}, errBadRecordFilter(errUnknownPreset(name))
		}
		contentTypes = append(contentTypes, preset.ContentTypes...)
		extensions = append(extensions, preset.Extensions...)
	}
	for _, t := range contentTypes {
		f.skipContentTypes = append(f.skipContentTypes, strings.ToLower(t))
	}
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.skipExtensions = append(f.skipExtensions, ext)
	}
	for _, pattern := range c.IgnoreURL.Values() {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return recordFilters{}, errBadRecordFilter(err)
		}
		f.ignoreURLs = append(f.ignoreURLs, re)
	}
	for _, name := range c.FilterHeader.Values() {
		f.filterHeaders = append(f.filterHeaders, http.CanonicalHeaderKey(name))
	}
	return f, nil
}

// ignores is true if requests to this URL are forwarded but never recorded, because the URL matches
// an ignore pattern or its path ends with a skipped extension.
func (f recordFilters) ignores(rawURL string) bool {
	for _, re := range f.ignoreURLs {
		if re.MatchString(rawURL) {
			return true
		}
	}
	if len(f.skipExtensions) > 0 {
		path := rawURL
		if u, err := url.Parse(rawURL); err == nil {
			path = u.Path
		}
		path = strings.ToLower(path)
		for _, ext := range f.skipExtensions {
			if strings.HasSuffix(path, ext) {
				return true
			}
		}
	}
	return false
}

// skips is true if a response is forwarded but not recorded, because of its status or content type.
func (f recordFilters) skips(resp *cassette.Response) bool {
	if f.skipStatus.Contains(resp.Status) {
		return true
	}
	contentType := strings.ToLower(resp.Headers.Get("Content-Type"))
	if contentType == "" {
		return false
	}
	for _, pattern := range f.skipContentTypes {
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
			if strings.HasPrefix(contentType, prefix+"/") {
				return true
			}
		} else if strings.Contains(contentType, pattern) {
			return true
		}
	}
	return false
}

// redact returns a copy of the headers in which every filtered header has its values replaced.
func (f recordFilters) redact(h http.Header) http.Header {
	ret := h.Clone()
	if ret == nil {
		ret = http.Header{}
	}
	for _, name := range f.filterHeaders {
		if values, ok := ret[name]; ok {
			redacted := make([]string, len(values))
			for i := range redacted {
				redacted[i] = cassette.FilteredValue
			}
			ret[name] = redacted
		}
	}
	return ret
}

func (f recordFilters) redactRequest(req cassette.Request) *cassette.Request {
	ret := req
	ret.Headers = f.redact(req.Headers)
	return &ret
}

func (f recordFilters) redactResponse(resp *cassette.Response) *cassette.Response {
	ret := *resp
	ret.Headers = f.redact(resp.Headers)
	return &ret
}

// endToEndHeaders returns a copy of the headers without hop-by-hop headers, including any named in
// the Connection header.
func endToEndHeaders(h http.Header) http.Header {
	ret := h.Clone()
	if ret == nil {
		return http.Header{}
	}
	for _, connHeader := range ret.Values("Connection") {
		for _, name := range strings.Split(connHeader, ",") {
			ret.Del(strings.TrimSpace(name))
		}
	}
	for _, name := range hopByHopHeaders {
		ret.Del(name)
	}
	return ret
}
