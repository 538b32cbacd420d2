package cassette

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/magneto-serge/magneto/config"
	"github.com/magneto-serge/magneto/internal/cookiejar"
	"github.com/magneto-serge/magneto/internal/util"

	ct "github.com/launchdarkly/go-configtypes"
	"github.com/launchdarkly/go-jsonstream/v3/jreader"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

var gzipMagic = []byte{0x1f, 0x8b} //nolint:gochecknoglobals

// Encode serializes a cassette to JSON.
func Encode(c *Cassette) ([]byte, error) {
	w := jwriter.NewWriter()
	writeCassette(&w, c)
	if err := w.Error(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// EncodeFormat serializes a cassette in the given file format.
func EncodeFormat(c *Cassette, format config.CassetteFormat) ([]byte, error) {
	data, err := Encode(c)
	if err != nil || format != config.FormatJSONGzip {
		return data, err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a cassette from JSON, or from gzip-compressed JSON.
func Decode(data []byte) (*Cassette, error) {
	if bytes.HasPrefix(data, gzipMagic) {
		zr, err := util.NewReader(io.NopCloser(bytes.NewReader(data)), true, ct.OptBase2Bytes{})
		if err != nil {
			return nil, err
		}
		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, err
		}
	}
	r := jreader.NewReader(data)
	c := &Cassette{}
	readCassette(&r, c)
	if err := r.Error(); err != nil {
		return nil, err
	}
	if err := r.RequireEOF(); err != nil {
		return nil, err
	}
	if c.Version != "1" && !strings.HasPrefix(c.Version, "1.") {
		return nil, errUnsupportedVersion(c.Version)
	}
	for n, i := range c.Interactions {
		if err := validateInteraction(i); err != nil {
			return nil, errInteraction(n, err)
		}
	}
	return c, nil
}

func validateInteraction(i Interaction) error {
	var ok bool
	switch i.Kind {
	case KindHTTP:
		ok = i.Request != nil && i.Response != nil
	case KindHTTPError:
		ok = i.Request != nil && i.Error != nil
	case KindWebSocket:
		ok = i.WebSocket != nil && i.WebSocket.URL != ""
	default:
		return errUnknownKind(string(i.Kind))
	}
	if !ok {
		return errMissingFields
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func writeCassette(w *jwriter.Writer, c *Cassette) {
	obj := w.Object()
	obj.Name("version").String(c.Version)
	obj.Name("name").String(c.Name)
	obj.Name("recorded_at").String(formatTime(c.RecordedAt))
	arr := obj.Name("interactions").Array()
	for _, i := range c.Interactions {
		writeInteraction(w, i)
	}
	arr.End()
	cookiesArr := obj.Name("cookies").Array()
	for _, ck := range c.Cookies {
		writeCookie(w, ck)
	}
	cookiesArr.End()
	obj.End()
}

func writeInteraction(w *jwriter.Writer, i Interaction) {
	obj := w.Object()
	obj.Name("type").String(string(i.Kind))
	switch i.Kind {
	case KindHTTP:
		writeRequest(obj.Name("request"), i.Request)
		writeResponse(obj.Name("response"), i.Response)
	case KindHTTPError:
		writeRequest(obj.Name("request"), i.Request)
		writeNetworkError(obj.Name("error"), i.Error)
	case KindWebSocket:
		obj.Name("url").String(i.WebSocket.URL)
		msgs := obj.Name("messages").Array()
		for _, m := range i.WebSocket.Messages {
			writeMessage(w, m)
		}
		msgs.End()
		if cf := i.WebSocket.CloseFrame; cf != nil {
			cfObj := obj.Name("close_frame").Object()
			cfObj.Name("code").Int(cf.Code)
			cfObj.Name("reason").String(cf.Reason)
			cfObj.End()
		} else {
			obj.Name("close_frame").Null()
		}
	}
	obj.Name("recorded_at").String(formatTime(i.RecordedAt))
	if ms, ok := i.ResponseTimeMS.Get(); ok {
		obj.Name("response_time_ms").Int(ms)
	}
	obj.End()
}

func writeRequest(w *jwriter.Writer, r *Request) {
	obj := w.Object()
	obj.Name("method").String(r.Method)
	obj.Name("url").String(r.URL)
	writeHeaders(obj.Name("headers"), r.Headers)
	writeBytes(obj.Name("body"), r.Body)
	obj.End()
}

func writeResponse(w *jwriter.Writer, r *Response) {
	obj := w.Object()
	obj.Name("status").Int(r.Status)
	writeHeaders(obj.Name("headers"), r.Headers)
	writeBytes(obj.Name("body"), r.Body)
	obj.End()
}

func writeNetworkError(w *jwriter.Writer, e *NetworkError) {
	obj := w.Object()
	obj.Name("error_type").String(string(e.Type))
	obj.Name("message").String(e.Message)
	if ms, ok := e.TimeoutMS.Get(); ok {
		obj.Name("timeout_ms").Int(ms)
	}
	if n, ok := e.RedirectCount.Get(); ok {
		obj.Name("redirect_count").Int(n)
	}
	obj.End()
}

func writeMessage(w *jwriter.Writer, m WebSocketMessage) {
	obj := w.Object()
	obj.Name("direction").String(string(m.Direction))
	obj.Name("timestamp_ms").Int(int(m.TimestampMS))
	obj.Name("msg_type").String(string(m.Type))
	if m.Type == MessageText && utf8.Valid(m.Data) {
		obj.Name("data").String(string(m.Data))
	} else {
		writeBytes(obj.Name("data"), nonNil(m.Data))
	}
	obj.End()
}

// writeHeaders writes a single-valued header as a string and a multi-valued one as an array, with
// names sorted so that re-saving an unchanged cassette produces identical bytes.
func writeHeaders(w *jwriter.Writer, h http.Header) {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	obj := w.Object()
	for _, name := range names {
		values := h[name]
		if len(values) == 1 {
			obj.Name(name).String(values[0])
			continue
		}
		arr := obj.Name(name).Array()
		for _, v := range values {
			w.String(v)
		}
		arr.End()
	}
	obj.End()
}

func writeBytes(w *jwriter.Writer, data []byte) {
	if data == nil {
		w.Null()
		return
	}
	arr := w.Array()
	for _, b := range data {
		w.Int(int(b))
	}
	arr.End()
}

func nonNil(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	return data
}

func writeCookie(w *jwriter.Writer, c cookiejar.Cookie) {
	obj := w.Object()
	obj.Name("name").String(c.Name)
	obj.Name("value").String(c.Value)
	obj.Name("domain").StringOrNull(c.Domain != "", c.Domain)
	obj.Name("path").StringOrNull(c.Path != "", c.Path)
	if c.Expires.IsZero() {
		obj.Name("expires").Null()
	} else {
		obj.Name("expires").String(formatTime(c.Expires))
	}
	maxAge, hasMaxAge := c.MaxAge.Get()
	obj.Name("max_age").IntOrNull(hasMaxAge, maxAge)
	obj.Name("secure").Bool(c.Secure)
	obj.Name("http_only").Bool(c.HTTPOnly)
	obj.Name("same_site").StringOrNull(c.SameSite != "", string(c.SameSite))
	obj.Name("created_at").String(formatTime(c.CreatedAt))
	obj.End()
}

func readTime(r *jreader.Reader) time.Time {
	s := r.String()
	if r.Error() != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		r.AddError(errBadTimestamp(s, err))
		return time.Time{}
	}
	return t.UTC()
}

func readCassette(r *jreader.Reader, c *Cassette) {
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "version":
			c.Version = r.String()
		case "name":
			c.Name = r.String()
		case "recorded_at":
			c.RecordedAt = readTime(r)
		case "interactions":
			for arr := r.Array(); arr.Next(); {
				c.Interactions = append(c.Interactions, readInteraction(r))
			}
		case "cookies":
			for arr := r.ArrayOrNull(); arr.Next(); {
				c.Cookies = append(c.Cookies, readCookie(r))
			}
		default:
			_ = r.SkipValue()
		}
	}
}

func readInteraction(r *jreader.Reader) Interaction {
	var i Interaction
	var ws WebSocketSession
	isWebSocket := false
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "type":
			i.Kind = Kind(r.String())
		case "request":
			req := readRequest(r)
			i.Request = &req
		case "response":
			resp := readResponse(r)
			i.Response = &resp
		case "error":
			ne := readNetworkError(r)
			i.Error = &ne
		case "url":
			ws.URL = r.String()
			isWebSocket = true
		case "messages":
			for arr := r.Array(); arr.Next(); {
				ws.Messages = append(ws.Messages, readMessage(r))
			}
			isWebSocket = true
		case "close_frame":
			for cfObj := r.ObjectOrNull(); cfObj.Next(); {
				if ws.CloseFrame == nil {
					ws.CloseFrame = &CloseFrame{}
				}
				switch string(cfObj.Name()) {
				case "code":
					ws.CloseFrame.Code = r.Int()
				case "reason":
					ws.CloseFrame.Reason = r.String()
				default:
					_ = r.SkipValue()
				}
			}
		case "recorded_at":
			i.RecordedAt = readTime(r)
		case "response_time_ms":
			if ms, ok := r.IntOrNull(); ok {
				i.ResponseTimeMS = ldvalue.NewOptionalInt(ms)
			}
		default:
			_ = r.SkipValue()
		}
	}
	if isWebSocket || i.Kind == KindWebSocket {
		i.WebSocket = &ws
	}
	return i
}

func readRequest(r *jreader.Reader) Request {
	var req Request
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "method":
			req.Method = r.String()
		case "url":
			req.URL = r.String()
		case "headers":
			req.Headers = readHeaders(r)
		case "body":
			req.Body = readBytes(r)
		default:
			_ = r.SkipValue()
		}
	}
	if req.Headers == nil {
		req.Headers = make(http.Header)
	}
	return req
}

func readResponse(r *jreader.Reader) Response {
	var resp Response
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "status":
			resp.Status = r.Int()
		case "headers":
			resp.Headers = readHeaders(r)
		case "body":
			resp.Body = readBytes(r)
		default:
			_ = r.SkipValue()
		}
	}
	if resp.Headers == nil {
		resp.Headers = make(http.Header)
	}
	return resp
}

func readNetworkError(r *jreader.Reader) NetworkError {
	var e NetworkError
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "error_type":
			e.Type = NetworkErrorType(r.String())
		case "message":
			e.Message = r.String()
		case "timeout_ms":
			if ms, ok := r.IntOrNull(); ok {
				e.TimeoutMS = ldvalue.NewOptionalInt(ms)
			}
		case "redirect_count":
			if n, ok := r.IntOrNull(); ok {
				e.RedirectCount = ldvalue.NewOptionalInt(n)
			}
		default:
			_ = r.SkipValue()
		}
	}
	return e
}

func readMessage(r *jreader.Reader) WebSocketMessage {
	var m WebSocketMessage
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "direction":
			m.Direction = Direction(r.String())
		case "timestamp_ms":
			m.TimestampMS = int64(r.Int())
		case "msg_type":
			m.Type = MessageType(r.String())
		case "data":
			v := r.Any()
			switch v.Kind {
			case jreader.StringValue:
				m.Data = []byte(v.String)
			case jreader.ArrayValue:
				m.Data = []byte{}
				for arr := v.Array; arr.Next(); {
					m.Data = append(m.Data, readByte(r))
				}
			case jreader.NullValue:
			default:
				r.AddError(errBadMessageData)
			}
		default:
			_ = r.SkipValue()
		}
	}
	if m.Data == nil && m.Type == MessageText {
		m.Data = []byte{}
	}
	return m
}

func readHeaders(r *jreader.Reader) http.Header {
	h := make(http.Header)
	for obj := r.ObjectOrNull(); obj.Next(); {
		name := string(obj.Name())
		v := r.Any()
		switch v.Kind {
		case jreader.StringValue:
			h.Add(name, v.String)
		case jreader.ArrayValue:
			for arr := v.Array; arr.Next(); {
				h.Add(name, r.String())
			}
		case jreader.NullValue:
		default:
			r.AddError(errBadHeaderValue(name))
		}
	}
	return h
}

func readBytes(r *jreader.Reader) []byte {
	arr := r.ArrayOrNull()
	if !arr.IsDefined() {
		return nil
	}
	data := []byte{}
	for arr.Next() {
		data = append(data, readByte(r))
	}
	return data
}

func readByte(r *jreader.Reader) byte {
	n := r.Int()
	if n < 0 || n > 255 {
		r.AddError(errBadByte(n))
		return 0
	}
	return byte(n)
}

func readCookie(r *jreader.Reader) cookiejar.Cookie {
	var c cookiejar.Cookie
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "name":
			c.Name = r.String()
		case "value":
			c.Value = r.String()
		case "domain":
			c.Domain, _ = r.StringOrNull()
		case "path":
			c.Path, _ = r.StringOrNull()
		case "expires":
			if s, ok := r.StringOrNull(); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					c.Expires = t.UTC()
				} else {
					r.AddError(errBadTimestamp(s, err))
				}
			}
		case "max_age":
			if n, ok := r.IntOrNull(); ok {
				c.MaxAge = ldvalue.NewOptionalInt(n)
			}
		case "secure":
			c.Secure = r.Bool()
		case "http_only":
			c.HTTPOnly = r.Bool()
		case "same_site":
			if s, ok := r.StringOrNull(); ok {
				if ss, err := cookiejar.ParseSameSite(s); err == nil {
					c.SameSite = ss
				}
			}
		case "created_at":
			c.CreatedAt = readTime(r)
		default:
			_ = r.SkipValue()
		}
	}
	return c
}
