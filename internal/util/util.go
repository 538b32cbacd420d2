package util

import (
	"encoding/json"
	"fmt"
	"net/url"
)

type errorJSON struct {
	Message string `json:"message"`
}

// ErrorJSONMsg returns a json-encoded error message
func ErrorJSONMsg(msg string) (j []byte) {
	j, _ = json.Marshal(errorJSON{Message: msg})
	return
}

// ErrorJSONMsgf returns a json-encoded error message using the printf formatter
func ErrorJSONMsgf(fmtStr string, args ...interface{}) []byte {
	return ErrorJSONMsg(fmt.Sprintf(fmtStr, args...))
}

// RedactURL parses a URL string and replaces the password, if any, with xxxxx. Strings that do not
// parse as URLs are returned unchanged.
func RedactURL(inputURL string) string {
	if parsed, err := url.Parse(inputURL); err == nil && parsed.User != nil {
		if _, hasPW := parsed.User.Password(); hasPW {
			return parsed.Redacted()
		}
	}
	return inputURL
}
