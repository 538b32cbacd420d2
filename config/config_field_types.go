package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// Mode is the intended behavior of the proxy for the next session that is started.
//
// This is a closed set of values; strings coming from configuration files, environment variables or
// other languages are converted with ParseMode at the boundary.
type Mode int

const (
	// ModeAuto replays the named cassette if it exists, and records it otherwise.
	ModeAuto Mode = iota
	// ModeRecord forwards every request live and records it.
	ModeRecord
	// ModeReplay serves every request from the cassette, matching on method and URL.
	ModeReplay
	// ModeReplayStrict is like ModeReplay, but headers and body must also match exactly.
	ModeReplayStrict
	// ModePassThrough forwards every request live without recording anything.
	ModePassThrough
	// ModeHybrid serves from the cassette when possible and records whatever is missing.
	ModeHybrid
)

var modeNames = map[Mode]string{ //nolint:gochecknoglobals
	ModeAuto:         "auto",
	ModeRecord:       "record",
	ModeReplay:       "replay",
	ModeReplayStrict: "replay-strict",
	ModePassThrough:  "passthrough",
	ModeHybrid:       "hybrid",
}

// AllModes returns every defined Mode in declaration order.
func AllModes() []Mode {
	return []Mode{ModeAuto, ModeRecord, ModeReplay, ModeReplayStrict, ModePassThrough, ModeHybrid}
}

// String returns the canonical lowercase name of the mode.
func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode converts a mode name to a Mode. Matching is case-insensitive, and "-", "_" and spaces
// are ignored, so "Replay_Strict", "replay-strict" and "REPLAYSTRICT" are all equivalent.
func ParseMode(name string) (Mode, error) {
	normalized := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(name))
	for mode, modeName := range modeNames {
		if strings.ReplaceAll(modeName, "-", "") == normalized {
			return mode, nil
		}
	}
	return ModeAuto, errBadMode(name)
}

// OptMode represents an optional Mode parameter.
//
// The zero value OptMode{} is valid and undefined (IsDefined() is false).
type OptMode struct {
	mode    Mode
	defined bool
}

// NewOptMode creates an OptMode that wraps the given value.
func NewOptMode(mode Mode) OptMode {
	return OptMode{mode: mode, defined: true}
}

// NewOptModeFromString creates an OptMode from a string that must either be a valid mode name or an
// empty string.
func NewOptModeFromString(name string) (OptMode, error) {
	if name == "" {
		return OptMode{}, nil
	}
	mode, err := ParseMode(name)
	if err != nil {
		return OptMode{}, err
	}
	return NewOptMode(mode), nil
}

// IsDefined returns true if the instance contains a value.
func (o OptMode) IsDefined() bool {
	return o.defined
}

// GetOrElse returns the wrapped value, or the alternative value if there is no value.
func (o OptMode) GetOrElse(orElseValue Mode) Mode {
	if !o.defined {
		return orElseValue
	}
	return o.mode
}

// UnmarshalText attempts to parse the value from a byte string, using the same logic as
// NewOptModeFromString.
func (o *OptMode) UnmarshalText(data []byte) error {
	opt, err := NewOptModeFromString(string(data))
	if err == nil {
		*o = opt
	}
	return err
}

// CassetteFormat identifies the encoding used for cassette files.
type CassetteFormat string

const (
	// FormatJSON is plain JSON with the ".json" extension.
	FormatJSON CassetteFormat = "json"
	// FormatJSONGzip is the same JSON document, gzip-compressed, with the ".json.gz" extension.
	FormatJSONGzip CassetteFormat = "json.gz"
)

// Extension returns the file extension, including the leading dot, used for this format.
func (f CassetteFormat) Extension() string {
	return "." + string(f)
}

// OptCassetteFormat represents an optional CassetteFormat parameter.
//
// The zero value OptCassetteFormat{} is valid and undefined (IsDefined() is false).
type OptCassetteFormat struct {
	format CassetteFormat
}

// NewOptCassetteFormat creates an OptCassetteFormat that wraps the given value.
func NewOptCassetteFormat(format CassetteFormat) OptCassetteFormat {
	return OptCassetteFormat{format: format}
}

// NewOptCassetteFormatFromString creates an OptCassetteFormat from "json", "json.gz" (or "gzip"), or
// an empty string.
func NewOptCassetteFormatFromString(name string) (OptCassetteFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "":
		return OptCassetteFormat{}, nil
	case string(FormatJSON):
		return NewOptCassetteFormat(FormatJSON), nil
	case string(FormatJSONGzip), "gzip":
		return NewOptCassetteFormat(FormatJSONGzip), nil
	default:
		return OptCassetteFormat{}, errBadCassetteFormat(name)
	}
}

// IsDefined returns true if the instance contains a value.
func (o OptCassetteFormat) IsDefined() bool {
	return o.format != ""
}

// GetOrElse returns the wrapped value, or the alternative value if there is no value.
func (o OptCassetteFormat) GetOrElse(orElseValue CassetteFormat) CassetteFormat {
	if o.format == "" {
		return orElseValue
	}
	return o.format
}

// UnmarshalText attempts to parse the value from a byte string, using the same logic as
// NewOptCassetteFormatFromString.
func (o *OptCassetteFormat) UnmarshalText(data []byte) error {
	opt, err := NewOptCassetteFormatFromString(string(data))
	if err == nil {
		*o = opt
	}
	return err
}

// StatusCodeList is a comma-separated list of HTTP status codes.
type StatusCodeList []int

// Contains returns true if the status code is in the list.
func (l StatusCodeList) Contains(status int) bool {
	for _, s := range l {
		if s == status {
			return true
		}
	}
	return false
}

// UnmarshalText parses a comma-separated list of status codes in the range 100-599.
func (l *StatusCodeList) UnmarshalText(data []byte) error {
	var codes StatusCodeList
	for _, field := range strings.Split(string(data), ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil || n < 100 || n > 599 {
			return errBadStatusCode(field)
		}
		codes = append(codes, n)
	}
	*l = codes
	return nil
}

// OptLogLevel represents an optional log level parameter. It must match one of the level names "debug",
// "info", "warn", or "error" (case-insensitive).
//
// The zero value OptLogLevel{} is valid and undefined (IsDefined() is false).
type OptLogLevel struct {
	level ldlog.LogLevel
}

// NewOptLogLevel creates an OptLogLevel that wraps the given value.
func NewOptLogLevel(level ldlog.LogLevel) OptLogLevel {
	return OptLogLevel{level: level}
}

// NewOptLogLevelFromString creates an OptLogLevel from a string that must either be a valid log level
// name or an empty string.
func NewOptLogLevelFromString(levelName string) (OptLogLevel, error) {
	if levelName == "" {
		return OptLogLevel{}, nil
	}
	for _, level := range []ldlog.LogLevel{ldlog.Debug, ldlog.Info, ldlog.Warn, ldlog.Error, ldlog.None} {
		if strings.EqualFold(level.Name(), levelName) {
			return NewOptLogLevel(level), nil
		}
	}
	return OptLogLevel{}, errBadLogLevel(levelName)
}

// IsDefined returns true if the instance contains a value.
func (o OptLogLevel) IsDefined() bool {
	return o.level != 0
}

// GetOrElse returns the wrapped value, or the alternative value if there is no value.
func (o OptLogLevel) GetOrElse(orElseValue ldlog.LogLevel) ldlog.LogLevel {
	if o.level == 0 {
		return orElseValue
	}
	return o.level
}

// UnmarshalText attempts to parse the value from a byte string, using the same logic as
// NewOptLogLevelFromString.
func (o *OptLogLevel) UnmarshalText(data []byte) error {
	opt, err := NewOptLogLevelFromString(string(data))
	if err == nil {
		*o = opt
	}
	return err
}

func errBadLogLevel(s string) error {
	return fmt.Errorf("%q is not a valid log level", s)
}

func errBadMode(s string) error {
	return fmt.Errorf("%q is not a valid mode", s)
}

func errBadCassetteFormat(s string) error {
	return fmt.Errorf("%q is not a valid cassette format", s)
}

func errBadStatusCode(s string) error {
	return fmt.Errorf("%q is not a valid HTTP status code", s)
}

var errPortOutOfRange = errors.New("port must be between 1 and 65535") //nolint:gochecknoglobals
