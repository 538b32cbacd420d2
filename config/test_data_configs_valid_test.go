package config

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	ct "github.com/launchdarkly/go-configtypes"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
)

type testDataValidConfig struct {
	name        string
	makeConfig  func(c *Config)
	envVars     map[string]string
	fileContent string
	warnings    []string
}

func (tdc testDataValidConfig) assertResult(t *testing.T, actualConfig Config, mockLog *ldlogtest.MockLog) {
	var expectedConfig Config
	tdc.makeConfig(&expectedConfig)
	assert.Equal(t, expectedConfig, actualConfig)
	for _, message := range tdc.warnings {
		mockLog.AssertMessageMatch(t, true, ldlog.Warn, regexp.QuoteMeta(message))
	}
}

func mustOptIntGreaterThanZero(n int) ct.OptIntGreaterThanZero {
	o, err := ct.NewOptIntGreaterThanZero(n)
	if err != nil {
		panic(err)
	}
	return o
}

func newOptURLAbsoluteMustBeValid(urlString string) ct.OptURLAbsolute {
	o, err := ct.NewOptURLAbsoluteFromString(urlString)
	if err != nil {
		panic(err)
	}
	return o
}

func mustOptBase2Bytes(s string) ct.OptBase2Bytes {
	var o ct.OptBase2Bytes
	if err := o.UnmarshalText([]byte(s)); err != nil {
		panic(err)
	}
	return o
}

func makeValidConfigs() []testDataValidConfig {
	return []testDataValidConfig{
		makeValidConfigEmpty(),
		makeValidConfigAllMainProperties(),
		makeValidConfigRecordFilters(),
		makeValidConfigReplay(),
		makeValidConfigUpstream(),
		makeValidConfigRedisMinimal(),
		makeValidConfigRedisAll(),
		makeValidConfigPrometheusMinimal(),
		makeValidConfigPrometheusAll(),
		makeValidConfigPrometheusPortWithoutEnabled(),
	}
}

func makeValidConfigEmpty() testDataValidConfig {
	c := testDataValidConfig{name: "no properties"}
	c.makeConfig = func(c *Config) {}
	c.envVars = map[string]string{}
	c.fileContent = `
[Main]
`
	return c
}

func makeValidConfigAllMainProperties() testDataValidConfig {
	c := testDataValidConfig{name: "all main properties"}
	c.makeConfig = func(c *Config) {
		c.Main = MainConfig{
			CassetteDir:  "./tapes",
			Mode:         NewOptMode(ModeReplayStrict),
			Port:         mustOptIntGreaterThanZero(9000),
			Format:       NewOptCassetteFormat(FormatJSONGzip),
			TargetURL:    newOptURLAbsoluteMustBeValid("http://api.example.com"),
			AdminPort:    mustOptIntGreaterThanZero(9001),
			DrainTimeout: ct.NewOptDuration(5 * time.Second),
			LogLevel:     NewOptLogLevel(ldlog.Warn),
		}
	}
	c.envVars = map[string]string{
		"MAGNETO_CASSETTE_DIR":  "./tapes",
		"MAGNETO_MODE":          "replay-strict",
		"MAGNETO_PORT":          "9000",
		"MAGNETO_FORMAT":        "json.gz",
		"MAGNETO_TARGET_URL":    "http://api.example.com",
		"MAGNETO_ADMIN_PORT":    "9001",
		"MAGNETO_DRAIN_TIMEOUT": "5s",
		"MAGNETO_LOG_LEVEL":     "warn",
	}
	c.fileContent = `
[Main]
CassetteDir = ./tapes
Mode = replay_strict
Port = 9000
Format = json.gz
TargetURL = http://api.example.com
AdminPort = 9001
DrainTimeout = 5s
LogLevel = warn
`
	return c
}

func makeValidConfigRecordFilters() testDataValidConfig {
	c := testDataValidConfig{name: "record filters"}
	c.makeConfig = func(c *Config) {
		c.Record = RecordConfig{
			IgnoreURL:       ct.NewOptStringList([]string{"/health$", "^https://telemetry"}),
			FilterHeader:    ct.NewOptStringList([]string{"Authorization", "X-Api-Key"}),
			SkipStatus:      StatusCodeList{500, 503},
			SkipContentType: ct.NewOptStringList([]string{"image/*", "text/css"}),
			SkipExtension:   ct.NewOptStringList([]string{".js", "map"}),
			Preset:          ct.NewOptStringList([]string{"fonts"}),
			MaxBodySize:     mustOptBase2Bytes("1MB"),
		}
	}
	c.envVars = map[string]string{
		"MAGNETO_RECORD_IGNORE_URL":        "/health$,^https://telemetry",
		"MAGNETO_RECORD_FILTER_HEADER":     "Authorization,X-Api-Key",
		"MAGNETO_RECORD_SKIP_STATUS":       "500,503",
		"MAGNETO_RECORD_SKIP_CONTENT_TYPE": "image/*,text/css",
		"MAGNETO_RECORD_SKIP_EXTENSION":    ".js,map",
		"MAGNETO_RECORD_PRESET":            "fonts",
		"MAGNETO_MAX_BODY_SIZE":            "1MB",
	}
	c.fileContent = `
[Record]
IgnoreURL = /health$
IgnoreURL = ^https://telemetry
FilterHeader = Authorization
FilterHeader = X-Api-Key
SkipStatus = 500,503
SkipContentType = image/*
SkipContentType = text/css
SkipExtension = .js
SkipExtension = map
Preset = fonts
MaxBodySize = 1MB
`
	return c
}

func makeValidConfigReplay() testDataValidConfig {
	c := testDataValidConfig{name: "replay options"}
	c.makeConfig = func(c *Config) {
		c.Replay = ReplayConfig{
			IgnoreHeader:    ct.NewOptStringList([]string{"Date", "X-Request-Id"}),
			SimulateLatency: true,
			WatchCassette:   true,
		}
	}
	c.envVars = map[string]string{
		"MAGNETO_REPLAY_IGNORE_HEADER":    "Date,X-Request-Id",
		"MAGNETO_REPLAY_SIMULATE_LATENCY": "true",
		"MAGNETO_REPLAY_WATCH_CASSETTE":   "1",
	}
	c.fileContent = `
[Replay]
IgnoreHeader = Date
IgnoreHeader = X-Request-Id
SimulateLatency = true
WatchCassette = 1
`
	return c
}

func makeValidConfigUpstream() testDataValidConfig {
	c := testDataValidConfig{name: "upstream"}
	c.makeConfig = func(c *Config) {
		c.Upstream = UpstreamConfig{
			ProxyURL:           newOptURLAbsoluteMustBeValid("http://corp-proxy:3128"),
			CACertFiles:        ct.NewOptStringList([]string{"ca1.pem", "ca2.pem"}),
			InsecureSkipVerify: true,
			Timeout:            ct.NewOptDuration(2 * time.Minute),
		}
	}
	c.envVars = map[string]string{
		"MAGNETO_UPSTREAM_PROXY_URL":            "http://corp-proxy:3128",
		"MAGNETO_UPSTREAM_CA_CERT_FILES":        "ca1.pem,ca2.pem",
		"MAGNETO_UPSTREAM_INSECURE_SKIP_VERIFY": "true",
		"MAGNETO_UPSTREAM_TIMEOUT":              "2m",
	}
	c.fileContent = `
[Upstream]
ProxyURL = http://corp-proxy:3128
CACertFiles = ca1.pem
CACertFiles = ca2.pem
InsecureSkipVerify = true
Timeout = 2m
`
	return c
}

func makeValidConfigRedisMinimal() testDataValidConfig {
	c := testDataValidConfig{name: "Redis - minimal parameters"}
	c.makeConfig = func(c *Config) {
		c.Redis = RedisConfig{
			URL:    newOptURLAbsoluteMustBeValid("redis://localhost:6379"),
			Prefix: DefaultRedisPrefix,
		}
	}
	c.envVars = map[string]string{
		"MAGNETO_REDIS_URL": "redis://localhost:6379",
	}
	c.fileContent = `
[Redis]
URL = redis://localhost:6379
`
	return c
}

func makeValidConfigRedisAll() testDataValidConfig {
	c := testDataValidConfig{name: "Redis - all parameters"}
	c.makeConfig = func(c *Config) {
		c.Redis = RedisConfig{
			URL:    newOptURLAbsoluteMustBeValid("rediss://redishost:6380/2"),
			Prefix: "tapes",
		}
	}
	c.envVars = map[string]string{
		"MAGNETO_REDIS_URL":    "rediss://redishost:6380/2",
		"MAGNETO_REDIS_PREFIX": "tapes",
	}
	c.fileContent = `
[Redis]
URL = rediss://redishost:6380/2
Prefix = tapes
`
	return c
}

func makeValidConfigPrometheusMinimal() testDataValidConfig {
	c := testDataValidConfig{name: "Prometheus - minimal parameters"}
	c.makeConfig = func(c *Config) {
		c.Prometheus = PrometheusConfig{
			Enabled: true,
		}
	}
	c.envVars = map[string]string{
		"MAGNETO_PROMETHEUS_ENABLED": "1",
	}
	c.fileContent = `
[Prometheus]
Enabled = true
`
	return c
}

func makeValidConfigPrometheusAll() testDataValidConfig {
	c := testDataValidConfig{name: "Prometheus - all parameters"}
	c.makeConfig = func(c *Config) {
		c.Prometheus = PrometheusConfig{
			Enabled: true,
			Prefix:  "pre",
			Port:    mustOptIntGreaterThanZero(8333),
		}
	}
	c.envVars = map[string]string{
		"MAGNETO_PROMETHEUS_ENABLED": "1",
		"MAGNETO_PROMETHEUS_PREFIX":  "pre",
		"MAGNETO_PROMETHEUS_PORT":    "8333",
	}
	c.fileContent = `
[Prometheus]
Enabled = true
Prefix = "pre"
Port = 8333
`
	return c
}

func makeValidConfigPrometheusPortWithoutEnabled() testDataValidConfig {
	c := testDataValidConfig{name: "Prometheus - port without enabled"}
	c.makeConfig = func(c *Config) {
		c.Prometheus = PrometheusConfig{
			Port: mustOptIntGreaterThanZero(8333),
		}
	}
	c.envVars = map[string]string{
		"MAGNETO_PROMETHEUS_PORT": "8333",
	}
	c.warnings = []string{warnPrometheusPortWithoutEnabled}
	return c
}
