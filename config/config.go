package config

import (
	"time"

	ct "github.com/launchdarkly/go-configtypes"
)

const (
	// DefaultPort is the port the proxy listens on if Main.Port is not specified.
	DefaultPort = 8888

	// DefaultCassetteDir is the cassette directory used if Main.CassetteDir is not specified.
	DefaultCassetteDir = "cassettes"

	// DefaultDrainTimeout is the default value for Main.DrainTimeout.
	DefaultDrainTimeout = time.Second * 10

	// DefaultUpstreamTimeout is the default value for Upstream.Timeout.
	DefaultUpstreamTimeout = time.Second * 30

	// DefaultRedisPrefix is the default key prefix for cassettes kept in Redis.
	DefaultRedisPrefix = "magneto"

	// DefaultPrometheusPort is the default port for the Prometheus metrics listener.
	DefaultPrometheusPort = 8889

	maxPort = 65535
)

// Config describes the configuration for a proxy instance.
//
// If you are incorporating the proxy into your own code and configuring it programmatically, start
// from a zero Config and set only the fields you need; every field has a usable default.
type Config struct {
	Main       MainConfig
	Record     RecordConfig
	Replay     ReplayConfig
	Upstream   UpstreamConfig
	Redis      RedisConfig
	Prometheus PrometheusConfig
}

// MainConfig contains global configuration options.
//
// This corresponds to the [Main] section in the configuration file.
type MainConfig struct {
	CassetteDir  string                   `conf:"MAGNETO_CASSETTE_DIR"`
	Mode         OptMode                  `conf:"MAGNETO_MODE"`
	Port         ct.OptIntGreaterThanZero `conf:"MAGNETO_PORT"`
	Format       OptCassetteFormat        `conf:"MAGNETO_FORMAT"`
	TargetURL    ct.OptURLAbsolute        `conf:"MAGNETO_TARGET_URL"`
	AdminPort    ct.OptIntGreaterThanZero `conf:"MAGNETO_ADMIN_PORT"`
	DrainTimeout ct.OptDuration           `conf:"MAGNETO_DRAIN_TIMEOUT"`
	LogLevel     OptLogLevel              `conf:"MAGNETO_LOG_LEVEL"`
}

// RecordConfig controls which live exchanges end up in a cassette and how they are sanitized.
//
// This corresponds to the [Record] section in the configuration file.
type RecordConfig struct {
	IgnoreURL       ct.OptStringList `conf:"MAGNETO_RECORD_IGNORE_URL"`
	FilterHeader    ct.OptStringList `conf:"MAGNETO_RECORD_FILTER_HEADER"`
	SkipStatus      StatusCodeList   `conf:"MAGNETO_RECORD_SKIP_STATUS"`
	SkipContentType ct.OptStringList `conf:"MAGNETO_RECORD_SKIP_CONTENT_TYPE"`
	SkipExtension   ct.OptStringList `conf:"MAGNETO_RECORD_SKIP_EXTENSION"`
	Preset          ct.OptStringList `conf:"MAGNETO_RECORD_PRESET"`
	MaxBodySize     ct.OptBase2Bytes `conf:"MAGNETO_MAX_BODY_SIZE"`
}

// ReplayConfig contains options for the replay-family modes.
//
// This corresponds to the [Replay] section in the configuration file.
type ReplayConfig struct {
	IgnoreHeader    ct.OptStringList `conf:"MAGNETO_REPLAY_IGNORE_HEADER"`
	SimulateLatency bool             `conf:"MAGNETO_REPLAY_SIMULATE_LATENCY"`
	WatchCassette   bool             `conf:"MAGNETO_REPLAY_WATCH_CASSETTE"`
}

// UpstreamConfig configures the HTTP client used to forward live requests.
//
// This corresponds to the [Upstream] section in the configuration file.
type UpstreamConfig struct {
	ProxyURL           ct.OptURLAbsolute `conf:"MAGNETO_UPSTREAM_PROXY_URL"`
	CACertFiles        ct.OptStringList  `conf:"MAGNETO_UPSTREAM_CA_CERT_FILES"`
	InsecureSkipVerify bool              `conf:"MAGNETO_UPSTREAM_INSECURE_SKIP_VERIFY"`
	Timeout            ct.OptDuration    `conf:"MAGNETO_UPSTREAM_TIMEOUT"`
}

// RedisConfig configures the optional Redis cassette store, which is used instead of the cassette
// directory if URL is set.
//
// This corresponds to the [Redis] section in the configuration file.
type RedisConfig struct {
	URL    ct.OptURLAbsolute `conf:"MAGNETO_REDIS_URL"`
	Prefix string            `conf:"MAGNETO_REDIS_PREFIX"`
}

// PrometheusConfig configures the optional Prometheus metrics exporter.
//
// This corresponds to the [Prometheus] section in the configuration file.
type PrometheusConfig struct {
	Enabled bool                     `conf:"MAGNETO_PROMETHEUS_ENABLED"`
	Port    ct.OptIntGreaterThanZero `conf:"MAGNETO_PROMETHEUS_PORT"`
	Prefix  string                   `conf:"MAGNETO_PROMETHEUS_PREFIX"`
}
