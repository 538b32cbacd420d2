package config

import (
	"os"

	ct "github.com/launchdarkly/go-configtypes"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// LoadConfigFromEnvironment sets parameters in a Config struct from environment variables.
//
// The Config parameter should be initialized with default values first. Every variable name is
// prefixed with "MAGNETO_", as declared by the conf tags on each config struct.
func LoadConfigFromEnvironment(c *Config, loggers ldlog.Loggers) error {
	reader := ct.NewVarReaderFromEnvironment()

	reader.ReadStruct(&c.Main, false)
	reader.ReadStruct(&c.Record, false)
	reader.ReadStruct(&c.Replay, false)
	reader.ReadStruct(&c.Upstream, false)

	// The Redis prefix only matters once a Redis URL is known, whether it came from the file or the environment.
	reader.Read("MAGNETO_REDIS_URL", &c.Redis.URL)
	if c.Redis.URL.IsDefined() {
		reader.ReadStruct(&c.Redis, false)
	}

	reader.ReadStruct(&c.Prometheus, false)

	if os.Getenv("MAGNETO_PROMETHEUS_PORT") != "" && !c.Prometheus.Enabled {
		loggers.Warn(warnPrometheusPortWithoutEnabled)
	}

	if !reader.Result().OK() {
		return reader.Result().GetError()
	}

	return ValidateConfig(c, loggers)
}
