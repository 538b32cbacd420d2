package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	ct "github.com/launchdarkly/go-configtypes"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

const warnPrometheusPortWithoutEnabled = "MAGNETO_PROMETHEUS_PORT is set but Prometheus is not enabled; the port will be ignored"

var (
	errAdminPortSameAsProxyPort      = errors.New("admin port must be different from the proxy port")
	errPrometheusPortSameAsProxyPort = errors.New("Prometheus port must be different from the proxy and admin ports") //nolint:stylecheck
	errTargetURLWithPath             = errors.New("target URL must not contain a query string or fragment")
	errCassetteDirWithRedis          = errors.New("cassette directory and Redis URL cannot both be set; choose one store")
)

func errBadIgnoreURLPattern(pattern string, err error) error {
	return fmt.Errorf("invalid ignore-URL pattern %q: %w", pattern, err)
}

func errUnknownRecordPreset(name string) error {
	return fmt.Errorf("unknown recording preset %q", name)
}

func errRedisBadScheme(scheme string) error {
	return fmt.Errorf("Redis URL scheme must be redis or rediss, not %q", scheme) //nolint:stylecheck
}

// ValidateConfig ensures that the configuration does not contain contradictory properties.
//
// This method covers validation rules that can't be enforced on a per-field basis (for instance, a port
// number above 65535, or two listeners sharing a port). It may modify the Config to canonicalize settings,
// such as trimming whitespace from header names.
//
// LoadConfigFromEnvironment and LoadConfigFile both call this method as a last step, and the proxy
// constructor calls it again because application code can build a Config programmatically.
func ValidateConfig(c *Config, loggers ldlog.Loggers) error {
	var result ct.ValidationResult

	validateConfigPorts(&result, c)
	validateConfigTarget(&result, c)
	validateConfigRecord(&result, c)
	validateConfigStore(&result, c, loggers)

	return result.GetError()
}

func validateConfigPorts(result *ct.ValidationResult, c *Config) {
	proxyPort := c.Main.Port.GetOrElse(DefaultPort)
	for _, p := range []struct {
		name string
		port ct.OptIntGreaterThanZero
	}{
		{"Main.Port", c.Main.Port},
		{"Main.AdminPort", c.Main.AdminPort},
		{"Prometheus.Port", c.Prometheus.Port},
	} {
		if p.port.GetOrElse(0) > maxPort {
			result.AddError(ct.ValidationPath{p.name}, errPortOutOfRange)
		}
	}
	adminPort := c.Main.AdminPort.GetOrElse(0)
	if adminPort != 0 && adminPort == proxyPort {
		result.AddError(ct.ValidationPath{"Main.AdminPort"}, errAdminPortSameAsProxyPort)
	}
	if c.Prometheus.Enabled {
		promPort := c.Prometheus.Port.GetOrElse(DefaultPrometheusPort)
		if promPort == proxyPort || promPort == adminPort {
			result.AddError(ct.ValidationPath{"Prometheus.Port"}, errPrometheusPortSameAsProxyPort)
		}
	}
}

func validateConfigTarget(result *ct.ValidationResult, c *Config) {
	if u := c.Main.TargetURL.Get(); u != nil && (u.RawQuery != "" || u.Fragment != "") {
		result.AddError(ct.ValidationPath{"Main.TargetURL"}, errTargetURLWithPath)
	}
}

func validateConfigRecord(result *ct.ValidationResult, c *Config) {
	for _, pattern := range c.Record.IgnoreURL.Values() {
		if _, err := regexp.Compile(pattern); err != nil {
			result.AddError(ct.ValidationPath{"Record.IgnoreURL"}, errBadIgnoreURLPattern(pattern, err))
		}
	}
	c.Record.Preset = trimmedList(c.Record.Preset)
	for _, name := range c.Record.Preset.Values() {
		if _, ok := RecordPresets[name]; !ok {
			result.AddError(ct.ValidationPath{"Record.Preset"}, errUnknownRecordPreset(name))
		}
	}
	c.Record.FilterHeader = trimmedList(c.Record.FilterHeader)
	c.Record.SkipContentType = trimmedList(c.Record.SkipContentType)
	c.Record.SkipExtension = trimmedList(c.Record.SkipExtension)
	c.Replay.IgnoreHeader = trimmedList(c.Replay.IgnoreHeader)
}

func validateConfigStore(result *ct.ValidationResult, c *Config, loggers ldlog.Loggers) {
	u := c.Redis.URL.Get()
	if u == nil {
		return
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		result.AddError(ct.ValidationPath{"Redis.URL"}, errRedisBadScheme(u.Scheme))
	}
	if c.Main.CassetteDir != "" {
		result.AddError(nil, errCassetteDirWithRedis)
	}
	if c.Redis.Prefix == "" {
		loggers.Debugf("Using default Redis prefix %q", DefaultRedisPrefix)
		c.Redis.Prefix = DefaultRedisPrefix
	}
}

func trimmedList(list ct.OptStringList) ct.OptStringList {
	values := list.Values()
	if len(values) == 0 {
		return list
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return ct.NewOptStringList(out)
}
