package metrics

import (
	"github.com/magneto-serge/magneto/config"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

type exporterType interface {
	getName() string
	createExporterIfEnabled(config.PrometheusConfig, ldlog.Loggers) (exporter, error)
}

type exporter interface {
	register() error
	close() error
}

func allExporterTypes() []exporterType {
	return []exporterType{prometheusExporterType}
}

func registerExporters(
	exporterTypes []exporterType,
	c config.PrometheusConfig,
	loggers ldlog.Loggers,
) (map[exporterType]exporter, error) {
	registered := make(map[exporterType]exporter)
	for _, t := range exporterTypes {
		e, err := t.createExporterIfEnabled(c, loggers)
		if err != nil {
			loggers.Errorf(logMsgExporterCreateError, t.getName(), err)
			closeExporters(registered, loggers)
			return nil, err
		}
		if e != nil {
			if err := e.register(); err != nil {
				loggers.Errorf(logMsgExporterCreateError, t.getName(), err)
				closeExporters(registered, loggers)
				return nil, err
			}
			loggers.Infof(logMsgExporterRegistered, t.getName())
			registered[t] = e
		}
	}
	return registered, nil
}

func closeExporters(exporters map[exporterType]exporter, loggers ldlog.Loggers) {
	for t, e := range exporters {
		if err := e.close(); err != nil {
			loggers.Errorf(logMsgExporterCloseError, t.getName(), err)
		}
	}
}

func getPrefix(c config.PrometheusConfig) string {
	if c.Prefix != "" {
		return c.Prefix
	}
	return defaultMetricsPrefix
}
