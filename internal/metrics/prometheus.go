package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/magneto-serge/magneto/config"

	"contrib.go.opencensus.io/exporter/prometheus"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"go.opencensus.io/stats/view"
)

var prometheusExporterType exporterType = prometheusExporterTypeImpl{} //nolint:gochecknoglobals

type prometheusExporterTypeImpl struct{}

type prometheusExporterImpl struct {
	exporter *prometheus.Exporter
	port     int
	server   *http.Server
	loggers  ldlog.Loggers
}

func (p prometheusExporterTypeImpl) getName() string {
	return "Prometheus"
}

func (p prometheusExporterTypeImpl) createExporterIfEnabled(
	pc config.PrometheusConfig,
	loggers ldlog.Loggers,
) (exporter, error) {
	if !pc.Enabled {
		return nil, nil
	}

	port := pc.Port.GetOrElse(config.DefaultPrometheusPort)

	logPrometheusError := func(e error) {
		loggers.Errorf(logMsgExporterError, "Prometheus", e)
	}
	exporter, err := prometheus.NewExporter(prometheus.Options{Namespace: getPrefix(pc), OnError: logPrometheusError})
	if err != nil {
		return nil, err
	}
	return &prometheusExporterImpl{exporter: exporter, port: port, loggers: loggers}, nil
}

func (p *prometheusExporterImpl) register() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", p.port))
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.exporter)
	p.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		p.loggers.Infof(logMsgPrometheusListening, p.port)
		if err := p.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.loggers.Errorf(logMsgPrometheusFailed, err)
		}
	}()
	view.RegisterExporter(p.exporter)
	return nil
}

func (p *prometheusExporterImpl) close() error {
	view.UnregisterExporter(p.exporter)
	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return p.server.Shutdown(ctx)
}
