package metrics

import (
	"sync"

	"github.com/magneto-serge/magneto/config"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// Manager owns the metrics exporters of one proxy process.
type Manager struct {
	exporters map[exporterType]exporter
	loggers   ldlog.Loggers
	closeOnce sync.Once
}

// NewManager registers the metrics views and starts whichever exporters are enabled.
func NewManager(c config.PrometheusConfig, loggers ldlog.Loggers) (*Manager, error) {
	if err := RegisterViews(); err != nil {
		return nil, err
	}
	exporters, err := registerExporters(allExporterTypes(), c, loggers)
	if err != nil {
		return nil, err
	}
	return &Manager{exporters: exporters, loggers: loggers}, nil
}

// Close stops all exporters.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		closeExporters(m.exporters, m.loggers)
	})
}
