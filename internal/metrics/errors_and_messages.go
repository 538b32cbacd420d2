package metrics

import "fmt"

const (
	logMsgTagsFailed          = "Failed to create metrics tags: %s"
	logMsgExporterError       = "%s exporter error: %s"
	logMsgExporterCreateError = "Error creating %s metrics exporter: %s"
	logMsgExporterRegistered  = "Successfully registered %s metrics exporter"
	logMsgExporterCloseError  = "Error closing %s metrics exporter: %s"
	logMsgPrometheusListening = "Prometheus listening on port %d"
	logMsgPrometheusFailed    = "Failed to start Prometheus listener: %s"
)

func errRegisterViews(err error) error {
	return fmt.Errorf("error registering metrics views: %w", err)
}
