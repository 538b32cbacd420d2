// Package metrics records proxy activity with OpenCensus and, if configured, exposes it to Prometheus.
package metrics
