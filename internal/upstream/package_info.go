// Package upstream contains the HTTP client used to forward live requests, and the classification of
// the network failures it can report.
package upstream
