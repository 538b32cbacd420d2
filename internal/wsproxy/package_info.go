// Package wsproxy forwards, records and replays WebSocket connections.
package wsproxy
