// Package proxy is the record-and-replay engine: a Proxy owns the listener, runs one session at a time,
// and decides for every request whether to serve a recorded response, forward it live, or fail.
//
// Application code embedding the proxy normally calls New or NewProxy, then the session methods such
// as StartRecording, Replay and Stop. The cmd/magneto program does the same behind an admin API.
package proxy
