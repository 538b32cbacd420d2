// Package cookiejar tracks the cookies observed during a recording session and decides which of them
// to send again during replay.
//
// A Jar belongs to one cassette. It is never shared between sessions, and there is no process-wide
// cookie state.
package cookiejar
