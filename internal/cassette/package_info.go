// Package cassette defines the persisted form of a recorded session and the stores that hold it.
//
// A cassette is a named, versioned list of interactions plus the cookies seen while recording. The
// JSON encoding is shared with other implementations that read and write the same files, so its
// layout must not change: bodies are arrays of byte values rather than base64 strings, and each
// interaction carries a "type" discriminator.
package cassette
