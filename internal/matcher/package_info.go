// Package matcher finds the recorded interaction that answers a live request.
//
// Candidates are grouped by (method, URL) when the Matcher is built, and each group has its own
// cursor, so the Nth identical request gets the Nth recorded answer. The cassette and the groups are
// never modified after construction; the cursors are the only mutable state.
package matcher
