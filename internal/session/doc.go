// Package session records one full plan execution.
//
// A Recorder collects step results in completion order while a plan runs.
// When the run ends it is sealed, together with the final placeholder
// values, into an immutable Session that a Store persists. Two stores are
// provided: SQLite for the default history database, and a directory of JSON
// documents. A persisted session carries the whole plan, so RenderTranscript
// can rebuild a human-readable result table from the record alone.
package session
