// Package executor runs a single resolved plan step as an external process.
//
// The command template is substituted from the placeholder values before
// dispatch. The process runs through the platform shell in its own process
// group so that a timeout or cancellation kills everything it spawned, and
// its output is captured into bounded buffers so runaway tools cannot
// exhaust memory.
package executor
