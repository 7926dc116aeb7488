// Package scheduler drives a validated plan to completion.
//
// Every step gets its own coordinator goroutine that walks the step state
// machine: it resolves the step's tool, waits for the placeholders the step
// consumes, takes a worker slot and hands the step to the runner. Dependent
// steps are ordered purely by placeholder publication, so independent steps
// run concurrently up to the worker limit and a failed producer cascades as a
// skip to everything downstream of it.
package scheduler
