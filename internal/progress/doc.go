// Package progress streams per-step state transitions out of a running plan.
//
// The scheduler publishes an Event for every transition to a Bus, and the bus
// fans events out to attached sinks on their own goroutines. Sinks only read:
// a slow or failing display can drop events but can never block or alter the
// engine.
package progress
