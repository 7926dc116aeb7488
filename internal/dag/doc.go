// Package dag builds the ordering constraints of a plan. Every step that
// consumes a placeholder is linked after every step that produces it, and the
// resulting graph is checked for cycles before anything runs, so a rejected
// plan never has side effects.
package dag
