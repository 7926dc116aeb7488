// Package placeholder holds the runtime facts discovered while a plan runs.
//
// A Registry maps placeholder names to resolved values. Values are written at
// most once: the first producer wins and a later producer with a different
// value gets a ConflictError. Consumers block in Wait until a name is
// published, or until every step expected to produce it has given up, in
// which case the name is unresolvable and the consumer must be skipped.
//
// The package also knows how to pull values out of discovery output
// (Extract) and how to pre-seed well-known names from the request that
// produced the plan (SeedFromQuery).
package placeholder
