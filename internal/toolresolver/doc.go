// Package toolresolver makes sure the external tool a step depends on is
// present before the step runs.
//
// A Resolver probes the search path, and when a tool is missing asks a
// platform-specific Installer to install it, then probes again. Results are
// cached for the lifetime of the Resolver, which is one session, and
// concurrent callers asking for the same tool share a single resolution, so a
// tool is never installed twice in a session.
package toolresolver
