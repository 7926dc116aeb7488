// Package localsession wires the engine components for one in-process plan
// run. Each session owns its registry, tool cache, recorder and scheduler;
// nothing is shared between runs except the optional event publisher.
package localsession
