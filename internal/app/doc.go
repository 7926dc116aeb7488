// Package app contains the application lifecycle. It wires configuration,
// logging, session storage and progress reporting around the plan engine,
// independently of any specific entrypoint like the CLI.
package app
