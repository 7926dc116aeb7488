// Package config loads runtime settings from defaults, an optional TOML
// config file, PLANEXEC_* environment variables and command-line flags, in
// increasing order of precedence.
package config
