// Package cli defines the planexec command tree. It parses arguments, merges
// flags into the configuration and translates outcomes into process exit
// codes through ExitError.
package cli
