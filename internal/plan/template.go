package plan

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	tokenPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)
	namePattern  = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

// ValidPlaceholderName reports whether name can appear as a {name} token.
func ValidPlaceholderName(name string) bool {
	return namePattern.MatchString(name)
}

// ScanPlaceholders returns the placeholder names referenced by a command
// template, in order of first appearance.
func ScanPlaceholders(template string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range tokenPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// ReplaceTokens substitutes every {name} token for which lookup succeeds and
// returns the names that could not be resolved.
func ReplaceTokens(template string, lookup func(name string) (string, bool)) (string, []string) {
	var missing []string
	out := tokenPattern.ReplaceAllStringFunc(template, func(tok string) string {
		name := tok[1 : len(tok)-1]
		if v, ok := lookup(name); ok {
			return v
		}
		missing = append(missing, name)
		return tok
	})
	return out, missing
}

// SanitizeCommand strips any directory prefix from the executable so that
// "/usr/bin/nmap -sn x" runs as "nmap -sn x" and is found on the search path.
func SanitizeCommand(command string) string {
	trimmed := strings.TrimLeft(command, " \t")
	if trimmed == "" {
		return command
	}
	exe, rest, _ := strings.Cut(trimmed, " ")
	base := executableBase(exe)
	if base == exe {
		return trimmed
	}
	if rest == "" {
		return base
	}
	return base + " " + rest
}

// ExecutableName returns the base name of the first word of a command.
func ExecutableName(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return executableBase(fields[0])
}

func executableBase(exe string) string {
	if !strings.ContainsAny(exe, `/\`) {
		return exe
	}
	// Windows paths are normalized first so filepath.Base works on every host.
	return filepath.Base(strings.ReplaceAll(exe, `\`, "/"))
}
