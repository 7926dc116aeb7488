package placeholder

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"
)

var (
	ipv4Pattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	cidrPattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}/\d{1,2}\b`)

	// Route table formats of ip(8) on Linux, route(8) on macOS and ipconfig on Windows.
	gatewayPatterns = []*regexp.Regexp{
		regexp.MustCompile(`default via ((?:\d{1,3}\.){3}\d{1,3})`),
		regexp.MustCompile(`gateway: ((?:\d{1,3}\.){3}\d{1,3})`),
		regexp.MustCompile(`Default Gateway[ .]*: ((?:\d{1,3}\.){3}\d{1,3})`),
	}
)

// Extract finds the value of name in the stdout of a discovery step. An
// explicit "name=value" or "name: value" line always wins. Otherwise a
// pattern is chosen from the shape of the name, and as a last resort, when
// the step produces a single name, the first non-empty line is used.
func Extract(name, output string, sole bool) (string, bool) {
	if v, ok := explicitValue(name, output); ok {
		return v, true
	}

	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "gateway"):
		return gateway(output)
	case strings.HasSuffix(lower, "cidr") || strings.HasPrefix(lower, "subnet"):
		return firstCIDR(output)
	case strings.HasSuffix(lower, "_ip") || lower == "ip" || strings.HasSuffix(lower, "address"):
		return firstIPv4(output)
	}

	if sole {
		for _, line := range strings.Split(output, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				return trimmed, true
			}
		}
	}
	return "", false
}

// ExtractAll resolves every produced name from output and reports the names
// it could not find.
func ExtractAll(names []string, output string) (map[string]string, error) {
	values := make(map[string]string, len(names))
	var missing []string
	for _, name := range names {
		v, ok := Extract(name, output, len(names) == 1)
		if !ok {
			missing = append(missing, name)
			continue
		}
		values[name] = v
	}
	if len(missing) > 0 {
		return values, fmt.Errorf("no value found in output for %s", strings.Join(missing, ", "))
	}
	return values, nil
}

func explicitValue(name, output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		for _, sep := range []string{"=", ":"} {
			key, value, ok := strings.Cut(line, sep)
			if ok && strings.TrimSpace(key) == name {
				if v := strings.TrimSpace(value); v != "" {
					return v, true
				}
			}
		}
	}
	return "", false
}

func gateway(output string) (string, bool) {
	for _, re := range gatewayPatterns {
		for _, m := range re.FindAllStringSubmatch(output, -1) {
			if validIPv4(m[1]) && m[1] != "0.0.0.0" {
				return m[1], true
			}
		}
	}
	return "", false
}

func firstIPv4(output string) (string, bool) {
	for _, candidate := range ipv4Pattern.FindAllString(output, -1) {
		if validIPv4(candidate) && candidate != "0.0.0.0" && !strings.HasPrefix(candidate, "127.") {
			return candidate, true
		}
	}
	return "", false
}

func firstCIDR(output string) (string, bool) {
	for _, candidate := range cidrPattern.FindAllString(output, -1) {
		if prefix, err := netip.ParsePrefix(candidate); err == nil && prefix.Addr().Is4() {
			return prefix.String(), true
		}
	}
	return "", false
}

func validIPv4(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is4()
}
