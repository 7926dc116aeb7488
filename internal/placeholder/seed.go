package placeholder

import "net/netip"

// Names pre-seeded from the request text.
const (
	TargetIP   = "target_ip"
	SubnetCIDR = "subnet_cidr"
)

// SeedFromQuery extracts well-known placeholders from the natural-language
// request a plan was generated from. The first CIDR becomes subnet_cidr and
// the first standalone address becomes target_ip. A query that only names a
// subnet also seeds target_ip with the subnet's address.
func SeedFromQuery(query string) map[string]string {
	seeds := map[string]string{}
	var cidrAddr string
	if cidr, ok := firstCIDR(query); ok {
		seeds[SubnetCIDR] = cidr
		if prefix, err := netip.ParsePrefix(cidr); err == nil {
			cidrAddr = prefix.Addr().String()
		}
	}

	stripped := cidrPattern.ReplaceAllString(query, " ")
	if ip, ok := anyIPv4(stripped); ok {
		seeds[TargetIP] = ip
	} else if cidrAddr != "" {
		seeds[TargetIP] = cidrAddr
	}
	return seeds
}

// anyIPv4 returns the first valid address in text. Unlike discovery output,
// a request that names loopback or 0.0.0.0 means it.
func anyIPv4(text string) (string, bool) {
	for _, candidate := range ipv4Pattern.FindAllString(text, -1) {
		if validIPv4(candidate) {
			return candidate, true
		}
	}
	return "", false
}
