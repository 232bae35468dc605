// hostclass.go — hostname classification used by allow-list mode to reject
// loopback/link-local/private/unique-local destinations (spec §4.1).
package netpolicy

import "net"

// classifyHost reports whether host resolves (by literal IP parse; DNS
// names are classified by literal private-TLD-style heuristics only — the
// preamble never performs a DNS lookup, since the worker is not allowed a
// network primitive to do the lookup with) to an address class the
// allow-list mode must reject regardless of domain membership.
func classifyHost(host string) (blocked bool, reason string) {
	ip := net.ParseIP(host)
	if ip == nil {
		// Not a literal IP: common non-routable hostnames the preamble still
		// refuses even though they aren't found in net.IP form.
		switch host {
		case "localhost", "localhost.localdomain":
			return true, "loopback hostname"
		}
		return false, ""
	}

	if ip.IsUnspecified() {
		return true, "unspecified address"
	}
	if ip.IsLoopback() {
		return true, "loopback address"
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true, "link-local address"
	}
	if ip4 := ip.To4(); ip4 != nil {
		if isRFC1918(ip4) {
			return true, "RFC 1918 private address"
		}
		if isCGNAT(ip4) {
			return true, "CGNAT (RFC 6598) address"
		}
		return false, ""
	}
	if isIPv6UniqueLocal(ip) {
		return true, "IPv6 unique-local address"
	}
	return false, ""
}

func isRFC1918(ip4 net.IP) bool {
	switch {
	case ip4[0] == 10:
		return true
	case ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
		return true
	case ip4[0] == 192 && ip4[1] == 168:
		return true
	}
	return false
}

// isCGNAT reports membership in 100.64.0.0/10 (RFC 6598), the shared address
// space ISPs use for carrier-grade NAT — routable only within the carrier's
// own network, never ours.
func isCGNAT(ip4 net.IP) bool {
	return ip4[0] == 100 && ip4[1]&0xc0 == 64
}

// isIPv6UniqueLocal reports membership in fc00::/7 (RFC 4193).
func isIPv6UniqueLocal(ip net.IP) bool {
	return len(ip) == net.IPv6len && (ip[0]&0xfe) == 0xfc
}
