package network

import (
	"net/netip"
	"strings"
)

// sharedAddressSpace is carrier-grade NAT space (RFC 6598). It is not
// routable on the Internet, so an address from it is reported as local.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

type addrClass int

const (
	addrIgnored addrClass = iota
	addrLocal
	addrPublic
)

func classify(addr netip.Addr) addrClass {
	switch {
	case addr.IsLoopback(), addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast(),
		addr.IsUnspecified(), addr.IsMulticast():
		return addrIgnored
	case addr.IsPrivate(), sharedAddressSpace.Contains(addr):
		return addrLocal
	case addr.IsGlobalUnicast():
		return addrPublic
	default:
		return addrIgnored
	}
}

// candidateAddrs returns every address token of the candidate lines, in order.
func candidateAddrs(lines []string) []netip.Addr {
	var addrs []netip.Addr
	for _, line := range lines {
		for _, token := range strings.Fields(line) {
			if addr, ok := parseAddr(token); ok {
				addrs = append(addrs, addr)
			}
		}
	}
	return addrs
}

// ClassifyCandidates scans ICE candidate lines for address tokens and
// returns the first private address and the first public address found.
// Loopback, link-local, unspecified and multicast addresses are ignored,
// as are mDNS host names.
func ClassifyCandidates(lines []string) (local, public string) {
	for _, addr := range candidateAddrs(lines) {
		switch classify(addr) {
		case addrLocal:
			if local == "" {
				local = addr.String()
			}
		case addrPublic:
			if public == "" {
				public = addr.String()
			}
		}
		if local != "" && public != "" {
			break
		}
	}
	return local, public
}

// PublicCandidates returns every distinct public address found in the
// candidate lines, in the order they appear.
func PublicCandidates(lines []string) []string {
	var out []string
	seen := make(map[netip.Addr]bool)
	for _, addr := range candidateAddrs(lines) {
		if classify(addr) != addrPublic || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr.String())
	}
	return out
}

// SelectLeak picks the disclosed public address to compare with publicIP.
// Only candidates of publicIP's address family are considered: the first one
// that differs from publicIP is returned, or publicIP itself when all of them
// match. A dual-stack client whose other family shows up in ICE is therefore
// not reported as leaking. When publicIP is not a valid address the first
// candidate is returned.
func SelectLeak(candidates []string, publicIP string) string {
	pub, err := netip.ParseAddr(publicIP)
	if err != nil {
		if len(candidates) > 0 {
			return candidates[0]
		}
		return ""
	}
	pub = pub.Unmap()

	leaked := ""
	for _, c := range candidates {
		addr, err := netip.ParseAddr(c)
		if err != nil || addr.Is4() != pub.Is4() {
			continue
		}
		if addr != pub {
			return addr.String()
		}
		leaked = pub.String()
	}
	return leaked
}

func parseAddr(token string) (netip.Addr, bool) {
	token = strings.Trim(token, "[],;\"")
	if token == "" || !strings.ContainsAny(token, ".:") {
		return netip.Addr{}, false
	}
	// Candidate attributes such as "candidate:842163049" are not addresses.
	if strings.HasPrefix(token, "candidate:") {
		token = strings.TrimPrefix(token, "candidate:")
	}
	addr, err := netip.ParseAddr(token)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.WithZone("").Unmap(), true
}
