package iputil

import (
	"fmt"
	"net"
	"strings"
)

// IPVersion is the version of an IP address.
type IPVersion int

const (
	IPvUnknown IPVersion = 0
	IPv4       IPVersion = 4
	IPv6       IPVersion = 6
)

// ParseIP parses v as an IP address and reports its version. An IPv4-mapped IPv6 address
// such as "::ffff:1.1.1.1" is reported as IPv6, as it was written.
func ParseIP(v string) (net.IP, IPVersion) {
	ip := net.ParseIP(v)
	if ip == nil {
		return nil, IPvUnknown
	}

	if strings.Contains(v, ":") {
		return ip, IPv6
	}
	return ip, IPv4
}

// ParseNetworks parses a list of CIDR blocks, such as "10.0.0.0/8".
func ParseNetworks(cidrs []string) ([]net.IPNet, error) {
	networks := make([]net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("invalid network %q: %v", cidr, err)
		}
		networks = append(networks, *network)
	}
	return networks, nil
}
