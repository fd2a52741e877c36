package iputil

import (
	"net"
)

// IPValidator decides whether an address may be used as the client address of a request.
type IPValidator interface {
	IsValid(net.IP, IPVersion) bool
}

// PublicNetworkIPValidator accepts addresses outside of every listed private network.
type PublicNetworkIPValidator struct {
	IPv4PrivateNetworks []net.IPNet
	IPv6PrivateNetworks []net.IPNet
}

// IsValid implements the IPValidator interface.
func (v PublicNetworkIPValidator) IsValid(ip net.IP, ver IPVersion) bool {
	var privateNetworks []net.IPNet
	switch ver {
	case IPv4:
		privateNetworks = v.IPv4PrivateNetworks
	case IPv6:
		privateNetworks = v.IPv6PrivateNetworks
	default:
		return false
	}

	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return false
		}
	}
	return true
}
