package netio

import "net"

// rfc1918Blocks are the private IPv4 ranges a peer may connect from.
var rfc1918Blocks = []*net.IPNet{
	mustParseCIDR("10.0.0.0/8"),
	mustParseCIDR("172.16.0.0/12"),
	mustParseCIDR("192.168.0.0/16"),
}

func mustParseCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

// IsPrivateIP reports whether host falls within an RFC-1918 private range,
// the test the game-server address selection uses (spec.md §4.6 step 4).
func IsPrivateIP(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, block := range rfc1918Blocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}
