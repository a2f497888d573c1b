package convo

import "net"

func mustParseIP(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		// Not a literal the decoder should ever emit; fall back to the
		// zero value rather than panicking on malformed input we can't
		// recover from here.
		return net.IPv4zero
	}
	return ip
}
