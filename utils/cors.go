package utils

import (
	"net"
	"net/url"
	"strings"
)

// IsAllowedOrigin reports whether an Origin header value should be trusted
// for cross-origin requests: localhost, private/RFC1918 IPs, .local mDNS
// hostnames and single-label LAN names. Public internet origins are blocked.
func IsAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	hostname := parsed.Hostname()
	if hostname == "localhost" {
		return true
	}
	if strings.HasSuffix(hostname, ".local") {
		return true
	}
	if !strings.Contains(hostname, ".") {
		return true
	}
	if ip := net.ParseIP(hostname); ip != nil {
		return isPrivateIP(ip)
	}
	return false
}

var privateNetworks = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // link-local IPv4
	"::1/128",        // loopback IPv6
	"fe80::/10",      // link-local IPv6
	"fc00::/7",       // unique local IPv6
}

func isPrivateIP(ip net.IP) bool {
	for _, cidr := range privateNetworks {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
