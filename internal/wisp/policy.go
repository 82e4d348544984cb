package wisp

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// BlacklistedPorts are service ports the deployment elects to refuse even
// though they fall inside [1, 65535]. Empty by default; a deployment that
// wants to close off e.g. SMTP relays can populate this at startup:
//
//	wisp.BlacklistedPorts[25] = true
var BlacklistedPorts = map[uint16]bool{}

// ValidateTarget rejects empty hosts, hosts that resolve literally to
// loopback/link-local/private ranges or localhost/*.local, ports outside
// [1, 65535], and the deployment's blacklisted service ports.
func ValidateTarget(host string, port uint16) error {
	if host == "" {
		return fmt.Errorf("empty host")
	}
	if port == 0 {
		return fmt.Errorf("port out of range")
	}
	if BlacklistedPorts[port] {
		return fmt.Errorf("port %d is blacklisted", port)
	}

	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".local") {
		return fmt.Errorf("loopback or mDNS host not permitted")
	}

	if ascii, err := idna.Lookup.ToASCII(lower); err == nil {
		lower = ascii
	}

	if ip := net.ParseIP(strings.Trim(lower, "[]")); ip != nil {
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
			ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() {
			return fmt.Errorf("private or reserved IP literal not permitted")
		}
	}
	return nil
}
