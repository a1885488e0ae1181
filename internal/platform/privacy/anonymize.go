// Package privacy reduces PSU identifiers to forms that are safe to log or
// attach to spans.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
)

// AnonymizeIP keeps the network part of an address: /24 for IPv4 and /48
// for IPv6. Returns "unknown" for empty input and "invalid" when unparseable.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}

// HashIdentifier returns a short stable digest of id so log lines and spans
// can be correlated without carrying the identifier itself.
func HashIdentifier(id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:16]
}
