package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

var privateRanges = func() []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fc00::/7"} {
		_, subnet, _ := net.ParseCIDR(cidr)
		nets = append(nets, subnet)
	}
	return nets
}()

// ClientIP returns the caller address for audit entries.
//
// Priority order:
// 1. X-Real-IP (set by the reverse proxy in front of the API)
// 2. First valid entry of X-Forwarded-For
// 3. Gin's ClientIP (direct connections)
//
// Kiosks sit on the gym LAN, so unlike a public API a private address is a
// legitimate answer here.
func ClientIP(c *gin.Context) string {
	if realIP := strings.TrimSpace(c.GetHeader("X-Real-IP")); isValidIP(realIP) {
		return realIP
	}

	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		for _, part := range strings.Split(forwarded, ",") {
			if ip := strings.TrimSpace(part); isValidIP(ip) {
				return ip
			}
		}
	}

	return c.ClientIP()
}

// IsOnSite reports whether ip is a loopback or private address, i.e. a device
// inside the gym rather than on the internet
func IsOnSite(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if parsed.IsLoopback() {
		return true
	}
	for _, subnet := range privateRanges {
		if subnet.Contains(parsed) {
			return true
		}
	}
	return false
}

func isValidIP(ip string) bool {
	return ip != "" && net.ParseIP(ip) != nil
}
