package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/labstack/echo/v4"
)

// TrustedProxies configures how c.RealIP() resolves the client address.
// Forwarding headers are honoured only when the direct peer falls inside
// one of trustedCIDRs, for example:
//   - "127.0.0.1/8"    docker host
//   - "10.0.0.0/8"     docker bridge
//   - "172.16.0.0/12"  docker bridge (alternative range)
//   - "fd00::/8"       IPv6 private range
//
// c.RealIP() keys the login rate limiter and the request log. The audit
// trail resolves its own address from the raw headers.
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) {
	e.IPExtractor = buildIPExtractor(trustedCIDRs)
}

// buildIPExtractor returns an Echo IPExtractor that trusts X-Forwarded-For
// and X-Real-IP headers only from connections originating in trusted CIDRs.
func buildIPExtractor(trustedCIDRs []string) echo.IPExtractor {
	var trusted []netip.Prefix
	for _, cidr := range trustedCIDRs {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy CIDR", slog.String("cidr", cidr))
			continue
		}
		trusted = append(trusted, prefix.Masked())
	}

	return func(req *http.Request) string {
		directIP := extractDirectIP(req.RemoteAddr)
		if !isTrusted(directIP, trusted) {
			return directIP
		}

		if realIP := strings.TrimSpace(req.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}

		// Leftmost entry is the original client.
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}

		return directIP
	}
}

// extractDirectIP extracts the IP address from a "host:port" RemoteAddr string.
func extractDirectIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func isTrusted(ipStr string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ipStr)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
