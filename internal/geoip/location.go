// Package geoip resolves the client address of an HTTP request and turns
// public addresses into a human-readable location. Every lookup is best
// effort: failures degrade to the NotAvailable sentinel and never reach the
// caller as errors.
package geoip

import (
	"fmt"
	"net/netip"
	"strings"
)

// NotAvailable is returned whenever an address or location cannot be
// determined.
const NotAvailable = "N/A"

// Location is a provider answer normalized to one shape.
type Location struct {
	CountryCode string
	CountryName string
	Region      string
	City        string
}

// String formats the location as "CC (Country) - Region, City", filling
// missing parts with NotAvailable.
func (l Location) String() string {
	return fmt.Sprintf("%s (%s) - %s, %s",
		l.CountryCode, orNA(l.CountryName), orNA(l.Region), orNA(l.City))
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotAvailable
	}
	return s
}

// parseAddr parses an address as found in headers or RemoteAddr. Ports and
// IPv6 zone brackets are stripped.
func parseAddr(raw string) (netip.Addr, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return netip.Addr{}, false
	}
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap.Addr().Unmap(), true
	}
	addr, err := netip.ParseAddr(strings.Trim(raw, "[]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// isLocal reports whether an address can never be geolocated: loopback,
// RFC 1918 / ULA private ranges, link-local and unspecified addresses.
func isLocal(addr netip.Addr) bool {
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified()
}

// IsPublic reports whether raw is a parsable, globally routable address.
// "localhost" and the sentinel are not.
func IsPublic(raw string) bool {
	if raw == "" || raw == NotAvailable || strings.EqualFold(raw, "localhost") {
		return false
	}
	addr, ok := parseAddr(raw)
	return ok && !isLocal(addr)
}
