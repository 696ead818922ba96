package geoip

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/keyxmakerx/bizdir/internal/config"
	"github.com/keyxmakerx/bizdir/internal/metrics"
)

// clientAddressHeaders are consulted in order before the connection address.
var clientAddressHeaders = []string{
	"CF-Connecting-IP",
	"X-Forwarded-For",
	"X-Real-IP",
}

// Resolver discovers client addresses and geolocates them through a chain
// of providers. Safe for concurrent use.
type Resolver struct {
	enabled   bool
	timeout   time.Duration
	client    *http.Client
	providers []Provider
	sources   []PublicIPSource
	cache     Cache
	group     singleflight.Group
}

// NewResolver builds a resolver with the stock provider chain (ip-api.com,
// ipapi.co, ipinfo.io) and public-IP sources (ipify, httpbin) at the
// configured endpoints. cache may be nil.
func NewResolver(cfg config.GeoIPConfig, cache Cache) *Resolver {
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Resolver{
		enabled: cfg.Enabled,
		timeout: timeout,
		// Each call carries its own deadline via context.
		client: &http.Client{},
		providers: []Provider{
			IPAPI{BaseURL: cfg.IPAPIURL},
			IPAPICo{BaseURL: cfg.IPAPICoURL},
			IPInfo{BaseURL: cfg.IPInfoURL},
		},
		sources: []PublicIPSource{
			Ipify{BaseURL: cfg.IPifyURL},
			HTTPBin{BaseURL: cfg.HTTPBinURL},
		},
		cache: cache,
	}
}

// ResolveClientAddress returns the best-guess client address for a request:
// the first parsable address among CF-Connecting-IP, the leftmost
// X-Forwarded-For entry and X-Real-IP, falling back to remoteAddr. A
// loopback or private result is swapped for this server's public address,
// which is what a geolocation service would see. Returns NotAvailable when
// nothing can be determined.
func (r *Resolver) ResolveClientAddress(ctx context.Context, header http.Header, remoteAddr string) string {
	candidate := ""
	for _, name := range clientAddressHeaders {
		v := header.Get(name)
		if v == "" {
			continue
		}
		first := strings.TrimSpace(strings.Split(v, ",")[0])
		if _, ok := parseAddr(first); ok {
			candidate = first
			break
		}
	}
	if candidate == "" {
		candidate = hostOnly(remoteAddr)
	}

	if addr, ok := parseAddr(candidate); ok && !isLocal(addr) {
		return addr.String()
	}

	if !r.enabled {
		if candidate == "" {
			return NotAvailable
		}
		return candidate
	}
	return r.publicIP(ctx)
}

// hostOnly strips the port from a host:port connection address.
func hostOnly(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(remoteAddr)
}

func (r *Resolver) publicIP(ctx context.Context) string {
	for _, src := range r.sources {
		sctx, cancel := context.WithTimeout(ctx, r.timeout)
		ip, err := src.PublicIP(sctx, r.client)
		cancel()
		if err == nil {
			return ip
		}
		slog.Debug("public ip lookup failed",
			slog.String("source", src.Name()),
			slog.Any("error", err),
		)
		if ctx.Err() != nil {
			break
		}
	}
	return NotAvailable
}

// ResolveLocation returns "CC (Country) - Region, City" for a public
// address, or NotAvailable. Local, unparsable and sentinel inputs return
// NotAvailable without any network call. Never fails.
func (r *Resolver) ResolveLocation(ctx context.Context, ip string) string {
	if !r.enabled || !IsPublic(ip) {
		return NotAvailable
	}
	addr, _ := parseAddr(ip)
	key := addr.String()

	if r.cache != nil {
		loc, ok, err := r.cache.Get(ctx, key)
		switch {
		case err != nil:
			slog.Debug("geo cache read failed", slog.String("ip", key), slog.Any("error", err))
		case ok:
			metrics.GeoLookupsTotal.WithLabelValues("cache", "hit").Inc()
			return loc
		}
	}

	// The shared lookup outlives any single caller; provider timeouts bound it.
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		return r.lookup(shared, key), nil
	})
	var loc string
	select {
	case res := <-ch:
		loc = res.Val.(string)
	case <-ctx.Done():
		return NotAvailable
	}

	if loc != NotAvailable && r.cache != nil {
		if err := r.cache.Set(ctx, key, loc); err != nil {
			slog.Debug("geo cache write failed", slog.String("ip", key), slog.Any("error", err))
		}
	}
	return loc
}

// lookup walks the provider chain; the first structured answer wins.
func (r *Resolver) lookup(ctx context.Context, ip string) string {
	start := time.Now()
	defer func() { metrics.GeoLookupDuration.Observe(time.Since(start).Seconds()) }()

	for _, p := range r.providers {
		pctx, cancel := context.WithTimeout(ctx, r.timeout)
		loc, err := p.Lookup(pctx, r.client, ip)
		cancel()

		if err == nil {
			metrics.GeoLookupsTotal.WithLabelValues(p.Name(), "hit").Inc()
			return loc.String()
		}

		result := "error"
		if errors.Is(err, errNoMatch) {
			result = "miss"
		}
		metrics.GeoLookupsTotal.WithLabelValues(p.Name(), result).Inc()
		slog.Debug("geo provider failed",
			slog.String("provider", p.Name()),
			slog.String("ip", ip),
			slog.Any("error", err),
		)

		if ctx.Err() != nil {
			break
		}
	}
	return NotAvailable
}
