package geoip

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/bizdir/internal/config"
)

// stubServer counts calls and answers with handler.
type stubServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newStub(t *testing.T, handler http.HandlerFunc) *stubServer {
	t.Helper()
	s := &stubServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func jsonBody(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}
}

func status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(code) }
}

func hang(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(2 * time.Second):
	}
}

type stubs struct {
	ipapi, ipapico, ipinfo, ipify, httpbin *stubServer
}

func (s stubs) total() int32 {
	return s.ipapi.calls.Load() + s.ipapico.calls.Load() + s.ipinfo.calls.Load() +
		s.ipify.calls.Load() + s.httpbin.calls.Load()
}

func (s stubs) config() config.GeoIPConfig {
	return config.GeoIPConfig{
		Enabled:         true,
		ProviderTimeout: 100 * time.Millisecond,
		IPAPIURL:        s.ipapi.URL,
		IPAPICoURL:      s.ipapico.URL,
		IPInfoURL:       s.ipinfo.URL,
		IPifyURL:        s.ipify.URL,
		HTTPBinURL:      s.httpbin.URL,
	}
}

func newStubs(t *testing.T, ipapi, ipapico, ipinfo, ipify, httpbin http.HandlerFunc) stubs {
	return stubs{
		ipapi:   newStub(t, ipapi),
		ipapico: newStub(t, ipapico),
		ipinfo:  newStub(t, ipinfo),
		ipify:   newStub(t, ipify),
		httpbin: newStub(t, httpbin),
	}
}

const ipAPIOK = `{"status":"success","countryCode":"PE","country":"Peru","regionName":"Lima","city":"Miraflores"}`

func TestResolveLocation_LocalAddressesNeverCallProviders(t *testing.T) {
	s := newStubs(t, jsonBody(ipAPIOK), jsonBody(ipAPIOK), jsonBody(ipAPIOK), jsonBody(`{"ip":"8.8.8.8"}`), jsonBody(`{"origin":"8.8.8.8"}`))
	r := NewResolver(s.config(), nil)

	for _, ip := range []string{
		"", NotAvailable, "localhost", "127.0.0.1", "::1", "::ffff:127.0.0.1",
		"10.1.2.3", "192.168.0.10", "172.16.5.4", "169.254.1.1", "fd00::1", "not-an-ip",
	} {
		assert.Equal(t, NotAvailable, r.ResolveLocation(context.Background(), ip), "ip %q", ip)
	}
	assert.Zero(t, s.total(), "no provider should be contacted for local addresses")
}

func TestResolveLocation_FirstProviderWins(t *testing.T) {
	s := newStubs(t, jsonBody(ipAPIOK), status(500), status(500), status(500), status(500))
	r := NewResolver(s.config(), nil)

	got := r.ResolveLocation(context.Background(), "200.48.225.130")

	assert.Equal(t, "PE (Peru) - Lima, Miraflores", got)
	assert.EqualValues(t, 1, s.ipapi.calls.Load())
	assert.Zero(t, s.ipapico.calls.Load())
	assert.Zero(t, s.ipinfo.calls.Load())
}

func TestResolveLocation_FallsThroughChain(t *testing.T) {
	s := newStubs(t,
		jsonBody(`{"status":"fail","message":"reserved range"}`),
		status(http.StatusTooManyRequests),
		jsonBody(`{"country":"US","region":"California"}`),
		status(500), status(500),
	)
	r := NewResolver(s.config(), nil)

	got := r.ResolveLocation(context.Background(), "8.8.8.8")

	assert.Equal(t, "US (N/A) - California, N/A", got)
	assert.EqualValues(t, 1, s.ipapi.calls.Load())
	assert.EqualValues(t, 1, s.ipapico.calls.Load())
	assert.EqualValues(t, 1, s.ipinfo.calls.Load())
}

func TestResolveLocation_SlowProviderTimesOut(t *testing.T) {
	s := newStubs(t,
		hang,
		jsonBody(`{"country_code":"DE","country_name":"Germany","region":"Hesse","city":"Frankfurt"}`),
		status(500), status(500), status(500),
	)
	r := NewResolver(s.config(), nil)

	start := time.Now()
	got := r.ResolveLocation(context.Background(), "8.8.4.4")

	assert.Equal(t, "DE (Germany) - Hesse, Frankfurt", got)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolveLocation_CancelledCallerDoesNotAbortSharedLookup(t *testing.T) {
	arrived := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s := newStubs(t,
		func(w http.ResponseWriter, r *http.Request) {
			once.Do(func() { close(arrived) })
			select {
			case <-release:
			case <-r.Context().Done():
				return
			}
			jsonBody(ipAPIOK)(w, r)
		},
		status(500), status(500), status(500), status(500),
	)
	r := NewResolver(s.config(), nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	resA := make(chan string, 1)
	go func() { resA <- r.ResolveLocation(ctxA, "200.48.225.130") }()
	<-arrived

	resB := make(chan string, 1)
	go func() { resB <- r.ResolveLocation(context.Background(), "200.48.225.130") }()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case got := <-resA:
		assert.Equal(t, NotAvailable, got)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}
	close(release)

	select {
	case got := <-resB:
		assert.Equal(t, "PE (Peru) - Lima, Miraflores", got)
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}
	assert.EqualValues(t, 1, s.ipapi.calls.Load())
}

func TestResolveLocation_AllFailIsNotAvailable(t *testing.T) {
	s := newStubs(t, jsonBody(`not json`), status(404), jsonBody(`{}`), status(500), status(500))
	r := NewResolver(s.config(), nil)

	assert.Equal(t, NotAvailable, r.ResolveLocation(context.Background(), "1.1.1.1"))
}

func TestResolveLocation_Disabled(t *testing.T) {
	s := newStubs(t, jsonBody(ipAPIOK), jsonBody(ipAPIOK), jsonBody(ipAPIOK), status(500), status(500))
	cfg := s.config()
	cfg.Enabled = false
	r := NewResolver(cfg, nil)

	assert.Equal(t, NotAvailable, r.ResolveLocation(context.Background(), "8.8.8.8"))
	assert.Zero(t, s.total())
}

func TestResolveLocation_UsesRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	s := newStubs(t, jsonBody(ipAPIOK), status(500), status(500), status(500), status(500))
	r := NewResolver(s.config(), NewRedisCache(rdb, time.Hour))

	first := r.ResolveLocation(context.Background(), "200.48.225.130")
	second := r.ResolveLocation(context.Background(), "200.48.225.130")

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, s.ipapi.calls.Load(), "second lookup should be served from cache")

	cached, err := mr.Get("geoip:200.48.225.130")
	require.NoError(t, err)
	assert.Equal(t, "PE (Peru) - Lima, Miraflores", cached)
	assert.Equal(t, time.Hour, mr.TTL("geoip:200.48.225.130"))
}

func TestResolveLocation_FailureNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	s := newStubs(t, status(500), status(500), status(500), status(500), status(500))
	r := NewResolver(s.config(), NewRedisCache(rdb, time.Hour))

	assert.Equal(t, NotAvailable, r.ResolveLocation(context.Background(), "9.9.9.9"))
	assert.False(t, mr.Exists("geoip:9.9.9.9"))
}

func TestResolveLocation_RedisDownStillResolves(t *testing.T) {
	// Nothing listens on port 1; every cache call fails fast.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })

	s := newStubs(t, jsonBody(ipAPIOK), status(500), status(500), status(500), status(500))
	r := NewResolver(s.config(), NewRedisCache(rdb, time.Hour))

	assert.Equal(t, "PE (Peru) - Lima, Miraflores", r.ResolveLocation(context.Background(), "200.48.225.130"))
}

func TestResolveClientAddress_HeaderPrecedence(t *testing.T) {
	s := newStubs(t, status(500), status(500), status(500), status(500), status(500))
	r := NewResolver(s.config(), nil)

	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"cloudflare first", map[string]string{"CF-Connecting-IP": "203.0.113.7", "X-Forwarded-For": "198.51.100.1"}, "10.0.0.1:5000", "203.0.113.7"},
		{"forwarded leftmost", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.2"}, "10.0.0.1:5000", "198.51.100.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.9"}, "10.0.0.1:5000", "198.51.100.9"},
		{"garbage header skipped", map[string]string{"X-Forwarded-For": "unknown", "X-Real-IP": "198.51.100.9"}, "10.0.0.1:5000", "198.51.100.9"},
		{"connection address", nil, "203.0.113.50:41234", "203.0.113.50"},
		{"ipv6 connection address", nil, "[2001:db8::1]:443", "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.header {
				h.Set(k, v)
			}
			assert.Equal(t, tt.want, r.ResolveClientAddress(context.Background(), h, tt.remote))
		})
	}
	assert.Zero(t, s.ipify.calls.Load()+s.httpbin.calls.Load())
}

func TestResolveClientAddress_LocalSwappedForPublicIP(t *testing.T) {
	s := newStubs(t, status(500), status(500), status(500), jsonBody(`{"ip":"203.0.113.99"}`), status(500))
	r := NewResolver(s.config(), nil)

	got := r.ResolveClientAddress(context.Background(), http.Header{}, "127.0.0.1:5555")

	assert.Equal(t, "203.0.113.99", got)
	assert.Zero(t, s.httpbin.calls.Load())
}

func TestResolveClientAddress_PublicIPFallback(t *testing.T) {
	s := newStubs(t, status(500), status(500), status(500), status(503), jsonBody(`{"origin":"198.51.100.77, 10.0.0.1"}`))
	r := NewResolver(s.config(), nil)

	got := r.ResolveClientAddress(context.Background(), http.Header{"X-Forwarded-For": {"192.168.1.20"}}, "[::1]:5555")

	assert.Equal(t, "198.51.100.77", got)
}

func TestResolveClientAddress_NothingWorks(t *testing.T) {
	s := newStubs(t, status(500), status(500), status(500), status(500), status(500))
	r := NewResolver(s.config(), nil)

	assert.Equal(t, NotAvailable, r.ResolveClientAddress(context.Background(), http.Header{}, ""))
}

func TestResolveClientAddress_DisabledKeepsLocalAddress(t *testing.T) {
	s := newStubs(t, status(500), status(500), status(500), jsonBody(`{"ip":"203.0.113.99"}`), status(500))
	cfg := s.config()
	cfg.Enabled = false
	r := NewResolver(cfg, nil)

	assert.Equal(t, "127.0.0.1", r.ResolveClientAddress(context.Background(), http.Header{}, "127.0.0.1:5555"))
	assert.Zero(t, s.ipify.calls.Load())
}

func TestLocationString(t *testing.T) {
	assert.Equal(t, "PE (Peru) - Lima, Miraflores",
		Location{CountryCode: "PE", CountryName: "Peru", Region: "Lima", City: "Miraflores"}.String())
	assert.Equal(t, "US (N/A) - N/A, N/A", Location{CountryCode: "US"}.String())
}

func TestIsPublic(t *testing.T) {
	assert.True(t, IsPublic("8.8.8.8"))
	assert.True(t, IsPublic("2001:4860:4860::8888"))
	assert.True(t, IsPublic("172.32.0.1"), "outside 172.16.0.0/12")
	assert.False(t, IsPublic("172.31.255.255"))
	assert.False(t, IsPublic("::ffff:10.0.0.1"))
}
