package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/bizdir/internal/apperror"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, c.RealIP())
}

func TestIPExtractor(t *testing.T) {
	extract := buildIPExtractor([]string{"10.0.0.0/8", "not-a-cidr"})

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"untrusted peer ignores headers", "203.0.113.9:5000", map[string]string{"X-Real-IP": "1.2.3.4"}, "203.0.113.9"},
		{"trusted peer uses X-Real-IP", "10.1.2.3:5000", map[string]string{"X-Real-IP": "1.2.3.4"}, "1.2.3.4"},
		{"trusted peer uses leftmost XFF", "10.1.2.3:5000", map[string]string{"X-Forwarded-For": "5.6.7.8, 10.0.0.1"}, "5.6.7.8"},
		{"trusted peer without headers", "10.1.2.3:5000", nil, "10.1.2.3"},
		{"no port", "10.1.2.3", nil, "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, extract(req))
		})
	}
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(3)
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("1.1.1.1"), "request %d within burst", i+1)
	}
	assert.False(t, l.Allow("1.1.1.1"), "burst exhausted")
	assert.True(t, l.Allow("2.2.2.2"), "buckets are per IP")

	now = now.Add(20 * time.Second)
	assert.True(t, l.Allow("1.1.1.1"), "one token refilled")

	now = now.Add(10 * time.Minute)
	l.Cleanup()
	l.mu.Lock()
	assert.Empty(t, l.visitors)
	l.mu.Unlock()
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	e := echo.New()
	l := NewIPRateLimiter(1)
	e.POST("/login", okHandler, l.Middleware())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
}

func TestRecovery(t *testing.T) {
	e := echo.New()
	var got error
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		got = err
		_ = c.NoContent(apperror.SafeCode(err))
	}
	e.Use(Recovery())
	e.GET("/boom", func(c echo.Context) error { panic("kaboom") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, apperror.Is(got, apperror.TypeInternal))
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/", okHandler)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestCORS(t *testing.T) {
	e := echo.New()
	e.Use(CORS(CORSConfig{AllowedOrigins: []string{"https://admin.example.com"}}))
	e.GET("/", okHandler)

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://admin.example.com")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, "https://admin.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unlisted origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "https://admin.example.com")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	})
}

type loginDTO struct {
	Email    string `json:"email" validate:"required,max=10"`
	Password string `json:"password" validate:"required"`
}

func TestRequestValidator(t *testing.T) {
	v := NewRequestValidator()

	require.NoError(t, v.Validate(&loginDTO{Email: "a@b.c", Password: "x"}))

	err := v.Validate(&loginDTO{Email: "much-too-long@example.com"})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.TypeValidation))
	assert.Equal(t, http.StatusUnprocessableEntity, apperror.SafeCode(err))
	msg := apperror.SafeMessage(err)
	assert.Contains(t, msg, "email must be at most 10 characters long")
	assert.Contains(t, msg, "password is required")
}
