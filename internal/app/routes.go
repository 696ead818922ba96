package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyxmakerx/bizdir/internal/geoip"
	"github.com/keyxmakerx/bizdir/internal/middleware"
	"github.com/keyxmakerx/bizdir/internal/plugins/audit"
	"github.com/keyxmakerx/bizdir/internal/plugins/auth"
)

// RegisterRoutes sets up all application routes. It registers public routes
// directly and delegates to each plugin's route registration function.
//
// This is the single place where plugins are constructed and wired. When a
// new plugin is added, its routes are registered here.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// --- Public Routes (no auth required) ---

	e.GET("/healthz", a.healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// --- Plugins ---

	// Audit ledger: repository -> service. The login flow writes through
	// the same service the HTTP endpoints use.
	auditRepo := audit.NewAuditRepository(a.DB)
	auditService := audit.NewAuditService(auditRepo)

	// Geolocation is cached in Redis when it is configured.
	var geoCache geoip.Cache
	if a.Redis != nil {
		geoCache = geoip.NewRedisCache(a.Redis, a.Config.GeoIP.CacheTTL)
	}
	resolver := geoip.NewResolver(a.Config.GeoIP, geoCache)

	authCfg := a.Config.Auth
	authService := auth.NewAuthService(
		auth.NewCredentialStore(a.DB),
		auth.NewTokenIssuer(authCfg.SecretKey, authCfg.TokenTTL),
		auditService,
		resolver,
		auth.LockoutPolicy{
			MaxAttempts:          authCfg.MaxFailedAttempts,
			LockDuration:         authCfg.LockDuration,
			EnforceLockOnSuccess: authCfg.EnforceLockOnSuccess,
			AtomicLockout:        authCfg.AtomicLockout,
		},
	)

	loginLimiter := middleware.NewIPRateLimiter(a.Config.RateLimit.LoginPerMinute)
	go loginLimiter.Run(a.ctx)

	api := e.Group("/api")
	requireAuth := auth.RequireAuth(authService)

	auth.RegisterRoutes(api, auth.NewHandler(authService), authService, loginLimiter.Middleware())
	audit.RegisterRoutes(api, audit.NewHandler(auditService, auth.GetUserID), requireAuth)
}

// healthz reports whether the database (and Redis, when configured) answer.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok", "database": "ok"}
	code := http.StatusOK

	if err := a.DB.PingContext(ctx); err != nil {
		slog.Warn("health check: database unreachable", slog.Any("error", err))
		status["status"], status["database"] = "degraded", "unreachable"
		code = http.StatusServiceUnavailable
	}

	// Redis only caches geolocation; losing it never fails the check.
	if a.Redis != nil {
		status["redis"] = "ok"
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			status["redis"] = "unreachable"
		}
	}

	return c.JSON(code, status)
}
